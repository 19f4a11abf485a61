package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies CHECKOUT_* environment variables on top of the file config.
func (c *Config) applyEnvOverrides() {
	// Server
	setIfEnv(&c.Server.Address, "CHECKOUT_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "CHECKOUT_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "CHECKOUT_ADMIN_METRICS_API_KEY")
	setListIfEnv(&c.Server.CORSAllowedOrigins, "CHECKOUT_CORS_ALLOWED_ORIGINS")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging
	setIfEnv(&c.Logging.Level, "CHECKOUT_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "CHECKOUT_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "CHECKOUT_ENVIRONMENT")

	// Processor
	setIfEnv(&c.Processor.Provider, "CHECKOUT_PROCESSOR_PROVIDER")
	setIfEnv(&c.Processor.BaseURL, "CHECKOUT_PROCESSOR_BASE_URL")
	setIfEnv(&c.Processor.MerchantID, "CHECKOUT_PROCESSOR_MERCHANT_ID")
	setIfEnv(&c.Processor.Environment, "CHECKOUT_PROCESSOR_ENVIRONMENT")
	setIfEnv(&c.Processor.Blockchain, "CHECKOUT_PROCESSOR_BLOCKCHAIN")
	setInt64IfEnv(&c.Processor.FallbackFeeCents, "CHECKOUT_PROCESSOR_FALLBACK_FEE_CENTS")
	setDurationIfEnv(&c.Processor.Timeout, "CHECKOUT_PROCESSOR_TIMEOUT")

	// Stripe
	setIfEnv(&c.Stripe.SecretKey, "CHECKOUT_STRIPE_SECRET_KEY")
	setIfEnv(&c.Stripe.Currency, "CHECKOUT_STRIPE_CURRENCY")
	setInt64IfEnv(&c.Stripe.FeeCents, "CHECKOUT_STRIPE_FEE_CENTS")

	// Widget
	setListIfEnv(&c.Widget.AllowedOrigins, "CHECKOUT_WIDGET_ALLOWED_ORIGINS")

	// Storage
	setIfEnv(&c.Storage.Backend, "CHECKOUT_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "CHECKOUT_STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.PostgresTable, "CHECKOUT_STORAGE_POSTGRES_TABLE")
	setIfEnv(&c.Storage.MongoDBURL, "CHECKOUT_STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "CHECKOUT_STORAGE_MONGODB_DATABASE")
	setIfEnv(&c.Storage.MongoDBCollection, "CHECKOUT_STORAGE_MONGODB_COLLECTION")
	setIfEnv(&c.Storage.FilePath, "CHECKOUT_STORAGE_FILE_PATH")
	setDurationIfEnv(&c.Storage.SessionTTL, "CHECKOUT_STORAGE_SESSION_TTL")

	// Sessions
	setDurationIfEnv(&c.Sessions.IdleTTL, "CHECKOUT_SESSIONS_IDLE_TTL")
	setDurationIfEnv(&c.Sessions.IdempotencyTTL, "CHECKOUT_SESSIONS_IDEMPOTENCY_TTL")

	// Rate limiting
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "CHECKOUT_RATE_LIMIT_GLOBAL_ENABLED")
	setBoolIfEnv(&c.RateLimit.PerWalletEnabled, "CHECKOUT_RATE_LIMIT_PER_WALLET_ENABLED")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "CHECKOUT_RATE_LIMIT_PER_IP_ENABLED")

	// Circuit breaker
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "CHECKOUT_CIRCUIT_BREAKER_ENABLED")
}

func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv accepts "1" or any casing of "true" as true.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt64IfEnv(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv parses values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setListIfEnv splits a comma separated value, dropping blanks.
func setListIfEnv(target *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*target = out
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
