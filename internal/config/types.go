package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses Go-style duration strings, or bare numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Processor      ProcessorConfig      `yaml:"processor"`
	Stripe         StripeConfig         `yaml:"stripe"`
	Widget         WidgetConfig         `yaml:"widget"`
	Storage        StorageConfig        `yaml:"storage"`
	Sessions       SessionsConfig       `yaml:"sessions"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` // defaults to widget.allowed_origins
	RoutePrefix        string   `yaml:"route_prefix"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // empty disables /metrics protection
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// Supported processor.provider values.
const (
	ProviderCoinflow = "coinflow"
	ProviderStripe   = "stripe"
)

// ProcessorConfig selects and configures the card processor.
type ProcessorConfig struct {
	Provider         string   `yaml:"provider"`           // coinflow | stripe
	BaseURL          string   `yaml:"base_url"`           // e.g. https://api-sandbox.coinflow.cash
	MerchantID       string   `yaml:"merchant_id"`        // per-merchant path segment, also handed to the widget
	Environment      string   `yaml:"environment"`        // sandbox | prod
	Blockchain       string   `yaml:"blockchain"`         // chain of the paying wallet (default: solana)
	FallbackFeeCents int64    `yaml:"fallback_fee_cents"` // used when the totals call fails (default: 50)
	Timeout          Duration `yaml:"timeout"`            // outbound HTTP timeout (default: 30s)
}

// StripeConfig holds settings for the Stripe PaymentIntents processor.
type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
	Currency  string `yaml:"currency"`  // default: usd
	FeeCents  int64  `yaml:"fee_cents"` // flat fee reported as totals
}

// WidgetConfig configures the hosted card iframes.
type WidgetConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Styles         StyleOverride `yaml:"styles"`
	InlineStyles   StyleOverride `yaml:"inline_styles"`
}

// StyleOverride replaces individual CSS strings of the default widget styles.
// Empty fields keep the default.
type StyleOverride struct {
	Base     string `yaml:"base"`
	Focus    string `yaml:"focus"`
	Error    string `yaml:"error"`
	CVVBase  string `yaml:"cvv_base"`
	CVVFocus string `yaml:"cvv_focus"`
	CVVError string `yaml:"cvv_error"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // default: 25
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // default: 5
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // default: 5m
}

// StorageConfig holds the saved-card slot backend configuration.
type StorageConfig struct {
	Backend           string             `yaml:"backend"` // memory | file | postgres | mongodb
	PostgresURL       string             `yaml:"postgres_url"`
	PostgresTable     string             `yaml:"postgres_table"` // default: saved_card_slots
	PostgresPool      PostgresPoolConfig `yaml:"postgres_pool"`
	MongoDBURL        string             `yaml:"mongodb_url"`
	MongoDBDatabase   string             `yaml:"mongodb_database"`
	MongoDBCollection string             `yaml:"mongodb_collection"` // default: saved_card_slots
	FilePath          string             `yaml:"file_path"`
	SessionTTL        Duration           `yaml:"session_ttl"`      // memory backend slot lifetime (0 = no expiry)
	CleanupInterval   Duration           `yaml:"cleanup_interval"` // memory backend sweep interval
}

// SessionsConfig controls the lifetime of checkout sessions.
type SessionsConfig struct {
	IdleTTL         Duration `yaml:"idle_ttl"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	IdempotencyTTL  Duration `yaml:"idempotency_ttl"`
}

// RateLimitConfig holds multi-tier rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	// Per-wallet limiting (wallet from X-Wallet header or session)
	PerWalletEnabled bool     `yaml:"per_wallet_enabled"`
	PerWalletLimit   int      `yaml:"per_wallet_limit"`
	PerWalletWindow  Duration `yaml:"per_wallet_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for outbound processor calls.
type CircuitBreakerConfig struct {
	Enabled      bool                 `yaml:"enabled"`
	ProcessorAPI BreakerServiceConfig `yaml:"processor_api"`
	StripeAPI    BreakerServiceConfig `yaml:"stripe_api"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // requests allowed when half-open
	Interval            Duration `yaml:"interval"`             // stats reset interval when closed
	Timeout             Duration `yaml:"timeout"`              // open duration before half-open
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // consecutive failures to trip
	FailureRatio        float64  `yaml:"failure_ratio"`        // 0.0-1.0
	MinRequests         uint32   `yaml:"min_requests"`         // requests before the ratio applies
}
