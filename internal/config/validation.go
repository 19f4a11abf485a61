package config

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	c.Processor.Provider = strings.ToLower(strings.TrimSpace(c.Processor.Provider))
	if c.Processor.Provider == "" {
		c.Processor.Provider = ProviderCoinflow
	}
	if c.Processor.Blockchain == "" {
		c.Processor.Blockchain = "solana"
	}
	if c.Processor.Environment == "" {
		c.Processor.Environment = "sandbox"
	}
	if c.Processor.Timeout.Duration <= 0 {
		c.Processor.Timeout = Duration{Duration: 30 * time.Second}
	}
	c.Processor.BaseURL = strings.TrimRight(c.Processor.BaseURL, "/")
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "usd"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.PostgresTable == "" {
		c.Storage.PostgresTable = "saved_card_slots"
	}
	if c.Storage.MongoDBCollection == "" {
		c.Storage.MongoDBCollection = "saved_card_slots"
	}
	if c.Storage.MongoDBDatabase == "" {
		c.Storage.MongoDBDatabase = "card_checkout"
	}
	if c.Storage.CleanupInterval.Duration <= 0 {
		c.Storage.CleanupInterval = Duration{Duration: 5 * time.Minute}
	}

	if c.Sessions.IdleTTL.Duration <= 0 {
		c.Sessions.IdleTTL = Duration{Duration: 30 * time.Minute}
	}
	if c.Sessions.CleanupInterval.Duration <= 0 {
		c.Sessions.CleanupInterval = Duration{Duration: time.Minute}
	}
	if c.Sessions.IdempotencyTTL.Duration <= 0 {
		c.Sessions.IdempotencyTTL = Duration{Duration: 24 * time.Hour}
	}

	return c.validate()
}

func (c *Config) validate() error {
	var errs []string

	switch c.Processor.Provider {
	case ProviderCoinflow:
		if c.Processor.MerchantID == "" {
			errs = append(errs, "processor.merchant_id is required")
		}
		if err := validateHTTPURL(c.Processor.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("processor.base_url: %v", err))
		}
	case ProviderStripe:
		if c.Stripe.SecretKey == "" {
			errs = append(errs, "stripe.secret_key is required when processor.provider is stripe")
		}
		if c.Stripe.FeeCents < 0 {
			errs = append(errs, "stripe.fee_cents must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("processor.provider %q is not supported (coinflow, stripe)", c.Processor.Provider))
	}

	switch c.Processor.Environment {
	case "sandbox", "prod":
	default:
		errs = append(errs, fmt.Sprintf("processor.environment %q must be sandbox or prod", c.Processor.Environment))
	}
	if c.Processor.FallbackFeeCents < 0 {
		errs = append(errs, "processor.fallback_fee_cents must not be negative")
	}

	if len(c.Widget.AllowedOrigins) == 0 {
		errs = append(errs, "widget.allowed_origins must list at least one origin")
	}
	for _, origin := range c.Widget.AllowedOrigins {
		if err := validateHTTPURL(origin); err != nil {
			errs = append(errs, fmt.Sprintf("widget.allowed_origins %q: %v", origin, err))
		}
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.FilePath == "" {
			errs = append(errs, "storage.file_path is required for the file backend")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "storage.postgres_url is required for the postgres backend")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			errs = append(errs, "storage.mongodb_url is required for the mongodb backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q is not supported (memory, file, postgres, mongodb)", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
	case "":
		return errors.New("missing scheme")
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// Unset values fall back to defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
