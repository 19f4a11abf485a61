package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
)

// Config holds the three rate limiting tiers.
type Config struct {
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	// Per-wallet limits key on the X-Wallet header or ?wallet=, falling back to IP.
	PerWalletEnabled bool
	PerWalletLimit   int
	PerWalletWindow  time.Duration

	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	Metrics *metrics.Metrics
}

type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns limits that stop obvious abuse of the checkout API.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  time.Minute,

		PerWalletEnabled: true,
		PerWalletLimit:   60,
		PerWalletWindow:  time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,
	}
}

// FromConfig maps application config onto Config.
func FromConfig(cfg config.RateLimitConfig, m *metrics.Metrics) Config {
	return Config{
		GlobalEnabled:    cfg.GlobalEnabled,
		GlobalLimit:      cfg.GlobalLimit,
		GlobalWindow:     cfg.GlobalWindow.Duration,
		PerWalletEnabled: cfg.PerWalletEnabled,
		PerWalletLimit:   cfg.PerWalletLimit,
		PerWalletWindow:  cfg.PerWalletWindow.Duration,
		PerIPEnabled:     cfg.PerIPEnabled,
		PerIPLimit:       cfg.PerIPLimit,
		PerIPWindow:      cfg.PerIPWindow.Duration,
		Metrics:          m,
	}
}

func limitHandler(limitType string, window time.Duration, m *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	retryAfter := int(window.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	var message string
	switch limitType {
	case "global":
		message = "Global rate limit exceeded. Please try again later."
	case "per_wallet":
		message = "Too many checkout requests for this wallet. Please try again later."
	case "per_ip":
		message = "IP rate limit exceeded. Please try again later."
	default:
		message = "Rate limit exceeded. Please try again later."
	}

	return func(w http.ResponseWriter, r *http.Request) {
		m.ObserveRateLimit(limitType)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: retryAfter,
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// GlobalLimiter limits all traffic together.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return passthrough
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithKeyFuncs(func(*http.Request) (string, error) { return "global", nil }),
		httprate.WithLimitHandler(limitHandler("global", cfg.GlobalWindow, cfg.Metrics)),
	)
}

// WalletLimiter limits each paying wallet.
func WalletLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerWalletEnabled {
		return passthrough
	}
	return httprate.Limit(
		cfg.PerWalletLimit,
		cfg.PerWalletWindow,
		httprate.WithKeyFuncs(walletKey),
		httprate.WithLimitHandler(limitHandler("per_wallet", cfg.PerWalletWindow, cfg.Metrics)),
	)
}

// IPLimiter limits each client IP.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return passthrough
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler("per_ip", cfg.PerIPWindow, cfg.Metrics)),
	)
}

func walletKey(r *http.Request) (string, error) {
	if wallet := WalletFromRequest(r); wallet != "" {
		return "wallet:" + wallet, nil
	}
	return httprate.KeyByIP(r)
}

// WalletFromRequest returns the wallet named by the X-Wallet header or the
// wallet query parameter.
func WalletFromRequest(r *http.Request) string {
	if wallet := r.Header.Get("X-Wallet"); wallet != "" {
		return wallet
	}
	return r.URL.Query().Get("wallet")
}
