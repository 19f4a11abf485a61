package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.GlobalEnabled || cfg.GlobalLimit != 1000 {
		t.Errorf("unexpected global defaults %+v", cfg)
	}
	if !cfg.PerWalletEnabled || cfg.PerWalletLimit != 60 {
		t.Errorf("unexpected wallet defaults %+v", cfg)
	}
	if !cfg.PerIPEnabled || cfg.PerIPLimit != 120 {
		t.Errorf("unexpected ip defaults %+v", cfg)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		PerWalletEnabled: true,
		PerWalletLimit:   7,
		PerWalletWindow:  config.Duration{Duration: 30 * time.Second},
	}, nil)
	if cfg.GlobalEnabled || !cfg.PerWalletEnabled || cfg.PerWalletLimit != 7 || cfg.PerWalletWindow != 30*time.Second {
		t.Errorf("unexpected mapping %+v", cfg)
	}
}

func TestGlobalLimiter_Disabled(t *testing.T) {
	handler := GlobalLimiter(Config{})(okHandler())
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestGlobalLimiter_EnforcesLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	handler := GlobalLimiter(Config{GlobalEnabled: true, GlobalLimit: 3, GlobalWindow: time.Minute, Metrics: m})(okHandler())

	var limited *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0." + string(rune('1'+i)) + ":1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if i < 3 && w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		limited = w
	}

	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", limited.Code)
	}
	if limited.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", limited.Header().Get("Retry-After"))
	}
	var body rateLimitResponse
	if err := json.Unmarshal(limited.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "rate_limit_exceeded" || body.RetryAfterSeconds != 60 {
		t.Errorf("unexpected body %+v", body)
	}
	if got := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("global")); got != 1 {
		t.Errorf("rate limit hits = %.0f", got)
	}
}

func TestWalletLimiter_SeparatesWallets(t *testing.T) {
	handler := WalletLimiter(Config{PerWalletEnabled: true, PerWalletLimit: 2, PerWalletWindow: time.Minute})(okHandler())

	send := func(wallet string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout/v1/sessions", nil)
		req.Header.Set("X-Wallet", wallet)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("walletA"); code != http.StatusOK {
			t.Fatalf("walletA request %d: %d", i, code)
		}
	}
	if code := send("walletA"); code != http.StatusTooManyRequests {
		t.Errorf("walletA should be limited, got %d", code)
	}
	if code := send("walletB"); code != http.StatusOK {
		t.Errorf("walletB should not be affected, got %d", code)
	}
}

func TestWalletFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?wallet=fromQuery", nil)
	if got := WalletFromRequest(req); got != "fromQuery" {
		t.Errorf("got %q", got)
	}
	req.Header.Set("X-Wallet", "fromHeader")
	if got := WalletFromRequest(req); got != "fromHeader" {
		t.Errorf("header should win, got %q", got)
	}
}
