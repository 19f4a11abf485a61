package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_MissingMerchant(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err == nil {
		t.Fatal("expected error when merchant id is missing")
	}
	if cfg != nil {
		t.Fatal("expected nil config when validation fails")
	}
	if !strings.Contains(err.Error(), "processor.merchant_id is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_ValidMinimal(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKOUT_PROCESSOR_MERCHANT_ID", "swe-challenge")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Processor.Provider != "coinflow" {
		t.Errorf("provider = %q", cfg.Processor.Provider)
	}
	if cfg.Processor.FallbackFeeCents != 50 {
		t.Errorf("fallback fee = %d, want 50", cfg.Processor.FallbackFeeCents)
	}
	if cfg.Processor.Blockchain != "solana" {
		t.Errorf("blockchain = %q", cfg.Processor.Blockchain)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
	if len(cfg.Server.CORSAllowedOrigins) != 0 {
		t.Errorf("CORS origins should stay unset so the widget allow-list applies, got %v", cfg.Server.CORSAllowedOrigins)
	}
	if len(cfg.Widget.AllowedOrigins) != 3 {
		t.Errorf("widget origins = %v", cfg.Widget.AllowedOrigins)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadConfig_FromYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yaml")
	yamlBody := `
server:
  address: ":9090"
  route_prefix: "api"
processor:
  merchant_id: "acme"
  base_url: "https://api.coinflow.cash/"
  environment: "prod"
  fallback_fee_cents: 75
  timeout: 10
widget:
  allowed_origins: ["https://shop.example.com"]
  styles:
    base: "color: red;"
storage:
  backend: file
  file_path: ` + filepath.Join(dir, "slots.json") + `
sessions:
  idle_ttl: 5m
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHECKOUT_ROUTE_PREFIX", "checkout/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Server.RoutePrefix != "/checkout" {
		t.Errorf("env override of route prefix not normalized: %q", cfg.Server.RoutePrefix)
	}
	if cfg.Processor.BaseURL != "https://api.coinflow.cash" {
		t.Errorf("base url trailing slash not trimmed: %q", cfg.Processor.BaseURL)
	}
	if cfg.Processor.Timeout.Duration != 10*time.Second {
		t.Errorf("numeric timeout should be seconds, got %v", cfg.Processor.Timeout.Duration)
	}
	if cfg.Processor.FallbackFeeCents != 75 {
		t.Errorf("fallback fee = %d", cfg.Processor.FallbackFeeCents)
	}
	if cfg.Widget.Styles.Base != "color: red;" {
		t.Errorf("style override = %q", cfg.Widget.Styles.Base)
	}
	if cfg.Sessions.IdleTTL.Duration != 5*time.Minute {
		t.Errorf("idle ttl = %v", cfg.Sessions.IdleTTL.Duration)
	}
	if len(cfg.Widget.AllowedOrigins) != 1 || cfg.Widget.AllowedOrigins[0] != "https://shop.example.com" {
		t.Errorf("widget origins = %v", cfg.Widget.AllowedOrigins)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "unknown provider",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_PROVIDER": "paypal",
			},
			wantErr: `processor.provider "paypal" is not supported`,
		},
		{
			name: "stripe without key",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_PROVIDER": "stripe",
			},
			wantErr: "stripe.secret_key is required",
		},
		{
			name: "bad base url",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_MERCHANT_ID": "acme",
				"CHECKOUT_PROCESSOR_BASE_URL":    "ftp://coinflow",
			},
			wantErr: "processor.base_url",
		},
		{
			name: "bad origin",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_MERCHANT_ID":  "acme",
				"CHECKOUT_WIDGET_ALLOWED_ORIGINS": "localhost:3000",
			},
			wantErr: "widget.allowed_origins",
		},
		{
			name: "postgres without url",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_MERCHANT_ID": "acme",
				"CHECKOUT_STORAGE_BACKEND":       "postgres",
			},
			wantErr: "storage.postgres_url is required",
		},
		{
			name: "unknown environment",
			env: map[string]string{
				"CHECKOUT_PROCESSOR_MERCHANT_ID": "acme",
				"CHECKOUT_PROCESSOR_ENVIRONMENT": "staging",
			},
			wantErr: "processor.environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestEnvListParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKOUT_PROCESSOR_MERCHANT_ID", "acme")
	t.Setenv("CHECKOUT_WIDGET_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CHECKOUT_CORS_ALLOWED_ORIGINS", "https://admin.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Widget.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.Widget.AllowedOrigins)
	}
	if len(cfg.Server.CORSAllowedOrigins) != 1 || cfg.Server.CORSAllowedOrigins[0] != "https://admin.example.com" {
		t.Errorf("explicit CORS origins should win, got %v", cfg.Server.CORSAllowedOrigins)
	}
}

func TestNormalizeRoutePrefix(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"api":       "/api",
		"/api/":     "/api",
		" checkout": "/checkout",
	}
	for in, want := range tests {
		if got := normalizeRoutePrefix(in); got != want {
			t.Errorf("normalizeRoutePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

// clearEnv blanks every CHECKOUT_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "CHECKOUT_") {
			t.Setenv(key, "")
		}
	}
}
