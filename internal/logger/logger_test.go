package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Service: "card-checkout", Version: "test", Environment: "dev", Output: &buf})

	log.Info().Msg("checkout.started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "card-checkout" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["message"] != "checkout.started" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	log := FromContext(context.Background())
	// Nop logger must not panic
	log.Info().Msg("ignored")
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_123")
	if got := GetRequestID(ctx); got != "req_123" {
		t.Errorf("GetRequestID = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("expected empty request id, got %q", got)
	}
}

func TestTruncateAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "short"},
		{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "9WzDXwBb...AWWM"},
	}
	for _, tt := range tests {
		if got := TruncateAddress(tt.in); got != tt.want {
			t.Errorf("TruncateAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"jane@example.com", "ja***@example.com"},
		{"jo@example.com", "***@example.com"},
		{"not-an-email", "[redacted]"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("4242424242424242"); got != "****4242" {
		t.Errorf("MaskToken = %q", got)
	}
	if got := MaskToken("42"); got != "****" {
		t.Errorf("MaskToken short = %q", got)
	}
}
