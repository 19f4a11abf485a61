package coinflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/circuitbreaker"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

var testIdentity = wallet.Identity{Address: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Blockchain: "solana"}

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *circuitbreaker.Manager) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	cfg := config.ProcessorConfig{
		BaseURL:    srv.URL,
		MerchantID: "swe-challenge",
		Timeout:    config.Duration{Duration: 5 * time.Second},
	}
	return NewClient(cfg, breaker, m), m
}

func TestTotalsRequestShape(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotHeaders http.Header

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"fees": 125}`))
	}, nil)

	fees, err := client.Totals(context.Background(), testIdentity, checkout.Subtotal{Cents: 2000})
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if fees != 125 {
		t.Errorf("fees = %d, want 125", fees)
	}
	if gotPath != "/api/checkout/totals/swe-challenge" {
		t.Errorf("path = %s", gotPath)
	}
	if gotHeaders.Get("x-coinflow-auth-wallet") != testIdentity.Address {
		t.Errorf("missing wallet header")
	}
	if gotHeaders.Get("x-coinflow-auth-blockchain") != "solana" {
		t.Errorf("missing blockchain header")
	}
	subtotal, _ := gotBody["subtotal"].(map[string]any)
	if subtotal["cents"] != float64(2000) || gotBody["blockchain"] != "solana" || gotBody["wallet"] != testIdentity.Address {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestTotalsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		noFees bool
	}{
		{name: "non-2xx", status: http.StatusBadRequest, body: `{"fees": 10}`},
		{name: "missing fees", status: http.StatusOK, body: `{"total": 10}`, noFees: true},
		{name: "string fees", status: http.StatusOK, body: `{"fees": "10"}`, noFees: true},
		{name: "not json", status: http.StatusOK, body: `oops`, noFees: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := client.Totals(context.Background(), testIdentity, checkout.Subtotal{Cents: 100})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.noFees && !errors.Is(err, checkout.ErrNoFees) {
				t.Errorf("expected ErrNoFees, got %v", err)
			}
		})
	}
}

func TestChargeCardSuccess(t *testing.T) {
	var gotPath, gotAccept, gotContentType string
	var gotReq checkout.ChargeRequest

	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("accept")
		gotContentType = r.Header.Get("content-type")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"paymentId":"pay_1"}`))
	}, nil)

	req := checkout.ChargeRequest{
		Subtotal:          checkout.Subtotal{Cents: 2000},
		Authentication3DS: checkout.DefaultThreeDS,
		Card:              checkout.CardDetails{CardToken: "4242424242424242", ExpMonth: "12", ExpYear: "30"},
	}
	result, err := client.ChargeCard(context.Background(), testIdentity, req)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if string(result.Raw) != `{"paymentId":"pay_1"}` {
		t.Errorf("raw = %s", result.Raw)
	}
	if gotPath != "/api/checkout/card/swe-challenge" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAccept != "application/json" || gotContentType != "application/json" {
		t.Errorf("headers accept=%q content-type=%q", gotAccept, gotContentType)
	}
	if gotReq.Card.CardToken != "4242424242424242" || !gotReq.Authentication3DS.ConcludeChallenge || gotReq.Authentication3DS.TimeZone != -240 {
		t.Errorf("unexpected request %+v", gotReq)
	}
	if got := promtest.ToFloat64(m.ProcessorCallsTotal.WithLabelValues("coinflow", "card")); got != 1 {
		t.Errorf("processor calls = %.0f", got)
	}
}

func TestChargeCardErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "message field", status: 400, body: `{"message":"Card declined","error":"other"}`, wantMsg: "Card declined"},
		{name: "error field", status: 422, body: `{"error":"Invalid token"}`, wantMsg: "Invalid token"},
		{name: "no fields", status: 402, body: `{}`, wantMsg: "Payment failed: 402"},
		{name: "not json", status: 400, body: `<html>`, wantMsg: "Payment failed: 400"},
		{name: "server error", status: 502, body: `{"message":"Upstream down"}`, wantMsg: "Upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
			var payErr *checkout.PaymentError
			if !errors.As(err, &payErr) {
				t.Fatalf("expected PaymentError, got %v", err)
			}
			if payErr.Status != tt.status || payErr.Message != tt.wantMsg {
				t.Errorf("got status=%d message=%q", payErr.Status, payErr.Message)
			}
		})
	}
}

func TestChargeCardNetworkError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	client.baseURL = "http://127.0.0.1:1"

	_, err := client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
	if err == nil {
		t.Fatal("expected network error")
	}
	var payErr *checkout.PaymentError
	if errors.As(err, &payErr) {
		t.Fatalf("network failures should not be PaymentErrors: %v", err)
	}
}

func TestChargeCardUsesInjectedHTTPClient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, nil)
	client.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("injected client timeout not used, call took %v", elapsed)
	}
	var payErr *checkout.PaymentError
	if errors.As(err, &payErr) {
		t.Fatalf("timeouts should not be PaymentErrors: %v", err)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	breaker := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled: true,
		ProcessorAPI: circuitbreaker.BreakerConfig{
			MaxRequests:         1,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		},
	})

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, breaker)

	for i := 0; i < 2; i++ {
		_, err := client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
		var payErr *checkout.PaymentError
		if !errors.As(err, &payErr) || payErr.Status != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503 PaymentError, got %v", i, err)
		}
	}

	_, err := client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
	if !errors.Is(err, checkout.ErrProcessorUnavailable) {
		t.Fatalf("expected ErrProcessorUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker should not reach the server, calls=%d", calls.Load())
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	breaker := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled:      true,
		ProcessorAPI: circuitbreaker.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 1},
	})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"declined"}`))
	}, breaker)

	for i := 0; i < 3; i++ {
		_, _ = client.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{})
	}
	if state := breaker.State(circuitbreaker.ServiceProcessor); state != "closed" {
		t.Errorf("breaker state = %s, want closed", state)
	}
}
