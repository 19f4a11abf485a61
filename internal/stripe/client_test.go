package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

var testIdentity = wallet.Identity{Address: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Blockchain: "solana"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.StripeConfig{SecretKey: "sk_test_123", Currency: "usd", FeeCents: 50}
	return NewClient(cfg, nil, nil).WithBackendURL(srv.URL, srv.Client())
}

func TestTotalsUsesConfiguredFee(t *testing.T) {
	c := NewClient(config.StripeConfig{FeeCents: 75}, nil, nil)
	fees, err := c.Totals(context.Background(), testIdentity, checkout.Subtotal{Cents: 1000})
	if err != nil || fees != 75 {
		t.Fatalf("fees=%d err=%v", fees, err)
	}
}

func TestChargeCardCreatesPaymentIntent(t *testing.T) {
	var form url.Values
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":2050}`))
	})

	req := checkout.ChargeRequest{
		Subtotal: checkout.Subtotal{Cents: 2000},
		Card:     checkout.CardDetails{CardToken: "pm_card_visa", Email: "ada@example.com"},
	}
	result, err := c.ChargeCard(context.Background(), testIdentity, req)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if len(result.Raw) == 0 {
		t.Error("expected raw response")
	}
	if path != "/v1/payment_intents" {
		t.Errorf("path = %s", path)
	}
	if form.Get("amount") != "2050" || form.Get("currency") != "usd" {
		t.Errorf("amount/currency = %s/%s", form.Get("amount"), form.Get("currency"))
	}
	if form.Get("payment_method") != "pm_card_visa" || form.Get("confirm") != "true" {
		t.Errorf("unexpected form %v", form)
	}
	if form.Get("metadata[wallet]") != testIdentity.Address {
		t.Errorf("wallet metadata = %q", form.Get("metadata[wallet]"))
	}
}

func TestChargeCardDecline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := c.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{Card: checkout.CardDetails{CardToken: "pm_x"}})
	var payErr *checkout.PaymentError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	if payErr.Status != http.StatusPaymentRequired || payErr.Message != "Your card was declined." {
		t.Errorf("got %+v", payErr)
	}
}

func TestChargeCardRequiresAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"requires_action"}`))
	})

	_, err := c.ChargeCard(context.Background(), testIdentity, checkout.ChargeRequest{Card: checkout.CardDetails{CardToken: "pm_x"}})
	var payErr *checkout.PaymentError
	if !errors.As(err, &payErr) || payErr.Message != "Payment not completed: requires_action" {
		t.Fatalf("unexpected error %v", err)
	}
}
