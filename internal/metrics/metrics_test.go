package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	m := New(prometheus.NewRegistry())

	if m.CheckoutAttemptsTotal == nil || m.CheckoutSuccessTotal == nil || m.CheckoutFailedTotal == nil {
		t.Fatal("checkout counters should be initialized")
	}
	if m.TotalsFallbackTotal == nil || m.SavedCardsTotal == nil {
		t.Fatal("cache counters should be initialized")
	}
	if m.ProcessorCallsTotal == nil || m.ProcessorCallDuration == nil || m.ProcessorErrorsTotal == nil {
		t.Fatal("processor collectors should be initialized")
	}
}

func TestObserveCheckout(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCheckout("new_card", true, 250*time.Millisecond, 2000)
	m.ObserveCheckout("new_card", false, time.Second, 2000)

	if got := promtest.ToFloat64(m.CheckoutAttemptsTotal.WithLabelValues("new_card")); got != 2 {
		t.Errorf("attempts = %.0f, want 2", got)
	}
	if got := promtest.ToFloat64(m.CheckoutSuccessTotal.WithLabelValues("new_card")); got != 1 {
		t.Errorf("successes = %.0f, want 1", got)
	}
	if got := promtest.ToFloat64(m.CheckoutAmountTotal.WithLabelValues("new_card")); got != 2000 {
		t.Errorf("amount = %.0f, want 2000", got)
	}
}

func TestObserveFailuresAndCache(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCheckoutFailure("saved_card", "tokenization")
	m.ObserveTotalsFallback("http_status")
	m.ObserveSavedCard("duplicate")
	m.ObserveRateLimit("per_wallet")
	m.SetActiveSessions(3)

	if got := promtest.ToFloat64(m.CheckoutFailedTotal.WithLabelValues("saved_card", "tokenization")); got != 1 {
		t.Errorf("failures = %.0f", got)
	}
	if got := promtest.ToFloat64(m.TotalsFallbackTotal.WithLabelValues("http_status")); got != 1 {
		t.Errorf("fallbacks = %.0f", got)
	}
	if got := promtest.ToFloat64(m.SavedCardsTotal.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("saved card ops = %.0f", got)
	}
	if got := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("per_wallet")); got != 1 {
		t.Errorf("rate limit hits = %.0f", got)
	}
	if got := promtest.ToFloat64(m.SessionsActive); got != 3 {
		t.Errorf("sessions = %.0f", got)
	}
}

func TestObserveProcessorCallClassifiesErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProcessorCall("coinflow", "card", 10*time.Millisecond, nil)
	m.ObserveProcessorCall("coinflow", "card", 10*time.Millisecond, context.DeadlineExceeded)
	m.ObserveProcessorCall("coinflow", "totals", 10*time.Millisecond, errors.New("circuit breaker is open"))

	if got := promtest.ToFloat64(m.ProcessorCallsTotal.WithLabelValues("coinflow", "card")); got != 2 {
		t.Errorf("card calls = %.0f", got)
	}
	if got := promtest.ToFloat64(m.ProcessorErrorsTotal.WithLabelValues("coinflow", "card", "timeout")); got != 1 {
		t.Errorf("timeout errors = %.0f", got)
	}
	if got := promtest.ToFloat64(m.ProcessorErrorsTotal.WithLabelValues("coinflow", "totals", "circuit_open")); got != 1 {
		t.Errorf("circuit errors = %.0f", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCheckout("new_card", true, time.Second, 1)
	m.ObserveCheckoutFailure("new_card", "payment")
	m.ObserveTotalsFallback("network")
	m.ObserveSavedCard("add")
	m.ObserveProcessorCall("coinflow", "card", time.Second, errors.New("x"))
	m.ObserveRateLimit("global")
	m.SetActiveSessions(1)
	m.ObserveStorageOp("get", "memory", time.Millisecond, nil)
	MeasureStorageOp(m, "put", "memory")(errors.New("x"))
}

func TestObserveStorageOp(t *testing.T) {
	m := New(prometheus.NewRegistry())

	done := MeasureStorageOp(m, "put", "postgres")
	done(errors.New("connection refused"))
	m.ObserveStorageOp("get", "postgres", time.Millisecond, nil)

	if got := promtest.ToFloat64(m.StorageErrorsTotal.WithLabelValues("put", "postgres")); got != 1 {
		t.Errorf("put errors = %.0f", got)
	}
	if got := promtest.ToFloat64(m.StorageErrorsTotal.WithLabelValues("get", "postgres")); got != 0 {
		t.Errorf("get errors = %.0f", got)
	}
}
