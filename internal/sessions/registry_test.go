package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/savedcards"
	"github.com/CedrosPay/cardcheckout/internal/storage"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type stubProcessor struct{ fees int64 }

func (p stubProcessor) Totals(context.Context, wallet.Identity, checkout.Subtotal) (int64, error) {
	return p.fees, nil
}

func (p stubProcessor) ChargeCard(context.Context, wallet.Identity, checkout.ChargeRequest) (checkout.ChargeResult, error) {
	return checkout.ChargeResult{}, nil
}

func newRegistry(t *testing.T) (*Registry, *metrics.Metrics) {
	t.Helper()
	kv := storage.NewMemoryKV(0, 0)
	t.Cleanup(func() { _ = kv.Close() })
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(stubProcessor{fees: 30}, savedcards.NewStore(kv, m), Config{IdleTTL: time.Minute}, m, zerolog.Nop())
	t.Cleanup(func() { _ = r.Close() })
	return r, m
}

func TestCreateInitializesWorkflow(t *testing.T) {
	r, m := newRegistry(t)

	s, err := r.Create(context.Background(), testWallet, "", checkout.Subtotal{Cents: 1500})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected session id")
	}

	v := s.Workflow.Snapshot()
	if v.State != checkout.StateIdle || v.Totals.Fees != 30 || v.Totals.Total != 1530 {
		t.Errorf("snapshot = %+v", v)
	}
	if v.Wallet != testWallet || v.Blockchain != "solana" {
		t.Errorf("identity = %s/%s", v.Wallet, v.Blockchain)
	}

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("get: %v", err)
	}
	if promtest.ToFloat64(m.SessionsActive) != 1 {
		t.Errorf("active sessions gauge = %.0f", promtest.ToFloat64(m.SessionsActive))
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	r, _ := newRegistry(t)

	if _, err := r.Create(context.Background(), "not-a-wallet", "", checkout.Subtotal{Cents: 100}); !errors.Is(err, wallet.ErrInvalidSolanaWallet) {
		t.Errorf("expected invalid wallet, got %v", err)
	}
	if _, err := r.Create(context.Background(), testWallet, "", checkout.Subtotal{Cents: 0}); !errors.Is(err, ErrInvalidSubtotal) {
		t.Errorf("expected invalid subtotal, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("no session should be stored, have %d", r.Len())
	}
}

func TestGetUnknownAndDelete(t *testing.T) {
	r, _ := newRegistry(t)

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s, _ := r.Create(context.Background(), testWallet, "solana", checkout.Subtotal{Cents: 100})
	r.Delete(s.ID)
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	r, _ := newRegistry(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	keep, _ := r.Create(context.Background(), testWallet, "", checkout.Subtotal{Cents: 100})
	drop, _ := r.Create(context.Background(), testWallet, "", checkout.Subtotal{Cents: 100})

	now = now.Add(50 * time.Second)
	if _, err := r.Get(keep.ID); err != nil {
		t.Fatalf("get keep: %v", err)
	}

	now = now.Add(30 * time.Second)
	if removed := r.sweep(); removed != 1 {
		t.Errorf("sweep removed %d, want 1", removed)
	}
	if _, err := r.Get(drop.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session should be gone, got %v", err)
	}
	if _, err := r.Get(keep.ID); err != nil {
		t.Errorf("touched session should survive: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := r.Get(keep.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session should not be returned, got %v", err)
	}
}

func TestCloseStopsSweeper(t *testing.T) {
	r := NewRegistry(stubProcessor{}, nil, Config{IdleTTL: time.Minute, CleanupInterval: 5 * time.Millisecond}, nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		_ = r.Close()
		_ = r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() timed out")
	}
}
