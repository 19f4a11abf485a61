// Package sessions holds one checkout workflow per connected wallet session.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("sessions: not found")

// ErrInvalidSubtotal is returned when the subtotal is not positive.
var ErrInvalidSubtotal = errors.New("sessions: subtotal must be positive")

// Config controls session lifetime.
type Config struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	FallbackFee     int64
}

// Session is a checkout bound to one wallet.
type Session struct {
	ID        string
	Workflow  *checkout.Workflow
	CreatedAt time.Time

	mu          sync.Mutex
	lastTouched time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastTouched = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

// Registry creates, finds and expires sessions.
type Registry struct {
	processor checkout.Processor
	cards     checkout.CardStore
	cfg       Config
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewRegistry starts a registry and its idle sweeper.
func NewRegistry(processor checkout.Processor, cards checkout.CardStore, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.FallbackFee <= 0 {
		cfg.FallbackFee = checkout.DefaultFallbackFee
	}
	r := &Registry{
		processor:   processor,
		cards:       cards,
		cfg:         cfg,
		metrics:     m,
		log:         log,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go r.cleanupLoop(cfg.CleanupInterval)
	} else {
		close(r.cleanupDone)
	}
	return r
}

// Create validates the wallet, builds and initializes a workflow and returns the new session.
func (r *Registry) Create(ctx context.Context, address, blockchain string, subtotal checkout.Subtotal) (*Session, error) {
	id, err := wallet.Parse(address, blockchain)
	if err != nil {
		return nil, err
	}
	if subtotal.Cents <= 0 {
		return nil, ErrInvalidSubtotal
	}

	sessionID := uuid.NewString()
	log := r.log.With().Str("session_id", sessionID).Logger()
	wf := checkout.New(checkout.Deps{
		Processor: r.processor,
		Cards:     r.cards,
		Identity:  id,
		Subtotal:  subtotal,
		Logger:    log,
	},
		checkout.WithMetrics(r.metrics),
		checkout.WithFallbackFee(r.cfg.FallbackFee),
		checkout.WithOnSuccess(func() {
			log.Info().Str("wallet", logger.TruncateAddress(id.Address)).Msg("session.checkout_completed")
		}),
	)

	if err := wf.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize checkout: %w", err)
	}

	now := r.now()
	s := &Session{ID: sessionID, Workflow: wf, CreatedAt: now, lastTouched: now}

	r.mu.Lock()
	r.sessions[sessionID] = s
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(count)

	log.Info().
		Str("wallet", logger.TruncateAddress(id.Address)).
		Int64("subtotal_cents", subtotal.Cents).
		Msg("session.created")
	return s, nil
}

// Get returns the session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	now := r.now()
	if now.Sub(s.idleSince()) >= r.cfg.IdleTTL {
		r.Delete(id)
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete removes a session. Unknown IDs are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(count)
}

// Len returns the number of held sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the sweeper. Safe to call more than once.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() { close(r.stopCleanup) })
	<-r.cleanupDone
	return nil
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(r.cleanupDone)

	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				r.log.Debug().Int("expired", n).Msg("session.swept")
			}
		}
	}
}

// sweep drops idle sessions and returns how many were removed. Sessions with
// a payment in flight are kept.
func (r *Registry) sweep() int {
	now := r.now()
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) < r.cfg.IdleTTL {
			continue
		}
		if s.Workflow.State() == checkout.StateProcessing {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if removed > 0 {
		r.metrics.SetActiveSessions(count)
	}
	return removed
}
