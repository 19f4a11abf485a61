// Package tokenization adapts the hosted card iframe's token handle.
//
// Card data never reaches this service. The iframe exchanges it for a token in
// the browser; the backend only ever sees that token.
package tokenization

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable means no token source is mounted or ready.
var ErrUnavailable = errors.New("tokenization unavailable")

// Token is what the iframe returns from getToken.
type Token struct {
	Token           string `json:"token"`
	TokenHMAC       string `json:"tokenHMAC,omitempty"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
}

// Handle is a mounted token source.
type Handle interface {
	GetToken(ctx context.Context) (Token, error)
}

// Provider is the capability the checkout workflow depends on.
type Provider interface {
	RetrieveToken(ctx context.Context) (Token, error)
}

// Adapter holds an optional Handle. The zero value is unmounted.
type Adapter struct {
	mu     sync.RWMutex
	handle Handle
}

// NewAdapter returns an adapter mounted on h (which may be nil).
func NewAdapter(h Handle) *Adapter {
	return &Adapter{handle: h}
}

// Mount replaces the current handle.
func (a *Adapter) Mount(h Handle) {
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()
}

// Unmount clears the handle.
func (a *Adapter) Unmount() {
	a.Mount(nil)
}

// Mounted reports whether a handle is present. A nil *Adapter is never mounted.
func (a *Adapter) Mounted() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handle != nil
}

// RetrieveToken asks the mounted handle for a token.
func (a *Adapter) RetrieveToken(ctx context.Context) (Token, error) {
	if a == nil {
		return Token{}, ErrUnavailable
	}
	a.mu.RLock()
	h := a.handle
	a.mu.RUnlock()
	if h == nil {
		return Token{}, ErrUnavailable
	}
	return h.GetToken(ctx)
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context) (Token, error)

func (f HandleFunc) GetToken(ctx context.Context) (Token, error) { return f(ctx) }

type submitted struct {
	token Token
}

// Submitted returns a handle that yields a token the browser already collected.
func Submitted(token Token) Handle {
	return submitted{token: token}
}

func (s submitted) GetToken(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if s.token.Token == "" {
		return Token{}, ErrUnavailable
	}
	return s.token, nil
}

// IsMounted reports whether p can currently produce a token. Providers other
// than *Adapter are considered mounted when non-nil.
func IsMounted(p Provider) bool {
	if p == nil {
		return false
	}
	if m, ok := p.(interface{ Mounted() bool }); ok {
		return m.Mounted()
	}
	return true
}
