package lifecycle

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Manager closes registered resources in reverse registration order.
type Manager struct {
	mu        sync.Mutex
	log       zerolog.Logger
	resources []resource
}

type resource struct {
	name   string
	closer io.Closer
}

// NewManager creates a manager that logs close failures to log.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Register adds a resource. Nil closers are ignored.
func (m *Manager) Register(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, closer: closer})
}

// RegisterFunc registers fn as a closer.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close closes every resource (LIFO), logs each failure and returns the first.
// Resources are forgotten afterwards, so a second Close is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	resources := m.resources
	m.resources = nil
	m.mu.Unlock()

	var firstErr error
	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]
		if err := res.closer.Close(); err != nil {
			m.log.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.log.Debug().Str("resource", res.name).Msg("lifecycle.resource_closed")
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
