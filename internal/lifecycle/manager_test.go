package lifecycle

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCloseIsLIFO(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var order []string
	for _, name := range []string{"kv", "sessions", "idempotency"} {
		name := name
		m.RegisterFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := strings.Join(order, ","); got != "idempotency,sessions,kv" {
		t.Errorf("close order = %s", got)
	}

	order = nil
	_ = m.Close()
	if len(order) != 0 {
		t.Error("second Close should not close resources again")
	}
}

func TestCloseReturnsFirstErrorAndContinues(t *testing.T) {
	m := NewManager(zerolog.Nop())
	first := errors.New("first")
	closed := 0

	m.RegisterFunc("a", func() error { closed++; return errors.New("second") })
	m.RegisterFunc("b", func() error { closed++; return first })
	m.Register("nil", nil)

	if err := m.Close(); !errors.Is(err, first) {
		t.Errorf("expected first error (LIFO), got %v", err)
	}
	if closed != 2 {
		t.Errorf("closed = %d, want 2", closed)
	}
}
