package storage

import (
	"context"
	"errors"

	"github.com/CedrosPay/cardcheckout/internal/metrics"
)

// InstrumentedKV records latency and failures of the wrapped KV. A miss
// (ErrNotFound) is not a failure.
type InstrumentedKV struct {
	next    KV
	metrics *metrics.Metrics
	backend string
}

// Instrument wraps kv. A nil m returns kv unchanged.
func Instrument(kv KV, m *metrics.Metrics, backend string) KV {
	if m == nil {
		return kv
	}
	if backend == "" {
		backend = "memory"
	}
	return &InstrumentedKV{next: kv, metrics: m, backend: backend}
}

func (k *InstrumentedKV) Get(ctx context.Context, key string) ([]byte, error) {
	done := metrics.MeasureStorageOp(k.metrics, "get", k.backend)
	value, err := k.next.Get(ctx, key)
	done(failure(err))
	return value, err
}

func (k *InstrumentedKV) Put(ctx context.Context, key string, value []byte) error {
	done := metrics.MeasureStorageOp(k.metrics, "put", k.backend)
	err := k.next.Put(ctx, key, value)
	done(err)
	return err
}

func (k *InstrumentedKV) Delete(ctx context.Context, key string) error {
	done := metrics.MeasureStorageOp(k.metrics, "delete", k.backend)
	err := k.next.Delete(ctx, key)
	done(failure(err))
	return err
}

func (k *InstrumentedKV) Close() error {
	return k.next.Close()
}

func failure(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
