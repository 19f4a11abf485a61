package metrics

import "time"

// ObserveStorageOp records one KV operation. A nil err counts as success.
func (m *Metrics) ObserveStorageOp(operation, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StorageOpDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	if err != nil {
		m.StorageErrorsTotal.WithLabelValues(operation, backend).Inc()
	}
}

// MeasureStorageOp starts timing a KV operation; call the returned func with its error:
//
//	done := metrics.MeasureStorageOp(m, "get", "postgres")
//	value, err := kv.Get(ctx, key)
//	done(err)
func MeasureStorageOp(m *Metrics, operation, backend string) func(error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		m.ObserveStorageOp(operation, backend, time.Since(start), err)
	}
}
