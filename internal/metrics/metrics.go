package metrics

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the card checkout.
// Every Observe method is safe to call on a nil *Metrics.
type Metrics struct {
	// Checkout submission metrics
	CheckoutAttemptsTotal *prometheus.CounterVec
	CheckoutSuccessTotal  *prometheus.CounterVec
	CheckoutFailedTotal   *prometheus.CounterVec
	CheckoutAmountTotal   *prometheus.CounterVec
	CheckoutDuration      *prometheus.HistogramVec

	// Totals endpoint
	TotalsFallbackTotal *prometheus.CounterVec

	// Saved-card cache
	SavedCardsTotal *prometheus.CounterVec

	// Processor calls
	ProcessorCallsTotal   *prometheus.CounterVec
	ProcessorCallDuration *prometheus.HistogramVec
	ProcessorErrorsTotal  *prometheus.CounterVec

	// Rate limiting
	RateLimitHitsTotal *prometheus.CounterVec

	// Sessions
	SessionsActive prometheus.Gauge

	// Saved-card KV backend
	StorageOpDuration  *prometheus.HistogramVec
	StorageErrorsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on registry (DefaultRegisterer when nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		CheckoutAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_attempts_total",
				Help: "Total number of checkout submissions that reached the processor step",
			},
			[]string{"mode"},
		),
		CheckoutSuccessTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_success_total",
				Help: "Total number of successful card payments",
			},
			[]string{"mode"},
		),
		CheckoutFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_failed_total",
				Help: "Total number of failed checkout submissions by reason",
			},
			[]string{"mode", "reason"},
		),
		CheckoutAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_amount_cents_total",
				Help: "Total charged subtotal in minor currency units",
			},
			[]string{"mode"},
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_duration_seconds",
				Help:    "Time from submit to processor response",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		TotalsFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_totals_fallback_total",
				Help: "Times the fallback fee replaced the processor totals",
			},
			[]string{"reason"},
		),
		SavedCardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_saved_cards_total",
				Help: "Saved-card cache operations",
			},
			[]string{"operation"},
		),
		ProcessorCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_processor_calls_total",
				Help: "Outbound calls to the card processor",
			},
			[]string{"provider", "endpoint"},
		),
		ProcessorCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_processor_call_duration_seconds",
				Help:    "Duration of outbound processor calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "endpoint"},
		),
		ProcessorErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_processor_errors_total",
				Help: "Failed outbound processor calls by error type",
			},
			[]string{"provider", "endpoint", "error_type"},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_rate_limit_hits_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"limit_type"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "checkout_sessions_active",
				Help: "Checkout sessions currently held in memory",
			},
		),
		StorageOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_storage_op_duration_seconds",
				Help:    "Saved-card KV operation latency",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),
		StorageErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_storage_errors_total",
				Help: "Saved-card KV operations that failed",
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveCheckout records a submission that reached the processor and its outcome.
func (m *Metrics) ObserveCheckout(mode string, success bool, duration time.Duration, amountCents int64) {
	if m == nil {
		return
	}
	m.CheckoutAttemptsTotal.WithLabelValues(mode).Inc()
	if success {
		m.CheckoutSuccessTotal.WithLabelValues(mode).Inc()
		m.CheckoutAmountTotal.WithLabelValues(mode).Add(float64(amountCents))
	}
	m.CheckoutDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveCheckoutFailure records a failed submission. reason is validation, tokenization or payment.
func (m *Metrics) ObserveCheckoutFailure(mode, reason string) {
	if m == nil {
		return
	}
	m.CheckoutFailedTotal.WithLabelValues(mode, reason).Inc()
}

// ObserveTotalsFallback records that the fallback fee was used.
func (m *Metrics) ObserveTotalsFallback(reason string) {
	if m == nil {
		return
	}
	m.TotalsFallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveSavedCard records a saved-card cache operation (add, duplicate, delete, invalidate).
func (m *Metrics) ObserveSavedCard(operation string) {
	if m == nil {
		return
	}
	m.SavedCardsTotal.WithLabelValues(operation).Inc()
}

// ObserveProcessorCall records an outbound processor call.
func (m *Metrics) ObserveProcessorCall(provider, endpoint string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProcessorCallsTotal.WithLabelValues(provider, endpoint).Inc()
	m.ProcessorCallDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
	if err != nil {
		m.ProcessorErrorsTotal.WithLabelValues(provider, endpoint, classifyError(err)).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// SetActiveSessions sets the active session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func classifyError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "status"):
		return "http_status"
	default:
		return "other"
	}
}
