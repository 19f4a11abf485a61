// Package cardcheckout assembles the card checkout service for embedding in
// another chi router or for standalone serving.
package cardcheckout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/circuitbreaker"
	"github.com/CedrosPay/cardcheckout/internal/coinflow"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/httpserver"
	"github.com/CedrosPay/cardcheckout/internal/idempotency"
	"github.com/CedrosPay/cardcheckout/internal/lifecycle"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/savedcards"
	"github.com/CedrosPay/cardcheckout/internal/sessions"
	"github.com/CedrosPay/cardcheckout/internal/storage"
	stripesvc "github.com/CedrosPay/cardcheckout/internal/stripe"
	"github.com/CedrosPay/cardcheckout/internal/widget"
)

// App wires the checkout components.
type App struct {
	Config      *config.Config
	KV          storage.KV
	Processor   checkout.Processor
	SavedCards  *savedcards.Store
	Sessions    *sessions.Registry
	Idempotency idempotency.Store
	Breakers    *circuitbreaker.Manager
	Widget      widget.Config

	router          chi.Router
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	kv         storage.KV
	processor  checkout.Processor
	router     chi.Router
	logger     *zerolog.Logger
	registerer prometheus.Registerer
}

// WithKV sets a custom saved-card backend. The caller keeps ownership.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithProcessor replaces the configured card processor.
func WithProcessor(p checkout.Processor) Option {
	return func(o *options) { o.processor = p }
}

// WithRouter registers routes onto an existing chi.Router.
func WithRouter(router chi.Router) Option {
	return func(o *options) { o.router = router }
}

// WithLogger overrides the logger built from cfg.Logging.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithRegisterer registers metrics somewhere other than the default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// NewApp assembles the service.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("cardcheckout: config required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "card-checkout",
		Environment: cfg.Logging.Environment,
	})
	if o.logger != nil {
		appLogger = *o.logger
	}

	app := &App{
		Config:          cfg,
		logger:          appLogger,
		resourceManager: lifecycle.NewManager(appLogger),
	}

	registerer := o.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	app.metrics = metrics.New(registerer)
	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
	app.Widget = widget.FromConfig(cfg)

	if o.kv != nil {
		app.KV = o.kv
	} else {
		kv, err := storage.NewKV(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		app.KV = storage.Instrument(kv, app.metrics, cfg.Storage.Backend)
		app.resourceManager.Register("storage", app.KV)
		if cfg.Storage.Backend == "memory" {
			appLogger.Warn().Msg("cardcheckout.memory_storage: saved cards are lost on restart")
		}
	}

	if o.processor != nil {
		app.Processor = o.processor
	} else {
		app.Processor = newProcessor(cfg, app.Breakers, app.metrics)
	}

	app.SavedCards = savedcards.NewStore(app.KV, app.metrics)

	app.Sessions = sessions.NewRegistry(app.Processor, app.SavedCards, sessions.Config{
		IdleTTL:         cfg.Sessions.IdleTTL.Duration,
		CleanupInterval: cfg.Sessions.CleanupInterval.Duration,
		FallbackFee:     cfg.Processor.FallbackFeeCents,
	}, app.metrics, appLogger)
	app.resourceManager.Register("sessions", app.Sessions)

	// Durable backends also keep idempotent submit results across restarts.
	if cfg.Storage.Backend == "memory" && o.kv == nil {
		app.Idempotency = idempotency.NewMemoryStore(idempotency.DefaultMaxEntries, cfg.Storage.CleanupInterval.Duration)
	} else {
		app.Idempotency = idempotency.NewKVStore(app.KV)
	}
	app.resourceManager.Register("idempotency-store", app.Idempotency)

	if o.router != nil {
		app.router = o.router
	} else {
		app.router = chi.NewRouter()
	}
	httpserver.ConfigureRouter(app.router, cfg, app.httpDeps(), appLogger)

	appLogger.Info().
		Str("provider", cfg.Processor.Provider).
		Str("storage", cfg.Storage.Backend).
		Str("environment", cfg.Processor.Environment).
		Msg("cardcheckout.initialized")
	return app, nil
}

func newProcessor(cfg *config.Config, breakers *circuitbreaker.Manager, m *metrics.Metrics) checkout.Processor {
	if cfg.Processor.Provider == config.ProviderStripe {
		return stripesvc.NewClient(cfg.Stripe, breakers, m)
	}
	return coinflow.NewClient(cfg.Processor, breakers, m)
}

func (a *App) httpDeps() httpserver.Deps {
	return httpserver.Deps{
		Sessions:    a.Sessions,
		Widget:      a.Widget,
		Breakers:    a.Breakers,
		Idempotency: a.Idempotency,
		Metrics:     a.metrics,
	}
}

// Router returns the chi router with checkout routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// Close releases owned resources in reverse order of creation.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// RegisterRoutes attaches checkout endpoints to router using an existing App.
func RegisterRoutes(router chi.Router, app *App) {
	if router == nil || app == nil {
		return
	}
	httpserver.ConfigureRouter(router, app.Config, app.httpDeps(), app.logger)
}

// NewHandler constructs an App and returns its handler and a shutdown func.
func NewHandler(cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration for embedders.
type Config = config.Config

// LoadConfig wraps the internal loader for embedders.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
