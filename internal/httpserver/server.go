package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/circuitbreaker"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/idempotency"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/ratelimit"
	"github.com/CedrosPay/cardcheckout/internal/sessions"
	"github.com/CedrosPay/cardcheckout/internal/widget"
)

var serverStartTime = time.Now()

// Deps are the services behind the HTTP API.
type Deps struct {
	Sessions    *sessions.Registry
	Widget      widget.Config
	Breakers    *circuitbreaker.Manager
	Idempotency idempotency.Store
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type handlers struct {
	cfg      *config.Config
	sessions *sessions.Registry
	widget   widget.Config
	breakers *circuitbreaker.Manager
	service  circuitbreaker.ServiceType
}

// ConfigureRouter attaches the checkout routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	h := handlers{
		cfg:      cfg,
		sessions: deps.Sessions,
		widget:   deps.Widget,
		breakers: deps.Breakers,
		service:  breakerService(cfg.Processor.Provider),
	}

	corsOpts := cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Idempotency-Key", "X-Wallet", "X-Request-ID"},
		ExposedHeaders:   []string{"Location", "X-Request-ID", idempotency.HeaderReplay},
		AllowCredentials: false,
		MaxAge:           300,
	}
	// Without an explicit list, browsers are trusted on the widget allow-list.
	if len(corsOpts.AllowedOrigins) == 0 && len(deps.Widget.Origins) > 0 {
		widgetCfg := deps.Widget
		corsOpts.AllowOriginFunc = func(_ *http.Request, origin string) bool {
			return widgetCfg.OriginAllowed(origin)
		}
	}
	if len(corsOpts.AllowedOrigins) > 0 || corsOpts.AllowOriginFunc != nil {
		router.Use(cors.New(corsOpts).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	limits := ratelimit.FromConfig(cfg.RateLimit, deps.Metrics)
	router.Use(ratelimit.GlobalLimiter(limits))
	router.Use(ratelimit.IPLimiter(limits))
	router.Use(ratelimit.WalletLimiter(limits))

	prefix := cfg.Server.RoutePrefix

	metricsHandler := promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}

	// Lightweight endpoints.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/checkout-health", h.health)
		r.Get(prefix+"/checkout/v1/widget", h.widgetConfig)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", metricsHandler)
	})

	idempotencyTTL := cfg.Sessions.IdempotencyTTL.Duration
	submitTimeout := cfg.Processor.Timeout.Duration + 15*time.Second

	// Session endpoints call the processor (totals on create, charge on submit).
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(submitTimeout))
		r.Route(prefix+"/checkout/v1/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Post("/new-card", h.setUseNewCard)
				r.Post("/cards/{cardID}/select", h.selectCard)
				r.Delete("/cards/{cardID}", h.deleteCard)
				r.With(idempotency.Middleware(deps.Idempotency, idempotencyTTL)).Post("/submit", h.submit)
			})
		})
	})
}

func breakerService(provider string) circuitbreaker.ServiceType {
	if provider == config.ProviderStripe {
		return circuitbreaker.ServiceStripe
	}
	return circuitbreaker.ServiceProcessor
}
