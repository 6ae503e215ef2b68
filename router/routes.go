package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mstgnz/gopaytr/handler"
	"github.com/mstgnz/gopaytr/infra/config"
	"github.com/mstgnz/gopaytr/infra/metrics"
	"github.com/mstgnz/gopaytr/infra/middle"
	"github.com/mstgnz/gopaytr/infra/response"
)

// Dependencies are the collaborators the routes are built from. Events,
// HTTPMetrics, MetricsHandler and RateLimiter are optional.
type Dependencies struct {
	App            *config.AppConfig
	Paytr          *config.PaytrConfig
	Payments       *handler.PaytrHandler
	Health         *handler.HealthHandler
	Events         *handler.EventsHandler
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	RateLimiter    *middle.RateLimiter
}

// New builds the HTTP router. The PayTR notification and browser return
// routes sit outside the authenticated API group since PayTR and the
// buyer's browser call them directly.
func New(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.RequestIDMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(deps.HTTPMetrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware(deps.Paytr.Routes.Path("")))

	PaytrRoutes(r, deps.Paytr.Routes, deps.Payments)

	if deps.Health != nil {
		r.Get("/health", deps.Health.CheckHealth)
	}

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(middle.IPWhitelistMiddleware(deps.App.IPWhitelist))
		if deps.RateLimiter != nil {
			r.Use(middle.RateLimitMiddleware(deps.RateLimiter))
		}
		r.Use(middle.AuthMiddleware(deps.App.APIKey))

		V1Routes(r, deps.Payments, deps.Events)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}

// PaytrRoutes registers the provider notification and browser return routes
func PaytrRoutes(r chi.Router, routes config.RouteConfig, payments *handler.PaytrHandler) {
	r.Post(routes.CallbackPath(), payments.Callback)

	r.Get(routes.SuccessPath(), payments.Success)
	r.Post(routes.SuccessPath(), payments.Success)

	r.Get(routes.FailPath(), payments.Fail)
	r.Post(routes.FailPath(), payments.Fail)
}

// V1Routes registers the authenticated API routes
func V1Routes(r chi.Router, payments *handler.PaytrHandler, events *handler.EventsHandler) {
	r.Route("/paytr", func(r chi.Router) {
		r.Post("/token", payments.RequestToken)

		if events != nil {
			r.Get("/events/{merchantOid}", events.OrderEvents)
			r.Get("/failures", events.RecentFailures)
			r.Get("/stats", events.Stats)
		}
	})
}
