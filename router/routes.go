package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/paypal-proxy/handler"
	"github.com/mstgnz/paypal-proxy/infra/metrics"
	"github.com/mstgnz/paypal-proxy/infra/middle"
	"github.com/mstgnz/paypal-proxy/infra/opensearch"
	"github.com/mstgnz/paypal-proxy/infra/response"
	v1 "github.com/mstgnz/paypal-proxy/router/v1"
)

// Handlers are the endpoint implementations mounted by New
type Handlers struct {
	Proxy   *handler.ProxyHandler
	Health  *handler.HealthHandler
	Logs    *handler.LogsHandler
	Metrics http.Handler
}

// Options configure the middleware chain
type Options struct {
	GatewayName    string
	AdminAPIKey    string
	IPWhitelist    []string
	AllowedOrigins []string
	RateLimiter    *middle.RateLimiter
	AuditLogger    *opensearch.Logger
	Metrics        *metrics.Metrics
}

// New builds the HTTP handler of the proxy
func New(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middle.RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Use(middle.IPWhitelistMiddleware(opts.IPWhitelist))
	if opts.RateLimiter != nil {
		r.Use(middle.RateLimitMiddleware(opts.RateLimiter))
	}
	r.Use(middle.RequestValidationMiddleware())
	r.Use(middle.MetricsMiddleware(opts.Metrics))

	if h.Health != nil {
		r.Get("/health", h.Health.CheckHealth)
	}

	if h.Metrics != nil {
		r.With(middle.AdminAuthMiddleware(opts.AdminAPIKey)).Get("/metrics", h.Metrics.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middle.ProxyLoggingMiddleware(opts.AuditLogger, opts.GatewayName))
			v1.Routes(r, h.Proxy)
		})

		if h.Logs != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middle.AdminAuthMiddleware(opts.AdminAPIKey))
				v1.AdminRoutes(r, h.Logs)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}
