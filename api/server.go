/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address for the rate limiter
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Secure:     Security headers (unrolled/secure)
  6. CORS:       Cross-origin requests for frontend
  7. Metrics:    Prometheus request count and duration

  POST /calculate is additionally rate limited per client IP.

ROUTES:
  /calculate, /validate/{scheme_id}, /export/{scheme_id}
  /health, /metrics
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

// RouterConfig holds the router's tunables.
type RouterConfig struct {
	AllowedOrigins []string
	// RateLimit is the number of /calculate requests per minute per IP.
	// Zero disables the limit.
	RateLimit int
	Metrics   *Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := secureMiddleware.Process(w, r); err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(cfg.Metrics.Middleware)

	// Calculation routes
	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.Limit(cfg.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/calculate", h.Calculate)
	})
	r.Get("/validate/{scheme_id}", h.Validate)
	r.Get("/export/{scheme_id}", h.Export)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Scenario routes
	r.Route("/api/scenarios", func(r chi.Router) {
		r.Get("/", h.ListScenarios)
		r.Get("/current", h.GetCurrentScenario)
		r.Post("/load", h.LoadScenario)
	})

	return r
}
