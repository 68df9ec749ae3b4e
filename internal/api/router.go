package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/circuitbreaker"
	"github.com/lalithlochan/birthdays/internal/metrics"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

type RouterOptions struct {
	Limiter      RateLimiter // nil disables rate limiting
	HealthChecks map[string]HealthCheck
	Breakers     []*circuitbreaker.CircuitBreaker
	Timeout      time.Duration
}

// NewRouter wires middleware and routes around h
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) http.Handler {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(logger))

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.Limiter, logger, IPKeyFunc))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})

		r.Get("/birthday-notifications", h.ListNotifications)
		r.Get("/birthday-notifications/{id}", h.GetNotification)
	})

	r.Get("/health", healthHandler(opts.HealthChecks, opts.Breakers))
	r.Handle("/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, ErrorResponse{
			Type:   "not_found",
			Title:  "Not Found",
			Status: http.StatusNotFound,
			Detail: "Cannot " + r.Method + " " + r.URL.Path,
		})
	})

	return r
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Checks   map[string]string      `json:"checks,omitempty"`
	Breakers []circuitbreaker.Stats `json:"breakers,omitempty"`
}

// healthHandler reports 503 when any dependency check fails. Open breakers
// are reported but do not fail the check.
func healthHandler(checks map[string]HealthCheck, breakers []*circuitbreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK

		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		for _, b := range breakers {
			resp.Breakers = append(resp.Breakers, b.Stats())
		}

		writeJSON(w, status, resp)
	}
}
