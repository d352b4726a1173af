package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/logsweep/internal/api/middleware"
	"github.com/kiranshivaraju/logsweep/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	// RateLimit is optional; nil disables limiting.
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	CreateRunHandler http.HandlerFunc
	RunStatusHandler http.HandlerFunc
	ProcessHandler   http.HandlerFunc
	ResultHandler    http.HandlerFunc
	MetricsHandler   http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/runs", orNotImplemented(deps.CreateRunHandler))
		r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.RunStatusHandler))
		r.Post("/api/v1/runs/{runID}/windows/{windowID}/process", orNotImplemented(deps.ProcessHandler))
		r.Get("/api/v1/runs/{runID}/windows/{windowID}/result", orNotImplemented(deps.ResultHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
