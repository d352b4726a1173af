package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/logsweep/internal/api/response"
)

// Pinger is any dependency whose connectivity the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
func NewHealthHandler(store, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "store": "ok", "cache": "ok"}
		code := http.StatusOK

		if err := store.Ping(ctx); err != nil {
			status["store"] = "error"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		if err := cache.Ping(ctx); err != nil {
			status["cache"] = "error"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}

		if code != http.StatusOK {
			response.Error(w, code, "SERVICE_UNAVAILABLE", "One or more dependencies are unhealthy", status)
			return
		}
		response.JSON(w, status)
	}
}
