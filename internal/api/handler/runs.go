package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/internal/api/response"
	"github.com/kiranshivaraju/logsweep/internal/run"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/internal/window"
)

// RunService defines the planning operations the run handlers depend on.
type RunService interface {
	Start(ctx context.Context, in run.PlanInput) (*run.Plan, error)
	Status(ctx context.Context, runID uuid.UUID) (*run.Status, error)
}

// NewCreateRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
func NewCreateRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in run.PlanInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		plan, err := svc.Start(r.Context(), in)
		if err != nil {
			switch {
			case errors.Is(err, run.ErrInvalidInput), errors.Is(err, window.ErrInvalidConfiguration):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			default:
				slog.Error("planning run", "error", err, "log_source", in.LogSource)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, plan)
	}
}

// NewRunStatusHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewRunStatusHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := runIDParam(w, r)
		if !ok {
			return
		}

		st, err := svc.Status(r.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
				return
			}
			slog.Error("reading run status", "error", err, "run_id", runID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, st)
	}
}
