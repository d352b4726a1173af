package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/internal/api/response"
	"github.com/kiranshivaraju/logsweep/internal/processor"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// WindowProcessor defines the processing operation the handler depends on.
type WindowProcessor interface {
	Process(ctx context.Context, req processor.Request) (processor.Summary, error)
}

// ResultReader reads stored window results.
type ResultReader interface {
	GetAnalysisResult(ctx context.Context, runID uuid.UUID, windowID int) (*models.AnalysisResult, error)
}

// NewProcessWindowHandler returns an http.HandlerFunc for
// POST /api/v1/runs/{runID}/windows/{windowID}/process.
//
// The body is optional. Without a log_source the run's own source is used.
func NewProcessWindowHandler(p WindowProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := runIDParam(w, r)
		if !ok {
			return
		}
		windowID, ok := windowIDParam(w, r)
		if !ok {
			return
		}

		var body struct {
			LogSource string `json:"log_source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		sum, err := p.Process(r.Context(), processor.Request{
			RunID:     runID,
			WindowID:  windowID,
			LogSource: body.LogSource,
		})
		if err != nil {
			writeProcessError(w, err)
			return
		}

		response.JSON(w, sum)
	}
}

// writeProcessError maps a processor error kind to a status and code. The
// message is the same text recorded on the window.
func writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, processor.ErrWindowNotFound):
		response.Error(w, http.StatusNotFound, "WINDOW_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, processor.ErrLogStore):
		response.Error(w, http.StatusBadGateway, "LOG_STORE_ERROR", err.Error(), nil)
	case errors.Is(err, processor.ErrInference):
		response.Error(w, http.StatusBadGateway, "INFERENCE_ERROR", err.Error(), nil)
	case errors.Is(err, processor.ErrPersistence):
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// NewGetResultHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/windows/{windowID}/result.
func NewGetResultHandler(results ResultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := runIDParam(w, r)
		if !ok {
			return
		}
		windowID, ok := windowIDParam(w, r)
		if !ok {
			return
		}

		res, err := results.GetAnalysisResult(r.Context(), runID, windowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RESULT_NOT_FOUND", "No result for this window", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, res)
	}
}
