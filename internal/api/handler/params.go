// Package handler implements the HTTP endpoints for planning runs and
// processing their windows.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/internal/api/response"
)

// runIDParam parses {runID}. On failure it writes a 400 and returns false.
func runIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// windowIDParam parses {windowID}. On failure it writes a 400 and returns false.
func windowIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "windowID"))
	if err != nil || id < 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "windowID must be a non-negative integer", nil)
		return 0, false
	}
	return id, true
}
