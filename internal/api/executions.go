package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Execution listing limits.
const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 200
)

// handleListExecutions returns execution history for a flow, newest first.
//
// Query parameters:
//   - limit: maximum number of records (default 50, max 200)
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	// Verify the flow exists so an unknown ID is 404, not an empty list.
	if _, err := s.flows.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		if parsed > maxExecutionLimit {
			parsed = maxExecutionLimit
		}
		limit = parsed
	}

	executions, err := s.flows.ListExecutions(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "count": len(executions)})
}

// handleGetExecution returns a single execution record with its per-step
// breakdown.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid execution ID")
		return
	}

	exec, err := s.flows.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, flow.ErrExecutionNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		writeInternalError(w, "failed to get execution")
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

// handleListLearnedScreens returns the UI snapshots recorded for an
// execution that ran in learn mode.
func (s *Server) handleListLearnedScreens(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid execution ID")
		return
	}

	if _, err := s.flows.GetExecution(r.Context(), id); err != nil {
		if errors.Is(err, flow.ErrExecutionNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		writeInternalError(w, "failed to get execution")
		return
	}

	screens, err := s.flows.ListLearnedScreens(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list learned screens")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"screens": screens, "count": len(screens)})
}
