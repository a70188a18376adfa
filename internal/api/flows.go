package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// handleListFlows returns all flows, optionally filtered by device.
//
// Query parameters:
//   - device_id: filter by device
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		if len(deviceID) > maxQueryParamLen {
			writeBadRequest(w, "device_id exceeds maximum length")
			return
		}
		flows, err := s.flows.ListByDevice(ctx, deviceID)
		if err != nil {
			writeInternalError(w, "failed to list flows")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flows": flows, "count": len(flows)})
		return
	}

	flows, err := s.flows.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list flows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": flows, "count": len(flows)})
}

// handleGetFlow returns a single flow by ID.
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	def, err := s.flows.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// handleCreateFlow creates a new flow definition.
func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var def flow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.flows.Create(r.Context(), &def); err != nil {
		switch {
		case errors.Is(err, flow.ErrInvalidDefinition),
			errors.Is(err, flow.ErrInvalidStep),
			errors.Is(err, flow.ErrUnknownStepType):
			writeBadRequest(w, err.Error())
		case errors.Is(err, flow.ErrExists):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to create flow")
		}
		return
	}

	if s.scheduler != nil {
		s.scheduler.UpsertFlow(&def)
	}

	writeJSON(w, http.StatusCreated, def)
}

// handleUpdateFlow replaces a flow definition.
//
// Steps are replaced wholesale rather than patched; partial step edits
// would leave the recorded sequence in an inconsistent state.
func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	var def flow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	def.ID = id // Ensure ID cannot be changed

	if err := s.flows.Update(r.Context(), &def); err != nil {
		switch {
		case errors.Is(err, flow.ErrNotFound):
			writeNotFound(w, "flow not found")
		case errors.Is(err, flow.ErrInvalidDefinition),
			errors.Is(err, flow.ErrInvalidStep),
			errors.Is(err, flow.ErrUnknownStepType):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update flow")
		}
		return
	}

	if s.scheduler != nil {
		s.scheduler.UpsertFlow(&def)
	}

	writeJSON(w, http.StatusOK, def)
}

// handleDeleteFlow removes a flow by ID.
func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	// Look up the device first so the scheduler entry can be removed.
	def, err := s.flows.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	if err := s.flows.Delete(r.Context(), id); err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to delete flow")
		return
	}

	if s.scheduler != nil {
		s.scheduler.RemoveFlow(def.DeviceID, id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// executeRequest is the request body for POST /flows/{id}/execute.
// Modes, when present, replace the flow's default modes for this run.
type executeRequest struct {
	Modes *flow.Modes `json:"modes"`
}

// handleExecuteFlow runs a flow synchronously and returns the execution
// result. A busy device yields 409 immediately rather than queueing.
func (s *Server) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	var req executeRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	def, err := s.flows.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	modes := def.DefaultModes
	if req.Modes != nil {
		modes = *req.Modes
	}

	result, err := s.runner.Execute(r.Context(), def.DeviceID, id, executor.Options{
		Modes:       modes,
		TriggeredBy: "api",
	})
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrDeviceBusy):
			writeConflict(w, "device is busy with another execution")
		case errors.Is(err, executor.ErrFlowDisabled):
			writeConflict(w, "flow is disabled")
		case errors.Is(err, flow.ErrNotFound):
			writeNotFound(w, "flow not found")
		case errors.Is(err, executor.ErrDeviceMismatch):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("flow execution failed", "flow_id", id, "error", err)
			writeInternalError(w, "flow execution failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
