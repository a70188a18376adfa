package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

// Drift history listing limits.
const (
	defaultDriftLimit = 10
	maxDriftLimit     = 100
)

// handleListSensors returns all sensors.
func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.sensors.ListSensors(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list sensors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": sensors, "count": len(sensors)})
}

// handleListFlowSensors returns the sensors captured by a specific flow.
func (s *Server) handleListFlowSensors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid flow ID")
		return
	}

	if _, err := s.flows.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	sensors, err := s.sensors.ListByFlow(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list sensors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": sensors, "count": len(sensors)})
}

// handleGetSensor returns a single sensor by ID, including its last
// captured value and bounds repair timestamps.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid sensor ID")
		return
	}

	sen, err := s.sensors.GetSensor(r.Context(), id)
	if err != nil {
		if errors.Is(err, sensor.ErrNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		writeInternalError(w, "failed to get sensor")
		return
	}

	writeJSON(w, http.StatusOK, sen)
}

// handleCreateSensor registers a new sensor.
//
// The owning flow must already exist; a sensor with no flow to capture it
// would never update.
func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var sen sensor.Sensor
	if err := json.NewDecoder(r.Body).Decode(&sen); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if sen.ID == "" || sen.FlowID == "" || sen.Name == "" {
		writeBadRequest(w, "id, flow_id, and name are required")
		return
	}
	if sen.ExtractionMethod == "" {
		writeBadRequest(w, "extraction_method is required")
		return
	}
	if sen.Bounds.IsZero() {
		writeBadRequest(w, "bounds are required")
		return
	}

	if _, err := s.flows.GetByID(r.Context(), sen.FlowID); err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeBadRequest(w, "flow_id references an unknown flow")
			return
		}
		writeInternalError(w, "failed to get flow")
		return
	}

	if err := s.sensors.CreateSensor(r.Context(), &sen); err != nil {
		if errors.Is(err, sensor.ErrExists) {
			writeConflict(w, err.Error())
			return
		}
		writeInternalError(w, "failed to create sensor")
		return
	}

	writeJSON(w, http.StatusCreated, sen)
}

// handleDeleteSensor removes a sensor and its drift history.
func (s *Server) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid sensor ID")
		return
	}

	if err := s.sensors.DeleteSensor(r.Context(), id); err != nil {
		if errors.Is(err, sensor.ErrNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		writeInternalError(w, "failed to delete sensor")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListDriftHistory returns a sensor's bounds repair records,
// newest first.
//
// Query parameters:
//   - limit: maximum number of records (default 10, max 100)
func (s *Server) handleListDriftHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid sensor ID")
		return
	}

	if _, err := s.sensors.GetSensor(r.Context(), id); err != nil {
		if errors.Is(err, sensor.ErrNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		writeInternalError(w, "failed to get sensor")
		return
	}

	limit := defaultDriftLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		if parsed > maxDriftLimit {
			parsed = maxDriftLimit
		}
		limit = parsed
	}

	history, err := s.sensors.ListDriftHistory(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list drift history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"drift": history, "count": len(history)})
}
