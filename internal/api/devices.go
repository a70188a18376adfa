package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DeviceInfo is a device listing entry.
type DeviceInfo struct {
	ID        string `json:"id"`
	Suspended bool   `json:"suspended"`
}

// handleListDevices returns the configured devices and their scheduler
// suspension state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []DeviceInfo{}, "count": 0})
		return
	}

	ids := s.devices.DeviceIDs()
	devices := make([]DeviceInfo, 0, len(ids))
	for _, id := range ids {
		info := DeviceInfo{ID: id}
		if s.scheduler != nil {
			info.Suspended = s.scheduler.Suspended(id)
		}
		devices = append(devices, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleSuspendDevice pauses scheduled executions for a device. Useful
// while re-recording flows or servicing the physical screen.
func (s *Server) handleSuspendDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}
	if s.scheduler == nil {
		writeConflict(w, "scheduler is not running")
		return
	}

	s.scheduler.Suspend(id)
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "suspended": true})
}

// handleResumeDevice resumes scheduled executions for a device.
func (s *Server) handleResumeDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}
	if s.scheduler == nil {
		writeConflict(w, "scheduler is not running")
		return
	}

	s.scheduler.Resume(id)
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "suspended": false})
}
