package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

// refreshTimeout bounds a manual refresh pass.
const refreshTimeout = 30 * time.Second

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Devices())
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.engine.Device(r.PathValue("ieee"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	if _, ok := s.engine.Device(ieee); !ok {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err := s.engine.Remove(ieee); err != nil {
		s.logger.Error("delete device", "err", err, "ieee", ieee)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIRemoveCapability(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	c := r.PathValue("capability")

	err := s.engine.RemoveCapability(ieee, c)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "capability": c})
	case errors.Is(err, engine.ErrUnknownDevice):
		s.writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, capability.ErrRemoveUnsupported):
		s.writeError(w, http.StatusNotImplemented, "capability removal not supported")
	default:
		s.logger.Error("remove capability", "err", err, "ieee", ieee, "capability", c)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type refreshResponse struct {
	Attempted int      `json:"attempted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	rep, err := s.engine.RefreshNow(ctx, ieee)
	if errors.Is(err, engine.ErrUnknownDevice) {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("refresh", "err", err, "ieee", ieee)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := refreshResponse{Attempted: rep.Attempted, Updated: rep.Updated, Skipped: rep.Skipped}
	for _, e := range rep.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
