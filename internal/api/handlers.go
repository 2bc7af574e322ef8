// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/control"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/status"
)

type deviceView struct {
	registry.Device
	Status *status.Snapshot `json:"status,omitempty"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sched := s.ctl.Schedule()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"devices": len(s.ctl.Devices()),
		"entries": len(sched.Entries),
		"paused":  sched.Paused,
	})
}

func (s *Server) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.ctl.Devices()
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		v := deviceView{Device: d}
		if s.status != nil {
			if snap, ok := s.status.Snapshot(d.ID); ok {
				v.Status = &snap
			}
		}
		out = append(out, v)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := s.ctl.RegisterDevice(r.Context(), id); err != nil {
		respondControlError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) HandleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := s.ctl.RemoveDevice(id); err != nil {
		respondControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctl.Schedule())
}

func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.ctl.Pause()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	s.ctl.Resume()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// ========== Helper functions ==========

func respondControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrInvalidDevice):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, control.ErrUnknownDevice):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, control.ErrNotDiscovered):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("api request")
	})
}
