package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/aaronlmathis/kuptime/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryHours = 24
	defaultMaxPoints    = 500
	maxMaxPoints        = 5000
	maxRequestBodyBytes = 1 << 20
)

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.monitors.ListMonitors(r.Context())
	if err != nil {
		s.errors.Respond(w, r, err, http.StatusInternalServerError)
		return
	}
	if monitors == nil {
		monitors = []*models.Monitor{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": monitors,
		"total": len(monitors),
	})
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMonitorRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errors.Respond(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	monitor, err := s.monitors.CreateMonitor(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			s.errors.Respond(w, r, verr, http.StatusBadRequest)
			return
		}
		s.errors.Respond(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/api/v1/monitors/"+monitor.ID)
	writeJSON(w, http.StatusCreated, monitor)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	monitor, ok := s.lookupMonitor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.monitors.DeleteMonitor(r.Context(), id); err != nil {
		s.respondMonitorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	monitor, ok := s.lookupMonitor(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, service.MonitorDashboard{
		Monitor:   monitor,
		Dashboard: s.monitors.GetDashboard(r.Context(), monitor.ID),
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	hours, err := parseIntParam(r, "hours", defaultHistoryHours, s.options.MaxHistoryHours)
	if err != nil {
		s.errors.Respond(w, r, err, http.StatusBadRequest)
		return
	}
	maxPoints, err := parseIntParam(r, "maxPoints", defaultMaxPoints, maxMaxPoints)
	if err != nil {
		s.errors.Respond(w, r, err, http.StatusBadRequest)
		return
	}

	monitor, ok := s.lookupMonitor(w, r)
	if !ok {
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	writeJSON(w, http.StatusOK, s.history.GetHistory(r.Context(), monitor.ID, since, maxPoints))
}

func (s *Server) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	dashboards := s.monitors.ListDashboards(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": dashboards,
		"total": len(dashboards),
	})
}

// lookupMonitor resolves the {id} URL parameter, writing the error reply itself on failure.
func (s *Server) lookupMonitor(w http.ResponseWriter, r *http.Request) (*models.Monitor, bool) {
	monitor, err := s.monitors.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMonitorError(w, r, err)
		return nil, false
	}
	return monitor, true
}

func (s *Server) respondMonitorError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrMonitorNotFound) {
		s.errors.Respond(w, r, err, http.StatusNotFound)
		return
	}
	s.errors.Respond(w, r, err, http.StatusInternalServerError)
}
