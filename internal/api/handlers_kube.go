package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const defaultMetricsMinutes = 60

func (s *Server) handleNamespaceMetrics(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if err := validateNamespace(namespace); err != nil {
		s.errors.Respond(w, r, err, http.StatusBadRequest)
		return
	}

	minutes, err := parseIntParam(r, "minutes", defaultMetricsMinutes, s.options.MaxMetricsMinutes)
	if err != nil {
		s.errors.Respond(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.kubeMetrics.NamespaceMetrics(r.Context(), namespace, minutes))
}

// handleNodeMetrics serves one node when ?node= is set, otherwise every node.
func (s *Server) handleNodeMetrics(w http.ResponseWriter, r *http.Request) {
	minutes, err := parseIntParam(r, "minutes", defaultMetricsMinutes, s.options.MaxMetricsMinutes)
	if err != nil {
		s.errors.Respond(w, r, err, http.StatusBadRequest)
		return
	}

	node := r.URL.Query().Get("node")
	writeJSON(w, http.StatusOK, s.kubeMetrics.NodeMetrics(r.Context(), node, minutes))
}
