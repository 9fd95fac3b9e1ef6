package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleMonitorStream upgrades to a websocket that receives the monitor's check results.
func (s *Server) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	monitor, ok := s.lookupMonitor(w, r)
	if !ok {
		return
	}

	s.logger.Debug("Opening monitor stream",
		zap.String("monitor_id", monitor.ID),
		zap.String("remote_addr", r.RemoteAddr))
	s.wsHub.ServeWS(w, r, monitor.ID)
}
