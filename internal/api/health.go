package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.registry.IsShutdown() {
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "shutting_down"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
