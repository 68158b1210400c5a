package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/relay"
)

// parsePort reads the {port} URL parameter.
func parsePort(r *http.Request) (uint32, bool) {
	port, err := strconv.ParseUint(chi.URLParam(r, "port"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(port), true
}

func (s *Server) handleSimulateFeedback(w http.ResponseWriter, r *http.Request) {
	port, ok := parsePort(r)
	if !ok {
		writeBadRequest(w, "port must be a non-negative integer")
		return
	}
	if err := s.controller.SimulateFeedback(int(port)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"port": port})
}

// statisticsResponse is the body of GET /feedback/statistics.
type statisticsResponse struct {
	Ports []relay.PortStats `json:"ports"`
	Total int               `json:"total"`
}

func (s *Server) handleFeedbackStatistics(w http.ResponseWriter, _ *http.Request) {
	resp := statisticsResponse{Ports: []relay.PortStats{}}
	if s.statistics != nil {
		resp.Ports = s.statistics.All()
	}
	for _, ps := range resp.Ports {
		resp.Total += ps.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetStatistics(w http.ResponseWriter, _ *http.Request) {
	if s.statistics == nil {
		writeUnavailable(w, "feedback statistics disabled")
		return
	}
	s.statistics.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPortStatistics(w http.ResponseWriter, r *http.Request) {
	if s.statistics == nil {
		writeUnavailable(w, "feedback statistics disabled")
		return
	}
	port, ok := parsePort(r)
	if !ok {
		writeBadRequest(w, "port must be a non-negative integer")
		return
	}
	if !s.statistics.ResetPort(port) {
		writeNotFound(w, "no statistics for port "+strconv.FormatUint(uint64(port), 10))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
