package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
)

// Execution log paging.
const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	workflows := []automation.Workflow{}
	if s.workflows != nil {
		workflows = s.workflows.Workflows()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// journeyView is one journey with its live session.
type journeyView struct {
	automation.Journey
	State automation.JourneyState `json:"state"`
}

func (s *Server) handleListJourneys(w http.ResponseWriter, _ *http.Request) {
	views := []journeyView{}
	if s.journeys != nil {
		states := make(map[string]automation.JourneyState)
		for _, st := range s.journeys.States() {
			states[st.JourneyID] = st
		}
		for _, j := range s.journeys.Journeys() {
			views = append(views, journeyView{Journey: j, State: states[j.ID]})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"journeys": views,
		"count":    len(views),
	})
}

func (s *Server) handleJourneyState(w http.ResponseWriter, r *http.Request) {
	if s.journeys == nil {
		writeNotFound(w, "no journeys loaded")
		return
	}
	state, err := s.journeys.State(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleResetJourney(w http.ResponseWriter, r *http.Request) {
	if s.journeys == nil {
		writeNotFound(w, "no journeys loaded")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.journeys.Reset(id); err != nil {
		writeServiceError(w, err)
		return
	}
	state, err := s.journeys.State(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logger.Info("journey reset via API", "journey", id, "operator", operatorFromContext(r.Context()))
	writeJSON(w, http.StatusOK, state)
}

// handleResetAutomation clears every debounce timer and resets every
// journey to its first station.
func (s *Server) handleResetAutomation(w http.ResponseWriter, r *http.Request) {
	if s.workflows != nil {
		s.workflows.ResetAll()
	}
	if s.stations != nil {
		s.stations.ResetAll()
	}
	if s.journeys != nil {
		s.journeys.ResetAll()
	}
	s.logger.Info("automation reset via API", "operator", operatorFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		writeUnavailable(w, "execution log disabled")
		return
	}

	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExecutionLimit)
	}

	execs, err := s.executions.ListExecutions(r.Context(), r.URL.Query().Get("trigger_id"), limit)
	if err != nil {
		s.logger.Error("listing executions failed", "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []automation.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}
