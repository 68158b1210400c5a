package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Z21           z21.ClientStats   `json:"z21"`
	Automation    AutomationMetrics `json:"automation"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// AutomationMetrics counts the loaded automation objects.
type AutomationMetrics struct {
	Workflows      int `json:"workflows"`
	Journeys       int `json:"journeys"`
	ActiveJourneys int `json:"active_journeys"`
	FeedbackPorts  int `json:"feedback_ports"`
}

// handleMetrics returns runtime and controller statistics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Z21: s.controller.Stats(),
	}

	if s.workflows != nil {
		metrics.Automation.Workflows = len(s.workflows.Workflows())
	}
	if s.journeys != nil {
		states := s.journeys.States()
		metrics.Automation.Journeys = len(states)
		for _, st := range states {
			if st.Active {
				metrics.Automation.ActiveJourneys++
			}
		}
	}
	if s.statistics != nil {
		metrics.Automation.FeedbackPorts = len(s.statistics.All())
	}

	writeJSON(w, http.StatusOK, metrics)
}
