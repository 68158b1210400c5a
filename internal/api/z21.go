package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// commandTimeout bounds one controller command issued over HTTP.
const commandTimeout = 5 * time.Second

// z21StatusResponse is the body of GET /z21/status.
type z21StatusResponse struct {
	State        z21.ConnectionState `json:"state"`
	Confirmed    bool                `json:"confirmed"`
	Status       z21.BusStatus       `json:"status"`
	SystemState  z21.SystemTelemetry `json:"system_state"`
	Version      z21.VersionInfo     `json:"version"`
	HardwareType string              `json:"hardware_type,omitempty"`
	Firmware     string              `json:"firmware,omitempty"`
}

func (s *Server) handleZ21Status(w http.ResponseWriter, _ *http.Request) {
	v := s.controller.VersionInfo()
	resp := z21StatusResponse{
		State:       s.controller.State(),
		Confirmed:   s.controller.Confirmed(),
		Status:      s.controller.Status(),
		SystemState: s.controller.SystemState(),
		Version:     v,
	}
	if v.HardwareTypeCode != 0 {
		resp.HardwareType = v.HardwareType()
		resp.Firmware = v.FirmwareVersion()
	}
	writeJSON(w, http.StatusOK, resp)
}

// trackPowerRequest is the body of POST /z21/track-power.
type trackPowerRequest struct {
	On *bool `json:"on"`
}

func (s *Server) handleTrackPower(w http.ResponseWriter, r *http.Request) {
	var req trackPowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, `"on" is required`)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var err error
	if *req.On {
		err = s.controller.TrackPowerOn(ctx)
	} else {
		err = s.controller.TrackPowerOff(ctx)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logger.Info("track power switched", "on", *req.On, "operator", operatorFromContext(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"on": *req.On})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.controller.EmergencyStop(ctx); err != nil {
		writeServiceError(w, err)
		return
	}
	s.logger.Warn("emergency stop requested", "operator", operatorFromContext(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"emergency_stop": true})
}

// turnoutRequest is the body of POST /z21/turnout.
type turnoutRequest struct {
	Address  *int `json:"address"`
	Output   int  `json:"output"`
	Activate bool `json:"activate"`
	Queue    bool `json:"queue"`
}

func (s *Server) handleTurnout(w http.ResponseWriter, r *http.Request) {
	var req turnoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Address == nil {
		writeBadRequest(w, `"address" is required`)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.controller.SetTurnout(ctx, *req.Address, req.Output, req.Activate, req.Queue); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}
