package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

// deviceResponse is a registry device with its presentation record.
type deviceResponse struct {
	device.Device
	Description device.DeviceDescription `json:"description"`

	// PowerLevel is only set while the level can be trusted.
	PowerLevel *int `json:"powerlevel,omitempty"`
}

func newDeviceResponse(d device.Device) deviceResponse {
	resp := deviceResponse{
		Device:      d,
		Description: device.DescribeDevice(d.Type),
	}
	if level, ok := d.CurrentPowerLevel(); ok {
		resp.PowerLevel = &level
	}
	return resp
}

// setStateRequest is the body of PUT /devices/{id}/state.
type setStateRequest struct {
	On *bool `json:"on"`
}

// setPowerLevelRequest is the body of PUT /devices/{id}/powerlevel.
type setPowerLevelRequest struct {
	Level *int `json:"level"`
}

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - type: filter by device kind (valve, pump, fan, ...)
//   - available: filter by availability (true or false)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	available, err := parseOptionalBool(r.URL.Query().Get("available"))
	if err != nil {
		writeBadRequest(w, "available must be true or false")
		return
	}

	devices := s.coordinator.Registry().ListDevices()
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		if kind != "" && string(d.Type.Kind) != kind {
			continue
		}
		if available != nil && d.Available != *available {
			continue
		}
		out = append(out, newDeviceResponse(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(*dev))
}

// handleSetDeviceState switches a device on or off through the coordinator.
// The response carries the device as recorded after the command.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on field is required")
		return
	}

	accepted := s.coordinator.SetDeviceState(r.Context(), dev.ID, *req.On)
	s.recordAudit(r, audit.Entry{
		Action:  audit.ActionDeviceState,
		Target:  dev.ID,
		Outcome: commandOutcome(accepted),
		Details: map[string]any{"on": *req.On},
	})
	if !accepted {
		writeBadGateway(w, "controller did not accept the command")
		return
	}

	s.logger.Info("device state set via API",
		"device_id", dev.ID,
		"on", *req.On,
		"operator", operatorName(r),
	)
	s.writeDeviceAfterCommand(w, dev.ID)
}

// handleSetPowerLevel sets the power level of a device that supports one.
func (s *Server) handleSetPowerLevel(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req setPowerLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeBadRequest(w, "level field is required")
		return
	}
	if !dev.Power.IsSupported() {
		writeUnprocessable(w, "device has no power level")
		return
	}
	if !dev.Power.InRange(*req.Level) {
		writeUnprocessable(w, fmt.Sprintf("level must be between 0 and %d", dev.Power.Max()))
		return
	}

	accepted := s.coordinator.SetPowerLevel(r.Context(), dev.ID, *req.Level)
	s.recordAudit(r, audit.Entry{
		Action:  audit.ActionDevicePower,
		Target:  dev.ID,
		Outcome: commandOutcome(accepted),
		Details: map[string]any{"level": *req.Level},
	})
	if !accepted {
		writeBadGateway(w, "controller did not accept the command")
		return
	}

	s.logger.Info("device power level set via API",
		"device_id", dev.ID,
		"level", *req.Level,
		"operator", operatorName(r),
	)
	s.writeDeviceAfterCommand(w, dev.ID)
}

// handleProbeDevice fetches the live controller state of one device without
// touching the registry.
func (s *Server) handleProbeDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	payload, err := s.coordinator.ProbeDevice(r.Context(), dev.ID)
	if err != nil {
		s.logger.Warn("device probe failed", "device_id", dev.ID, "error", err)
		writeBadGateway(w, "controller probe failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"payload":   payload,
	})
}

// lookupDevice resolves a device or writes the error response.
func (s *Server) lookupDevice(w http.ResponseWriter, id string) (*device.Device, bool) {
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return nil, false
	}
	dev, err := s.coordinator.Registry().GetDevice(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}

func (s *Server) writeDeviceAfterCommand(w http.ResponseWriter, id string) {
	dev, err := s.coordinator.Registry().GetDevice(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(*dev))
}

// operatorName returns the authenticated username for logging.
func operatorName(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}

// parseOptionalBool parses a boolean query parameter; empty means unset.
func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
