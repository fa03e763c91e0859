package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mannito-bridge/internal/device"
)

// sensorResponse is a registry sensor with its presentation record and the
// value converted for display (null when there is none).
type sensorResponse struct {
	device.Sensor
	Description device.SensorDescription `json:"description"`
	NativeValue any                      `json:"native_value"`
}

func newSensorResponse(s device.Sensor) sensorResponse {
	resp := sensorResponse{
		Sensor:      s,
		Description: device.DescribeSensor(s.Type),
	}
	if v, ok := device.NativeValue(&s); ok {
		resp.NativeValue = v
	}
	return resp
}

// handleListSensors returns all sensors.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := s.coordinator.Registry().ListSensors()
	out := make([]sensorResponse, 0, len(sensors))
	for _, sn := range sensors {
		out = append(out, newSensorResponse(sn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": out, "count": len(out)})
}

// handleGetSensor returns a single sensor by ID.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sn, err := s.coordinator.Registry().GetSensor(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrSensorNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		writeInternalError(w, "failed to get sensor")
		return
	}
	writeJSON(w, http.StatusOK, newSensorResponse(*sn))
}

// handleListSlots returns all slot parameters.
func (s *Server) handleListSlots(w http.ResponseWriter, _ *http.Request) {
	slots := s.coordinator.Registry().ListSlotParameters()
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots, "count": len(slots)})
}

// handleGetSlot returns a single slot parameter by ID.
func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	p, err := s.coordinator.Registry().GetSlotParameter(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrSlotParameterNotFound) {
			writeNotFound(w, "slot parameter not found")
			return
		}
		writeInternalError(w, "failed to get slot parameter")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
