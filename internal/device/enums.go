package device

import (
	"encoding/json"
	"strings"
)

// otherKind is the kind every enumeration falls back to when the controller
// sends a string this build does not know.
const otherKind = "other"

// kindSet constrains Enum to the string kinds declared in this package.
type kindSet interface {
	DeviceKind | SensorKind | SlotParameterKind
}

// Enum is a parsed wire enumeration. Kind is always one of the declared
// constants; Raw is the exact string received, so an "other" value still
// carries what the controller actually said.
type Enum[K kindSet] struct {
	Kind K
	Raw  string
}

// IsOther reports whether the wire string was not recognised.
func (e Enum[K]) IsOther() bool {
	return string(e.Kind) == otherKind
}

// String returns the canonical kind, or the raw wire string for unknown values.
func (e Enum[K]) String() string {
	if e.IsOther() && e.Raw != "" {
		return e.Raw
	}
	return string(e.Kind)
}

// MarshalJSON encodes the kind, adding the raw string for unknown values.
func (e Enum[K]) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind string `json:"kind"`
		Raw  string `json:"raw,omitempty"`
	}{Kind: string(e.Kind)}
	if e.IsOther() {
		out.Raw = e.Raw
	}
	return json.Marshal(out)
}

// parseEnum is total: unknown or empty strings map to the other kind.
func parseEnum[K kindSet](raw string, known map[string]K) Enum[K] {
	if k, ok := known[normaliseKind(raw)]; ok {
		return Enum[K]{Kind: k, Raw: raw}
	}
	return Enum[K]{Kind: K(otherKind), Raw: raw}
}

var kindReplacer = strings.NewReplacer(" ", "_", "-", "_")

func normaliseKind(s string) string {
	return kindReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// DeviceKind classifies an actuator.
type DeviceKind string

// Device kinds.
const (
	DeviceKindValve  DeviceKind = "valve"
	DeviceKindPump   DeviceKind = "pump"
	DeviceKindFan    DeviceKind = "fan"
	DeviceKindLight  DeviceKind = "light"
	DeviceKindSocket DeviceKind = "socket"
	DeviceKindRelay  DeviceKind = "relay"
	DeviceKindHeater DeviceKind = "heater"
	DeviceKindDimmer DeviceKind = "dimmer"
	DeviceKindOther  DeviceKind = otherKind
)

// DeviceType is a parsed device_type wire value.
type DeviceType = Enum[DeviceKind]

// AllDeviceKinds lists every device kind, including the fallback.
func AllDeviceKinds() []DeviceKind {
	return []DeviceKind{
		DeviceKindValve, DeviceKindPump, DeviceKindFan, DeviceKindLight,
		DeviceKindSocket, DeviceKindRelay, DeviceKindHeater, DeviceKindDimmer,
		DeviceKindOther,
	}
}

var deviceKinds = map[string]DeviceKind{
	"valve":       DeviceKindValve,
	"solenoid":    DeviceKindValve,
	"pump":        DeviceKindPump,
	"dose_pump":   DeviceKindPump,
	"dosing_pump": DeviceKindPump,
	"fan":         DeviceKindFan,
	"light":       DeviceKindLight,
	"socket":      DeviceKindSocket,
	"relay":       DeviceKindRelay,
	"heater":      DeviceKindHeater,
	"dimmer":      DeviceKindDimmer,
}

// ParseDeviceType never fails; unknown strings become DeviceKindOther.
func ParseDeviceType(raw string) DeviceType {
	return parseEnum(raw, deviceKinds)
}

// SensorKind classifies a read-only measurement.
type SensorKind string

// Sensor kinds.
const (
	SensorKindCO2             SensorKind = "co2"
	SensorKindTemperature     SensorKind = "temperature"
	SensorKindHumidity        SensorKind = "humidity"
	SensorKindPH              SensorKind = "ph"
	SensorKindEC              SensorKind = "ec"
	SensorKindWaterFlow       SensorKind = "waterflow"
	SensorKindWaterLevel      SensorKind = "waterlevel"
	SensorKindLeafTemperature SensorKind = "leaf_temperature"
	SensorKindUptime          SensorKind = "uptime"
	SensorKindOther           SensorKind = otherKind
)

// SensorType is a parsed sensor_type wire value.
type SensorType = Enum[SensorKind]

// AllSensorKinds lists every sensor kind, including the fallback.
func AllSensorKinds() []SensorKind {
	return []SensorKind{
		SensorKindCO2, SensorKindTemperature, SensorKindHumidity, SensorKindPH,
		SensorKindEC, SensorKindWaterFlow, SensorKindWaterLevel,
		SensorKindLeafTemperature, SensorKindUptime, SensorKindOther,
	}
}

var sensorKinds = map[string]SensorKind{
	"co2":              SensorKindCO2,
	"temperature":      SensorKindTemperature,
	"humidity":         SensorKindHumidity,
	"ph":               SensorKindPH,
	"ec":               SensorKindEC,
	"conductivity":     SensorKindEC,
	"waterflow":        SensorKindWaterFlow,
	"water_flow":       SensorKindWaterFlow,
	"waterlevel":       SensorKindWaterLevel,
	"water_level":      SensorKindWaterLevel,
	"leaf_temperature": SensorKindLeafTemperature,
	"uptime":           SensorKindUptime,
}

// ParseSensorType never fails; unknown strings become SensorKindOther.
func ParseSensorType(raw string) SensorType {
	return parseEnum(raw, sensorKinds)
}

// SlotParameterKind classifies a slot setpoint.
type SlotParameterKind string

// Slot parameter kinds.
const (
	SlotParameterAirTemperature  SlotParameterKind = "air_temperature"
	SlotParameterAirHumidity     SlotParameterKind = "air_humidity"
	SlotParameterLeafTemperature SlotParameterKind = "leaf_temperature"
	SlotParameterOther           SlotParameterKind = otherKind
)

// SlotParameterType is a parsed slot "parameter" wire value.
type SlotParameterType = Enum[SlotParameterKind]

var slotParameterKinds = map[string]SlotParameterKind{
	"air_temperature":  SlotParameterAirTemperature,
	"air_humidity":     SlotParameterAirHumidity,
	"leaf_temperature": SlotParameterLeafTemperature,
}

// ParseSlotParameterType never fails; unknown strings become SlotParameterOther.
func ParseSlotParameterType(raw string) SlotParameterType {
	return parseEnum(raw, slotParameterKinds)
}
