package device

import (
	"strconv"
	"strings"
)

// Platform is the kind of UI entity a device is rendered as.
type Platform string

// Presentation platforms.
const (
	PlatformSwitch Platform = "switch"
	PlatformFan    Platform = "fan"
	PlatformLight  Platform = "light"
)

// DeviceDescription is the static presentation record for a device kind.
type DeviceDescription struct {
	Platform Platform `json:"platform"`
	Icon     string   `json:"icon"`
	Class    string   `json:"device_class,omitempty"`
}

var deviceDescriptions = map[DeviceKind]DeviceDescription{
	DeviceKindValve:  {Platform: PlatformSwitch, Icon: "mdi:valve", Class: "switch"},
	DeviceKindPump:   {Platform: PlatformSwitch, Icon: "mdi:pump", Class: "switch"},
	DeviceKindFan:    {Platform: PlatformFan, Icon: "mdi:fan"},
	DeviceKindLight:  {Platform: PlatformLight, Icon: "mdi:lightbulb"},
	DeviceKindSocket: {Platform: PlatformSwitch, Icon: "mdi:power-socket-eu", Class: "outlet"},
	DeviceKindRelay:  {Platform: PlatformSwitch, Icon: "mdi:electric-switch", Class: "switch"},
	DeviceKindHeater: {Platform: PlatformSwitch, Icon: "mdi:radiator", Class: "switch"},
	DeviceKindDimmer: {Platform: PlatformLight, Icon: "mdi:brightness-6"},
	DeviceKindOther:  {Platform: PlatformSwitch, Icon: "mdi:toggle-switch", Class: "switch"},
}

// DescribeDevice returns the presentation record for a device type.
func DescribeDevice(t DeviceType) DeviceDescription {
	return deviceDescriptions[t.Kind]
}

// StateClass values for sensors.
const (
	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
)

// SensorDescription is the static presentation record for a sensor kind.
type SensorDescription struct {
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
	Icon        string `json:"icon"`
}

// Numeric reports whether readings of this kind are rendered as numbers.
func (d SensorDescription) Numeric() bool {
	return d.StateClass != ""
}

var sensorDescriptions = map[SensorKind]SensorDescription{
	SensorKindCO2:             {Unit: "ppm", DeviceClass: "carbon_dioxide", StateClass: StateClassMeasurement, Icon: "mdi:molecule-co2"},
	SensorKindTemperature:     {Unit: "°C", DeviceClass: "temperature", StateClass: StateClassMeasurement, Icon: "mdi:thermometer"},
	SensorKindHumidity:        {Unit: "%", DeviceClass: "humidity", StateClass: StateClassMeasurement, Icon: "mdi:water-percent"},
	SensorKindPH:              {DeviceClass: "ph", StateClass: StateClassMeasurement, Icon: "mdi:ph"},
	SensorKindEC:              {Unit: "mS/cm", DeviceClass: "conductivity", StateClass: StateClassMeasurement, Icon: "mdi:flash-triangle"},
	SensorKindWaterFlow:       {Unit: "L/h", DeviceClass: "volume_flow_rate", StateClass: StateClassMeasurement, Icon: "mdi:waves-arrow-right"},
	SensorKindWaterLevel:      {Unit: "L", DeviceClass: "volume_storage", StateClass: StateClassMeasurement, Icon: "mdi:car-coolant-level"},
	SensorKindLeafTemperature: {Unit: "°C", DeviceClass: "temperature", StateClass: StateClassMeasurement, Icon: "mdi:leaf"},
	SensorKindUptime:          {Unit: "s", DeviceClass: "duration", StateClass: StateClassTotalIncreasing, Icon: "mdi:timer-outline"},
	SensorKindOther:           {Icon: "mdi:gauge"},
}

// DescribeSensor returns the presentation record for a sensor type.
func DescribeSensor(t SensorType) SensorDescription {
	return sensorDescriptions[t.Kind]
}

// NativeValue converts a sensor reading for display. Numeric kinds yield a
// float; an empty or non-numeric reading yields ok=false rather than a
// bogus zero. Non-numeric kinds return the raw string.
func NativeValue(s *Sensor) (value any, ok bool) {
	raw := strings.TrimSpace(s.Value)
	if raw == "" {
		return nil, false
	}
	if !DescribeSensor(s.Type).Numeric() {
		return raw, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}
