package device

import (
	"strconv"
	"time"
)

// Device is one controllable actuator on the controller (valve, pump, fan, light, relay...).
//
// Available is derived: the device answered in the latest bulk poll
// (Responding) and reports itself enabled and initialised. The registry
// recomputes it on every write.
type Device struct {
	// ID is the controller-assigned identifier (e.g. "FAN1").
	ID string `json:"device_id"`

	// UniqueID is ID scoped by the controller host, stable across restarts.
	UniqueID string `json:"unique_id"`

	Type  DeviceType      `json:"device_type"`
	Name  string          `json:"name"`
	State bool            `json:"state"`
	Power PowerCapability `json:"power"`

	Enabled     bool `json:"is_enabled"`
	Initialized bool `json:"is_initialized"`
	Responding  bool `json:"responding"`
	Available   bool `json:"available"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// CurrentPowerLevel returns the power level only when it can be trusted:
// the device supports levels and is currently available.
func (d *Device) CurrentPowerLevel() (int, bool) {
	level, ok := d.Power.Level()
	if !ok || !d.Available {
		return 0, false
	}
	return level, true
}

// Snapshot returns the state fields recorded in history.
func (d *Device) Snapshot() State {
	s := State{
		"state":     d.State,
		"available": d.Available,
	}
	if level, ok := d.Power.Level(); ok {
		s["powerlevel"] = level
	}
	return s
}

func (d *Device) updateAvailability() {
	d.Available = d.Responding && d.Enabled && d.Initialized
}

// Sensor is one read-only measurement.
//
// Value only changes when the controller marks a reading valid; an invalid
// or missing reading keeps the last value but makes the sensor unavailable.
type Sensor struct {
	ID       string     `json:"sensor_id"`
	UniqueID string     `json:"unique_id"`
	Type     SensorType `json:"sensor_type"`
	Name     string     `json:"name"`
	Value    string     `json:"sensor_value"`
	Unit     string     `json:"unit,omitempty"`

	Valid       bool `json:"is_valid"`
	Enabled     bool `json:"is_enabled"`
	Initialized bool `json:"is_initialized"`
	Responding  bool `json:"responding"`
	Available   bool `json:"available"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func (s *Sensor) updateAvailability() {
	s.Available = s.Responding && s.Valid && s.Enabled && s.Initialized
}

// SlotParameter is one named setpoint of a controller slot
// (e.g. "Default Slot" / air temperature = 20).
type SlotParameter struct {
	// ID is derived by SlotParameterID from slot name, slot index and parameter.
	ID        string            `json:"parameter_id"`
	UniqueID  string            `json:"unique_id"`
	SlotName  string            `json:"slot_name"`
	SlotIndex int               `json:"slot_index"`
	Parameter SlotParameterType `json:"parameter"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Available bool              `json:"available"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// FormattedValue renders Value without trailing zeros.
func (p *SlotParameter) FormattedValue() string {
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}

// Info is static identity metadata for the controller itself. It groups all
// entities under one logical device and is never needed for control.
type Info struct {
	Name             string `json:"name"`
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	FirmwareVersion  string `json:"firmware_version"`
	HardwareVersion  string `json:"hardware_version"`
	SerialNumber     string `json:"serial_number"`
	Uptime           string `json:"uptime"`
	IPAddress        string `json:"ip_address"`
	ConfigurationURL string `json:"configuration_url"`
}

// UnknownInfoValue is the placeholder for metadata fields the controller
// could not supply.
const UnknownInfoValue = "Unknown"

// DefaultInfo returns best-effort metadata derived from the controller host.
func DefaultInfo(host string) Info {
	return Info{
		Name:             "Mannito Farming (" + host + ")",
		Manufacturer:     UnknownInfoValue,
		Model:            UnknownInfoValue,
		FirmwareVersion:  UnknownInfoValue,
		HardwareVersion:  UnknownInfoValue,
		SerialNumber:     UnknownInfoValue,
		Uptime:           UnknownInfoValue,
		IPAddress:        host,
		ConfigurationURL: "http://" + host,
	}
}

// WithDefaults fills empty fields from DefaultInfo(host).
func (i Info) WithDefaults(host string) Info {
	def := DefaultInfo(host)
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&i.Name, def.Name)
	fill(&i.Manufacturer, def.Manufacturer)
	fill(&i.Model, def.Model)
	fill(&i.FirmwareVersion, def.FirmwareVersion)
	fill(&i.HardwareVersion, def.HardwareVersion)
	fill(&i.SerialNumber, def.SerialNumber)
	fill(&i.Uptime, def.Uptime)
	fill(&i.IPAddress, def.IPAddress)
	fill(&i.ConfigurationURL, def.ConfigurationURL)
	return i
}

// ScopedID scopes an entity id by controller host: "{host}_{id}".
func ScopedID(host, id string) string {
	return host + "_" + id
}
