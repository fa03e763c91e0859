package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Text is a lenient string: it accepts JSON strings, numbers, booleans and
// null, so a firmware that sends uptime as a number does not break decoding.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

// Flag is a lenient boolean: true, "true", "yes", "on" and non-zero numbers
// are set; anything else, including objects, is unset. It never fails.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		*f = false
		return nil //nolint:nilerr // cosmetic field
	}
	switch v := strings.ToLower(strings.TrimSpace(string(t))); v {
	case "true", "yes", "on":
		*f = true
	default:
		n, err := strconv.ParseFloat(v, 64)
		*f = Flag(err == nil && n != 0)
	}
	return nil
}

// BulkState is the consolidated snapshot returned by GET /api/device/all.
//
// The entity sections are kept raw and decoded on demand, so a malformed
// section fails on its own without taking the other sections with it.
type BulkState struct {
	Devices json.RawMessage `json:"devices"`
	Sensors json.RawMessage `json:"sensors"`
	Slots   json.RawMessage `json:"slots"`

	Uptime                  Text `json:"uptime"`
	Version                 Text `json:"version"`
	DeviceID                Text `json:"deviceId"`
	SerialNumber            Text `json:"serialnumber"`
	FirmwareUpdateAvailable Flag `json:"firmwareUpdateAvailable"`

	schema Schema
}

// DecodeBulkState parses a bulk snapshot body for the given schema.
// A zero schema means SchemaV2.
func DecodeBulkState(data []byte, schema Schema) (*BulkState, error) {
	var bulk BulkState
	if err := json.Unmarshal(data, &bulk); err != nil {
		return nil, fmt.Errorf("%w: bulk state: %v", ErrDecode, err)
	}
	bulk.schema = schema
	return &bulk, nil
}

func (b *BulkState) activeSchema() Schema {
	if b.schema.Version == "" {
		return SchemaV2
	}
	return b.schema
}

// Payload is one raw entity entry as received.
type Payload = map[string]any

// DeviceStatus is one device entry of a bulk snapshot.
// Nil pointers mean the field was absent.
type DeviceStatus struct {
	ID          string
	State       *bool
	PowerLevel  *int
	Enabled     *bool
	Initialized *bool
	Raw         Payload
}

// SensorReading is one sensor entry of a bulk snapshot.
type SensorReading struct {
	ID          string
	Value       *string
	Valid       bool
	Unit        string
	Enabled     *bool
	Initialized *bool
	Raw         Payload
}

// SlotStatus is one slot of a bulk snapshot.
type SlotStatus struct {
	Name       string
	Index      int
	Parameters []SlotParameterValue
}

// SlotParameterValue is one (parameter, value) pair inside a slot.
type SlotParameterValue struct {
	Parameter string
	Value     *float64
	Raw       Payload
}

// DeviceStatuses decodes the devices section using the active schema.
// A missing section yields no entries; entries without an ID are skipped.
func (b *BulkState) DeviceStatuses() ([]DeviceStatus, error) {
	entries, err := decodeSection(b.Devices, "devices")
	if err != nil {
		return nil, err
	}

	schema := b.activeSchema()
	out := make([]DeviceStatus, 0, len(entries))
	for _, m := range entries {
		id := stringField(m, schema.DeviceIDField)
		if id == "" {
			continue
		}
		out = append(out, DeviceStatus{
			ID:          id,
			State:       boolField(m, "state"),
			PowerLevel:  intField(m, schema.PowerLevelField),
			Enabled:     boolField(m, "is_enabled"),
			Initialized: boolField(m, "is_initialized"),
			Raw:         m,
		})
	}
	return out, nil
}

// SensorReadings decodes the sensors section using the active schema.
func (b *BulkState) SensorReadings() ([]SensorReading, error) {
	entries, err := decodeSection(b.Sensors, "sensors")
	if err != nil {
		return nil, err
	}

	schema := b.activeSchema()
	out := make([]SensorReading, 0, len(entries))
	for _, m := range entries {
		id := stringField(m, schema.SensorIDField)
		if id == "" {
			continue
		}
		valid := boolField(m, "is_valid")
		out = append(out, SensorReading{
			ID:          id,
			Value:       textField(m, "sensor_value"),
			Valid:       valid != nil && *valid,
			Unit:        stringField(m, "unit"),
			Enabled:     boolField(m, "is_enabled"),
			Initialized: boolField(m, "is_initialized"),
			Raw:         m,
		})
	}
	return out, nil
}

// SlotStatuses decodes the slots section. Any structural problem fails the
// whole section. A slot's index is its "index" field when present, otherwise
// its position in the array.
func (b *BulkState) SlotStatuses() ([]SlotStatus, error) {
	entries, err := decodeSection(b.Slots, "slots")
	if err != nil {
		return nil, err
	}

	out := make([]SlotStatus, 0, len(entries))
	for pos, m := range entries {
		name, ok := m["name"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: slots[%d]: name is not a string", ErrDecode, pos)
		}
		index := pos
		if explicit := intField(m, "index"); explicit != nil {
			index = *explicit
		}

		rawParams, ok := m["parameters"].([]any)
		if !ok && m["parameters"] != nil {
			return nil, fmt.Errorf("%w: slots[%d]: parameters is not a list", ErrDecode, pos)
		}

		slot := SlotStatus{Name: name, Index: index}
		for i, rp := range rawParams {
			pm, ok := rp.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: slots[%d].parameters[%d] is not an object", ErrDecode, pos, i)
			}
			param := stringField(pm, "parameter")
			if param == "" {
				return nil, fmt.Errorf("%w: slots[%d].parameters[%d]: missing parameter", ErrDecode, pos, i)
			}
			slot.Parameters = append(slot.Parameters, SlotParameterValue{
				Parameter: param,
				Value:     floatField(pm, "value"),
				Raw:       pm,
			})
		}
		out = append(out, slot)
	}
	return out, nil
}

func decodeSection(raw json.RawMessage, name string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var entries []map[string]any
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	return entries, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// textField returns a reading as text; numbers are formatted without trailing zeros.
func textField(m map[string]any, key string) *string {
	var s string
	switch v := m[key].(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil
	}
	return &s
}

// boolField accepts JSON booleans, "on"/"off"/"true"/"false" and 0/1.
func boolField(m map[string]any, key string) *bool {
	var b bool
	switch v := m[key].(type) {
	case bool:
		b = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "true", "1":
			b = true
		case "off", "false", "0":
			b = false
		default:
			return nil
		}
	case float64:
		b = v != 0
	default:
		return nil
	}
	return &b
}

func intField(m map[string]any, key string) *int {
	f := floatField(m, key)
	if f == nil {
		return nil
	}
	i := int(math.Round(*f))
	return &i
}

func floatField(m map[string]any, key string) *float64 {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// Catalog is the component list used once at discovery.
type Catalog struct {
	Devices []CatalogDevice `json:"devices"`
	Sensors []CatalogSensor `json:"sensors"`
}

// CatalogDevice describes one actuator. Absent enable/initialise flags are
// treated as true by the coordinator.
type CatalogDevice struct {
	ID                  string `json:"id"`
	DeviceType          string `json:"device_type"`
	Name                string `json:"name"`
	State               *bool  `json:"state"`
	PowerLevel          *int   `json:"powerlevel"`
	PowerLevelSupported bool   `json:"powerlevel_supported"`
	MaxPowerLevel       *int   `json:"max_powerlevel"`
	IsEnabled           *bool  `json:"is_enabled"`
	IsInitialized       *bool  `json:"is_initialized"`
}

// CatalogSensor describes one measurement.
type CatalogSensor struct {
	ID            string `json:"id"`
	SensorType    string `json:"sensor_type"`
	Name          string `json:"name"`
	SensorValue   Text   `json:"sensor_value"`
	Unit          string `json:"unit"`
	IsValid       *bool  `json:"is_valid"`
	IsEnabled     *bool  `json:"is_enabled"`
	IsInitialized *bool  `json:"is_initialized"`
}

// InfoPayload is the body of GET /api/info.
type InfoPayload struct {
	Name            Text `json:"name"`
	Manufacturer    Text `json:"manufacturer"`
	Model           Text `json:"model"`
	FirmwareVersion Text `json:"firmware_version"`
	HardwareVersion Text `json:"hardware_version"`
	SerialNumber    Text `json:"serial_number"`
	Uptime          Text `json:"uptime"`
	IPAddress       Text `json:"ip_address"`
}

// ExternalReading is one host sensor forwarded to POST /api/sensor.
type ExternalReading struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
