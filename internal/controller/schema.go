package controller

import (
	"fmt"
	"strings"
)

// Wire schema versions.
const (
	SchemaVersionV1 = "v1"
	SchemaVersionV2 = "v2"
)

// Schema names the wire fields of one controller API revision.
//
// Revisions renamed fields rather than adding aliases, so exactly one schema
// is active per client and fields of the other revision are ignored.
type Schema struct {
	Version string

	// DeviceIDField keys a device entry in the bulk snapshot.
	DeviceIDField string

	// SensorIDField keys a sensor entry in the bulk snapshot.
	SensorIDField string

	// PowerLevelField carries a device's output level in snapshots and commands.
	PowerLevelField string

	// CatalogPath is the component catalog endpoint relative to /api.
	CatalogPath string

	// BooleanState sends {"state": true} when set, {"state": "on"} otherwise.
	BooleanState bool
}

// SchemaV2 is the current revision.
var SchemaV2 = Schema{
	Version:         SchemaVersionV2,
	DeviceIDField:   "device_id",
	SensorIDField:   "id",
	PowerLevelField: "powerlevel",
	CatalogPath:     "/components",
	BooleanState:    true,
}

// SchemaV1 is the first firmware revision (camelCase ids, "level").
var SchemaV1 = Schema{
	Version:         SchemaVersionV1,
	DeviceIDField:   "deviceId",
	SensorIDField:   "id",
	PowerLevelField: "level",
	CatalogPath:     "/device/list",
	BooleanState:    false,
}

// SchemaFor returns the schema for a version string. Empty means v2.
func SchemaFor(version string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case "", SchemaVersionV2:
		return SchemaV2, nil
	case SchemaVersionV1:
		return SchemaV1, nil
	default:
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownSchema, version)
	}
}

// StateBody builds the request body that switches a device on or off.
func (s Schema) StateBody(on bool) map[string]any {
	if s.BooleanState {
		return map[string]any{"state": on}
	}
	if on {
		return map[string]any{"state": "on"}
	}
	return map[string]any{"state": "off"}
}

// PowerLevelBody builds the request body that sets a device's output level.
func (s Schema) PowerLevelBody(level int) map[string]any {
	return map[string]any{s.PowerLevelField: level}
}
