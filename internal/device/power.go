package device

import "encoding/json"

// DefaultMaxPowerLevel is the ceiling used when the controller does not report one.
const DefaultMaxPowerLevel = 255

// PowerCapability describes whether a device has a variable output level.
//
// The zero value is Unsupported. A supported capability always carries a
// level and a maximum, so "level without support" cannot be represented.
type PowerCapability struct {
	supported bool
	level     int
	max       int
}

// Unsupported returns the capability of an on/off-only device.
func Unsupported() PowerCapability {
	return PowerCapability{}
}

// Supported returns a variable-output capability. A non-positive max falls
// back to DefaultMaxPowerLevel and level is clamped into [0, max].
func Supported(level, maxLevel int) PowerCapability {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxPowerLevel
	}
	return PowerCapability{supported: true, level: clampLevel(level, maxLevel), max: maxLevel}
}

// IsSupported reports whether the device accepts power level commands.
func (p PowerCapability) IsSupported() bool {
	return p.supported
}

// Level returns the last known level; ok is false for unsupported devices.
func (p PowerCapability) Level() (level int, ok bool) {
	return p.level, p.supported
}

// Max returns the maximum level, or 0 for unsupported devices.
func (p PowerCapability) Max() int {
	return p.max
}

// InRange reports whether level is a valid target for this device.
func (p PowerCapability) InRange(level int) bool {
	return p.supported && level >= 0 && level <= p.max
}

// WithLevel returns a copy carrying level. Unsupported capabilities are returned unchanged.
func (p PowerCapability) WithLevel(level int) PowerCapability {
	if !p.supported {
		return p
	}
	p.level = clampLevel(level, p.max)
	return p
}

// MarshalJSON encodes {"supported":false} or {"supported":true,"level":n,"max":m}.
func (p PowerCapability) MarshalJSON() ([]byte, error) {
	if !p.supported {
		return []byte(`{"supported":false}`), nil
	}
	return json.Marshal(struct {
		Supported bool `json:"supported"`
		Level     int  `json:"level"`
		Max       int  `json:"max"`
	}{true, p.level, p.max})
}

func clampLevel(level, maxLevel int) int {
	switch {
	case level < 0:
		return 0
	case level > maxLevel:
		return maxLevel
	default:
		return level
	}
}
