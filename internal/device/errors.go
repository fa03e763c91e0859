package device

import "errors"

// Lookup failures carry the missing id in a wrapped message.
var (
	ErrDeviceNotFound        = errors.New("device: not found")
	ErrSensorNotFound        = errors.New("device: sensor not found")
	ErrSlotParameterNotFound = errors.New("device: slot parameter not found")

	// ErrMissingID rejects registry upserts of entities without an id.
	ErrMissingID = errors.New("device: id is required")

	// ErrInfoNotFound means no controller metadata is stored for the host.
	ErrInfoNotFound = errors.New("device: controller info not found")
)
