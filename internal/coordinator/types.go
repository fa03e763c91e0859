package coordinator

import (
	"context"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

// Controller is the DeviceController contract the coordinator depends on.
// *controller.Client implements it.
type Controller interface {
	Host() string
	FetchBulkState(ctx context.Context) (*controller.BulkState, error)
	FetchComponentCatalog(ctx context.Context) (*controller.Catalog, error)
	FetchDeviceState(ctx context.Context, deviceID string) (controller.Payload, error)
	SetDeviceState(ctx context.Context, deviceID string, on bool) error
	SetPowerLevel(ctx context.Context, deviceID string, level int) error
	FetchDeviceInfo(ctx context.Context) (*controller.InfoPayload, error)
	PushExternalSensors(ctx context.Context, readings map[string]controller.ExternalReading) error
}

// ExternalSensorSource supplies the latest host sensor readings forwarded to
// the controller at the start of each cycle.
type ExternalSensorSource interface {
	ExternalReadings() map[string]controller.ExternalReading
}

// Listener observes refresh cycles and command results. Callbacks run on the
// goroutine that triggered them and must not block.
type Listener interface {
	OnRefresh(result RefreshResult)
	OnCommand(result CommandResult)
}

// Logger defines the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot maps every entity id (device, sensor, slot parameter) to the raw
// payload received for it in the latest cycle. Entities absent from the
// response map to an empty payload.
type Snapshot map[string]controller.Payload

// RefreshResult describes one completed refresh cycle.
type RefreshResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Snapshot  Snapshot
	Err       error

	// Changed lists devices whose state, power level or availability changed.
	Changed []device.Device

	// Stats are the registry counts after the cycle.
	Stats device.Stats
}

// Command names reported in CommandResult.
const (
	CommandState      = "state"
	CommandPowerLevel = "powerlevel"
)

// CommandResult describes one Command Gateway call.
type CommandResult struct {
	DeviceID string
	Command  string
	On       bool
	Level    int
	Success  bool
	Err      error
	At       time.Time

	// Device is the registry record after the call; nil for unknown devices.
	Device *device.Device
}
