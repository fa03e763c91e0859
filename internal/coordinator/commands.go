package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/device"
)

// SetDeviceState switches a device on or off.
//
// On success the registry is updated optimistically so consumers see the new
// state before the next poll confirms it. On failure nothing changes locally
// and false is returned; the error is logged and reported to listeners.
// Unknown device ids return false without contacting the controller.
func (c *Coordinator) SetDeviceState(ctx context.Context, deviceID string, on bool) bool {
	result := CommandResult{DeviceID: deviceID, Command: CommandState, On: on}

	if _, err := c.registry.GetDevice(deviceID); err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}

	if err := c.ctrl.SetDeviceState(ctx, deviceID, on); err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}

	if err := c.registry.SetDeviceState(deviceID, on); err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}

	result.Success = true
	c.finishCommand(result)
	return true
}

// SetPowerLevel sets the output level of a device.
//
// Devices without power level support, and levels outside 0..max, are
// rejected locally without a request.
func (c *Coordinator) SetPowerLevel(ctx context.Context, deviceID string, level int) bool {
	result := CommandResult{DeviceID: deviceID, Command: CommandPowerLevel, Level: level}

	dev, err := c.registry.GetDevice(deviceID)
	if err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}
	if !dev.Power.IsSupported() {
		result.Err = fmt.Errorf("%w: %s has no power level", ErrUnsupportedCommand, deviceID)
		c.finishCommand(result)
		return false
	}
	if !dev.Power.InRange(level) {
		result.Err = fmt.Errorf("%w: level %d outside 0..%d", ErrUnsupportedCommand, level, dev.Power.Max())
		c.finishCommand(result)
		return false
	}

	if err := c.ctrl.SetPowerLevel(ctx, deviceID, level); err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}

	if err := c.registry.SetDevicePowerLevel(deviceID, level); err != nil {
		result.Err = err
		c.finishCommand(result)
		return false
	}

	result.Success = true
	c.finishCommand(result)
	return true
}

func (c *Coordinator) finishCommand(result CommandResult) {
	result.At = time.Now()
	if dev, err := c.registry.GetDevice(result.DeviceID); err == nil {
		result.Device = dev
	}

	switch {
	case result.Success:
		c.logger.Info("device command applied",
			"device_id", result.DeviceID,
			"command", result.Command,
			"on", result.On,
			"level", result.Level,
		)
	case errors.Is(result.Err, device.ErrDeviceNotFound), errors.Is(result.Err, ErrUnsupportedCommand):
		c.logger.Warn("device command rejected",
			"device_id", result.DeviceID,
			"command", result.Command,
			"error", result.Err,
		)
	default:
		c.logger.Error("device command failed",
			"device_id", result.DeviceID,
			"command", result.Command,
			"error", result.Err,
		)
	}

	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnCommand(result)
	}
}
