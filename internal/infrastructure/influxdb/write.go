package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mannito-bridge/internal/device"
)

// Measurement names written by the bridge.
const (
	MeasurementSensor  = "mannito_sensor"
	MeasurementDevice  = "mannito_device"
	MeasurementSlot    = "mannito_slot"
	MeasurementRefresh = "mannito_refresh"
)

// WriteSensor records one sensor reading.
//
// Only available sensors are written. Numeric readings go to the "value"
// field; readings of non-numeric kinds go to "text". A measurement sensor
// whose value cannot be parsed is skipped.
//
// Parameters:
//   - host: Controller host, used as a tag
//   - s: Sensor as held by the registry
func (c *Client) WriteSensor(host string, s device.Sensor) {
	if !c.IsConnected() || !s.Available {
		return
	}

	value, ok := device.NativeValue(&s)
	if !ok {
		return
	}

	fields := map[string]interface{}{}
	switch v := value.(type) {
	case float64:
		fields["value"] = v
	default:
		fields["text"] = v
	}

	tags := map[string]string{
		"host":      host,
		"sensor_id": s.ID,
		"kind":      string(s.Type.Kind),
	}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}

	c.writeAPI.WritePoint(write.NewPoint(MeasurementSensor, tags, fields, pointTime(s.UpdatedAt)))
}

// WriteDevice records a device's on/off state, availability and, for
// devices that support it, power level.
func (c *Client) WriteDevice(host string, d device.Device) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"state":     d.State,
		"available": d.Available,
	}
	if level, ok := d.CurrentPowerLevel(); ok {
		fields["powerlevel"] = level
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDevice,
		map[string]string{
			"host":      host,
			"device_id": d.ID,
			"kind":      string(d.Type.Kind),
		},
		fields,
		pointTime(d.UpdatedAt),
	))
}

// WriteSlotParameter records one slot setpoint. Unavailable parameters are skipped.
func (c *Client) WriteSlotParameter(host string, p device.SlotParameter) {
	if !c.IsConnected() || !p.Available {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSlot,
		map[string]string{
			"host":      host,
			"slot":      p.SlotName,
			"parameter": p.Parameter.String(),
		},
		map[string]interface{}{"value": p.Value},
		pointTime(p.UpdatedAt),
	))
}

// WriteRefresh records the outcome of one refresh cycle.
func (c *Client) WriteRefresh(host string, at time.Time, duration time.Duration, success bool, stats device.Stats) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementRefresh,
		map[string]string{"host": host},
		map[string]interface{}{
			"duration_ms":       duration.Milliseconds(),
			"success":           success,
			"devices_available": stats.AvailableDevices,
			"sensors_available": stats.AvailableSensors,
		},
		pointTime(at),
	))
}

// WritePoint writes an arbitrary point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
