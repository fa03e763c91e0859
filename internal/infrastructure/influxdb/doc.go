// Package influxdb records Mannito controller telemetry in InfluxDB v2.
//
// After every refresh the bridge writes:
//   - mannito_sensor: one point per available sensor (tags host, sensor_id, kind, unit)
//   - mannito_device: on/off state, availability and power level per device
//   - mannito_slot: slot setpoints (tags host, slot, parameter)
//   - mannito_refresh: cycle duration, success and availability counts
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteSensor(host, sensor)
//
// Writes are batched (batch_size, flush_interval) and never block the poll
// loop. Batch failures are reported through SetOnError and counted by
// WriteErrors.
package influxdb
