// Package telemetry records refresh cycles and commands: every available
// entity goes to InfluxDB after a successful refresh, and device state
// changes go to the local SQLite history, which is pruned to the configured
// retention.
package telemetry
