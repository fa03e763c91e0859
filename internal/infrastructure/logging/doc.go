// Package logging builds the bridge's log/slog logger.
//
// Output is JSON by default and text when logging.format is "text". Every
// entry carries service and version attributes, and Component derives
// child loggers for the controller client, coordinator, MQTT bridge and
// HTTP API:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("coordinator").Info("refresh complete", "devices", 12)
//
// Attributes keyed password, token, secret, authorization or ticket (or
// ending in _password, _token and so on) are written as [REDACTED].
package logging
