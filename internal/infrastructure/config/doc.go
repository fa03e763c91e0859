// Package config loads the bridge's YAML configuration.
//
// Load reads the file over built-in defaults, applies MANNITO_* environment
// overrides (controller credentials, MQTT and InfluxDB secrets, the JWT
// secret, log level, API host) and validates the result. A config that
// fails validation is never returned.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return fmt.Errorf("loading configuration: %w", err)
//	}
//	interval := cfg.PollInterval()
//
// security.jwt.secret has no default and must be at least 32 characters.
// Keep the file at 0600 when it holds the controller password; the
// environment variables exist so it does not have to.
package config
