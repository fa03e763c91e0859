package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the bridge publishes or consumes.
const TopicPrefix = "mannito"

// Entity kinds used as the {kind} segment of state topics.
const (
	KindDevice = "device"
	KindSensor = "sensor"
	KindSlot   = "slot"
)

// Topics builds the bridge's topic hierarchy:
//
//	mannito/state/{host}/{kind}/{id}     retained entity state
//	mannito/command/{host}/device/{id}   inbound device commands
//	mannito/ack/{host}/device/{id}       command acknowledgements
//	mannito/health/{host}                retained bridge health (LWT)
//
// Segments are sanitised so a host or id can never inject a level or wildcard.
type Topics struct{}

// State returns the retained state topic for one entity.
//
// Example: mannito/state/10.0.0.5/sensor/CO2
func (Topics) State(host, kind, id string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, Segment(host), Segment(kind), Segment(id))
}

// Command returns the command topic for one device.
//
// Example: mannito/command/10.0.0.5/device/FAN1
func (Topics) Command(host, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", TopicPrefix, Segment(host), KindDevice, Segment(deviceID))
}

// Ack returns the acknowledgement topic for one device.
//
// Example: mannito/ack/10.0.0.5/device/FAN1
func (Topics) Ack(host, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s/%s", TopicPrefix, Segment(host), KindDevice, Segment(deviceID))
}

// Health returns the bridge health topic for a controller host.
//
// Example: mannito/health/10.0.0.5
func (Topics) Health(host string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Segment(host))
}

// AllCommands matches every device command for a host.
//
// Example: mannito/command/10.0.0.5/device/+
func (Topics) AllCommands(host string) string {
	return fmt.Sprintf("%s/command/%s/%s/+", TopicPrefix, Segment(host), KindDevice)
}

// AllStates matches every retained state for a host.
//
// Example: mannito/state/10.0.0.5/#
func (Topics) AllStates(host string) string {
	return fmt.Sprintf("%s/state/%s/#", TopicPrefix, Segment(host))
}

// ParseCommand extracts host and device id from a command topic.
func (Topics) ParseCommand(topic string) (host, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "command" || parts[3] != KindDevice {
		return "", "", false
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[2], parts[4], true
}

// Segment makes s safe to use as a single topic level: separators and
// wildcards become underscores and an empty value becomes "_".
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
}
