// Package mqtt provides the broker connection used by the Mannito bridge.
//
// The bridge publishes controller entities as retained JSON state, listens
// for device commands, answers them with acknowledgements and collects host
// sensor readings that are pushed to the controller on each refresh.
//
// # Architecture
//
//	Mannito controller ←HTTP→ coordinator → bridges/mannito ↔ MQTT broker ↔ home automation
//
// The Client adds three things over paho:
//   - subscriptions survive reconnects (clean sessions drop them broker-side)
//   - handler panics are recovered and handler errors logged
//   - a Last Will can be registered so subscribers see the bridge go offline
//
// # Topics
//
// See Topics for the hierarchy. Every builder sanitises its segments, so
// hosts such as "10.0.0.5" and ids with slashes are safe.
//
// # Usage
//
//	topics := mqtt.Topics{}
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithWill(topics.Health(host), []byte(`{"status":"offline"}`)))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(topics.State(host, mqtt.KindSensor, "CO2"), payload)
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on the same host
//   - Command topics control real equipment; restrict them with broker ACLs
package mqtt
