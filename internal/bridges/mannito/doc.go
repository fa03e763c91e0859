// Package mannito mirrors a Mannito Farming controller onto MQTT.
//
// # Architecture
//
//	┌──────────────┐  Listener  ┌─────────────────┐   MQTT   ┌──────────┐
//	│ Coordinator  │───────────►│  Bridge (this)  │◄────────►│  Broker  │
//	│              │◄───────────│                 │          └──────────┘
//	└──────────────┘  commands  └─────────────────┘
//
// # Topics
//
//   - mannito/state/{host}/{kind}/{id}: retained entity state (device, sensor, slot)
//   - mannito/command/{host}/device/{id}: on, off, set_powerlevel
//   - mannito/ack/{host}/device/{id}: accepted, rejected or failed
//   - mannito/health/{host}: retained health, offline via Last Will
//
// State is only republished when its payload changes. Commands are
// validated locally before the controller is contacted, so a rejected
// ack means no request was made.
//
// # External Sensors
//
// ExternalSensors subscribes to the host sensor topics listed in the
// controller configuration and keeps the latest reading of each. The
// coordinator forwards them to the controller every cycle.
//
// # Thread Safety
//
// All exported types are safe for concurrent use once started.
package mannito
