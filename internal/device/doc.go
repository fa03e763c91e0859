// Package device holds the Entity Registry of a Mannito Farming controller.
//
// A controller exposes three kinds of entity, each kept in its own
// collection keyed by a stable identifier:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Registry                              │
//	│                                                              │
//	│  devices  map[device_id]*Device        (valves, fans, ...)   │
//	│  sensors  map[sensor_id]*Sensor        (CO2, pH, EC, ...)    │
//	│  slots    map[parameter_id]*SlotParameter                    │
//	│                                                              │
//	│  • created once at discovery, never deleted                  │
//	│  • mutated in place per poll and per command                 │
//	│  • reads return copies, writes lock one record               │
//	└──────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Device: actuator with on/off state and an optional PowerCapability
//   - Sensor: read-only reading that only changes when marked valid
//   - SlotParameter: setpoint of a named slot; its ID is derived by SlotParameterID
//   - Enum: closed enumeration whose "other" arm keeps the raw wire string
//   - Info: controller identity metadata with host-derived defaults
//
// # Availability
//
// Devices are available when they answered the latest bulk poll and are
// enabled and initialised. Sensors additionally require a valid reading.
// Slot parameters are available when their (slot, parameter) pair was in the
// latest poll.
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//
//	added, _ := reg.AddDevice(device.Device{ID: "FAN1", Type: device.ParseDeviceType("fan")})
//	reg.UpdateDevice("FAN1", func(d *device.Device) { d.Responding = true })
//
//	fan, err := reg.GetDevice("FAN1")
//
// Persistence is limited to history (SQLiteStateHistoryRepository) and cached
// controller metadata (SQLiteInfoStore); the registry itself is in memory.
package device
