// Package coordinator keeps the device registry in sync with a Mannito
// Farming controller and routes commands to it.
//
// # Architecture
//
//	              ┌──────────────┐  Refresh   ┌──────────────────┐
//	Scheduler ───►│ Coordinator  │───────────►│ controller.Client│──► REST
//	              │              │◄───────────│                  │
//	 API/MQTT ───►│  commands    │  Snapshot  └──────────────────┘
//	              └──────┬───────┘
//	                     │ reconcile
//	                     ▼
//	              device.Registry ──► Listeners (MQTT, InfluxDB, history)
//
// # Refresh Cycle
//
// Each cycle fetches metadata once, forwards external sensor readings,
// discovers entities if the registry is empty, then reconciles the bulk
// snapshot category by category. Every known entity starts the cycle as
// not responding; only entries present in the response flip it back.
//
// Devices and sensors are primary: a failed bulk fetch or a malformed
// section fails the cycle with ErrUpdateFailed and marks everything
// unavailable. Slot parameters and metadata are optional and only logged.
//
// # Commands
//
// SetDeviceState and SetPowerLevel return a plain bool. On success the
// registry is written optimistically; the next poll confirms or corrects it.
//
// # Thread Safety
//
// Refresh cycles are serialised. Commands may run concurrently with a cycle.
package coordinator
