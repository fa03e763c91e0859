package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the Entity Registry: the single owner of every Device, Sensor
// and SlotParameter record of one controller.
//
// Records are created during discovery and then only mutated in place; the
// registry never deletes them. Reads return copies so callers cannot reach
// into the maps. Each write holds the lock for exactly one record, so
// individual field updates are atomic while a whole refresh cycle is not.
//
// All public methods are thread-safe.
type Registry struct {
	devices map[string]*Device
	sensors map[string]*Sensor
	slots   map[string]*SlotParameter
	mu      sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		sensors: make(map[string]*Sensor),
		slots:   make(map[string]*SlotParameter),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// ─── Devices ────────────────────────────────────────────────────────

// GetDevice returns a copy of the device, or ErrDeviceNotFound.
func (r *Registry) GetDevice(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	cp := *d
	return &cp, nil
}

// ListDevices returns copies of all devices ordered by ID.
func (r *Registry) ListDevices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeviceIDs returns the IDs of all known devices.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpsertDevice stores d, replacing any record with the same ID.
func (r *Registry) UpsertDevice(d Device) error {
	if d.ID == "" {
		return ErrMissingID
	}
	d.updateAvailability()

	r.mu.Lock()
	r.devices[d.ID] = &d
	r.mu.Unlock()
	return nil
}

// AddDevice stores d only if its ID is new. It reports whether the device was added.
func (r *Registry) AddDevice(d Device) (bool, error) {
	if d.ID == "" {
		return false, ErrMissingID
	}
	d.updateAvailability()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[d.ID]; exists {
		return false, nil
	}
	r.devices[d.ID] = &d
	return true, nil
}

// UpdateDevice applies fn to the stored device under the write lock and
// recomputes availability. It reports false for unknown IDs; unknown devices
// are never created here.
func (r *Registry) UpdateDevice(id string, fn func(*Device)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return false
	}
	fn(d)
	d.updateAvailability()
	d.UpdatedAt = r.now().UTC()
	return true
}

// SetDeviceState records a confirmed on/off state.
func (r *Registry) SetDeviceState(id string, on bool) error {
	if !r.UpdateDevice(id, func(d *Device) { d.State = on }) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

// SetDevicePowerLevel records a confirmed power level. Devices without a
// power capability are left unchanged.
func (r *Registry) SetDevicePowerLevel(id string, level int) error {
	if !r.UpdateDevice(id, func(d *Device) { d.Power = d.Power.WithLevel(level) }) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

// DeviceCount returns the number of known devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// ─── Sensors ────────────────────────────────────────────────────────

// GetSensor returns a copy of the sensor, or ErrSensorNotFound.
func (r *Registry) GetSensor(id string) (*Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sensors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// ListSensors returns copies of all sensors ordered by ID.
func (r *Registry) ListSensors() []Sensor {
	r.mu.RLock()
	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SensorIDs returns the IDs of all known sensors.
func (r *Registry) SensorIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sensors))
	for id := range r.sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpsertSensor stores s, replacing any record with the same ID.
func (r *Registry) UpsertSensor(s Sensor) error {
	if s.ID == "" {
		return ErrMissingID
	}
	s.updateAvailability()

	r.mu.Lock()
	r.sensors[s.ID] = &s
	r.mu.Unlock()
	return nil
}

// AddSensor stores s only if its ID is new. It reports whether the sensor was added.
func (r *Registry) AddSensor(s Sensor) (bool, error) {
	if s.ID == "" {
		return false, ErrMissingID
	}
	s.updateAvailability()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sensors[s.ID]; exists {
		return false, nil
	}
	r.sensors[s.ID] = &s
	return true, nil
}

// UpdateSensor applies fn to the stored sensor under the write lock and
// recomputes availability. It reports false for unknown IDs.
func (r *Registry) UpdateSensor(id string, fn func(*Sensor)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sensors[id]
	if !ok {
		return false
	}
	fn(s)
	s.updateAvailability()
	s.UpdatedAt = r.now().UTC()
	return true
}

// SensorCount returns the number of known sensors.
func (r *Registry) SensorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// ─── Slot parameters ────────────────────────────────────────────────

// GetSlotParameter returns a copy of the slot parameter, or ErrSlotParameterNotFound.
func (r *Registry) GetSlotParameter(id string) (*SlotParameter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotParameterNotFound, id)
	}
	cp := *p
	return &cp, nil
}

// ListSlotParameters returns copies of all slot parameters ordered by slot index, then ID.
func (r *Registry) ListSlotParameters() []SlotParameter {
	r.mu.RLock()
	out := make([]SlotParameter, 0, len(r.slots))
	for _, p := range r.slots {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotIndex != out[j].SlotIndex {
			return out[i].SlotIndex < out[j].SlotIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SlotParameterIDs returns the IDs of all known slot parameters.
func (r *Registry) SlotParameterIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpsertSlotParameter stores p, replacing any record with the same ID.
func (r *Registry) UpsertSlotParameter(p SlotParameter) error {
	if p.ID == "" {
		return ErrMissingID
	}

	r.mu.Lock()
	r.slots[p.ID] = &p
	r.mu.Unlock()
	return nil
}

// AddSlotParameter stores p only if its ID is new. It reports whether it was added.
func (r *Registry) AddSlotParameter(p SlotParameter) (bool, error) {
	if p.ID == "" {
		return false, ErrMissingID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slots[p.ID]; exists {
		return false, nil
	}
	r.slots[p.ID] = &p
	return true, nil
}

// UpdateSlotParameter applies fn to the stored parameter under the write lock.
// It reports false for unknown IDs.
func (r *Registry) UpdateSlotParameter(id string, fn func(*SlotParameter)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.slots[id]
	if !ok {
		return false
	}
	fn(p)
	p.UpdatedAt = r.now().UTC()
	return true
}

// SlotParameterCount returns the number of known slot parameters.
func (r *Registry) SlotParameterCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// ─── Whole registry ─────────────────────────────────────────────────

// MarkAllUnavailable clears the responding flag of every entity. Used when a
// refresh cycle fails outright.
func (r *Registry) MarkAllUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		d.Responding = false
		d.updateAvailability()
	}
	for _, s := range r.sensors {
		s.Responding = false
		s.updateAvailability()
	}
	for _, p := range r.slots {
		p.Available = false
	}
}

// Stats contains registry statistics.
type Stats struct {
	Devices                 int `json:"devices"`
	AvailableDevices        int `json:"available_devices"`
	Sensors                 int `json:"sensors"`
	AvailableSensors        int `json:"available_sensors"`
	SlotParameters          int `json:"slot_parameters"`
	AvailableSlotParameters int `json:"available_slot_parameters"`
}

// GetStats returns entity counts by category and availability.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Devices:        len(r.devices),
		Sensors:        len(r.sensors),
		SlotParameters: len(r.slots),
	}
	for _, d := range r.devices {
		if d.Available {
			st.AvailableDevices++
		}
	}
	for _, s := range r.sensors {
		if s.Available {
			st.AvailableSensors++
		}
	}
	for _, p := range r.slots {
		if p.Available {
			st.AvailableSlotParameters++
		}
	}
	return st
}
