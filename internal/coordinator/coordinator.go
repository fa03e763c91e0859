package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

// Options holds the dependencies of a Coordinator.
type Options struct {
	// Controller is the REST client of the controller (required).
	Controller Controller

	// Registry receives all entities (required). One registry per coordinator.
	Registry *device.Registry

	// InfoStore persists controller metadata between restarts (optional).
	InfoStore device.InfoStore

	// ExternalSensors supplies host readings forwarded every cycle (optional).
	ExternalSensors ExternalSensorSource

	// Logger for operator diagnostics (optional).
	Logger Logger
}

// Coordinator keeps the Entity Registry in sync with one controller.
//
// It combines the Synchronization Engine (Refresh), the Command Gateway
// (SetDeviceState, SetPowerLevel) and the Device Metadata Cache. Refresh
// cycles never overlap; commands may run concurrently with a cycle, and the
// next cycle reconciles any interleaving within one poll interval.
type Coordinator struct {
	ctrl     Controller
	registry *device.Registry
	meta     *MetadataCache
	external ExternalSensorSource
	logger   Logger
	host     string

	refreshMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []Listener

	lastMu   sync.RWMutex
	last     RefreshResult
	haveLast bool
}

// New creates a coordinator.
//
// Parameters:
//   - opts: Dependencies; Controller and Registry are required
//
// Returns:
//   - *Coordinator: Ready for Refresh (no request is made here)
//   - error: ErrInvalidOptions if a required dependency is missing
func New(opts Options) (*Coordinator, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("%w: controller is required", ErrInvalidOptions)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidOptions)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	host := opts.Controller.Host()
	meta := NewMetadataCache(opts.Controller, host, opts.InfoStore)
	meta.SetLogger(logger)

	return &Coordinator{
		ctrl:     opts.Controller,
		registry: opts.Registry,
		meta:     meta,
		external: opts.ExternalSensors,
		logger:   logger,
		host:     host,
	}, nil
}

// AddListener registers l for refresh and command notifications.
func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Host returns the controller host this coordinator serves.
func (c *Coordinator) Host() string {
	return c.host
}

// Registry returns the registry owned by this coordinator.
func (c *Coordinator) Registry() *device.Registry {
	return c.registry
}

// DeviceInfo returns controller metadata, fetching it lazily on first use.
func (c *Coordinator) DeviceInfo(ctx context.Context) device.Info {
	return c.meta.Get(ctx)
}

// InvalidateDeviceInfo makes the next DeviceInfo call fetch again.
func (c *Coordinator) InvalidateDeviceInfo() {
	c.meta.Invalidate()
}

// LastRefresh returns the result of the most recent cycle.
func (c *Coordinator) LastRefresh() (RefreshResult, bool) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last, c.haveLast
}

// ProbeDevice fetches the live state of one device straight from the
// controller. It does not touch the registry.
func (c *Coordinator) ProbeDevice(ctx context.Context, deviceID string) (controller.Payload, error) {
	return c.ctrl.FetchDeviceState(ctx, deviceID)
}

// Refresh runs one synchronization cycle:
//
//  1. fetch metadata once (failure falls back to defaults)
//  2. forward external sensor readings (failure is logged)
//  3. discover devices and sensors if the registry has none
//  4. fetch the bulk snapshot
//  5. reconcile devices, slot parameters and sensors
//
// A failed bulk fetch, a malformed devices or sensors section, or a failed
// discovery marks every entity unavailable and returns ErrUpdateFailed. Slot
// problems are logged and only make slot parameters unavailable. Nothing is
// retried here; the caller owns the retry cadence.
//
// If ctx ends before the cycle completes, Refresh returns ErrRefreshAborted
// without marking anything unavailable or notifying listeners.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	snap, changed, err := c.refresh(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshAborted, err)
	}
	if err != nil {
		c.registry.MarkAllUnavailable()
		err = fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	result := RefreshResult{
		StartedAt: start,
		Duration:  time.Since(start),
		Snapshot:  snap,
		Err:       err,
		Changed:   changed,
		Stats:     c.registry.GetStats(),
	}

	c.lastMu.Lock()
	c.last = result
	c.haveLast = true
	c.lastMu.Unlock()

	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnRefresh(result)
	}

	return snap, err
}

func (c *Coordinator) refresh(ctx context.Context) (Snapshot, []device.Device, error) {
	c.meta.Get(ctx)
	c.pushExternalSensors(ctx)

	if c.registry.DeviceCount() == 0 {
		if err := c.Discover(ctx); err != nil {
			return nil, nil, err
		}
	}

	bulk, err := c.ctrl.FetchBulkState(ctx)
	if err != nil {
		return nil, nil, err
	}

	// Primary sections are decoded before anything is applied, so a
	// malformed sensors section cannot leave devices half-reconciled.
	devices, err := bulk.DeviceStatuses()
	if err != nil {
		return nil, nil, err
	}
	sensors, err := bulk.SensorReadings()
	if err != nil {
		return nil, nil, err
	}

	snap := make(Snapshot)
	changed := c.reconcileDevices(devices, snap)
	c.reconcileSlots(bulk, snap)
	c.reconcileSensors(sensors, snap)

	return snap, changed, nil
}

// Discover populates the registry from the component catalog. It only adds
// ids that are not yet known, so calling it again never duplicates entities.
func (c *Coordinator) Discover(ctx context.Context) error {
	catalog, err := c.ctrl.FetchComponentCatalog(ctx)
	if err != nil {
		return err
	}

	var addedDevices, addedSensors int
	for _, cd := range catalog.Devices {
		if cd.ID == "" {
			continue
		}
		dev := c.deviceFromCatalog(cd)
		added, err := c.registry.AddDevice(dev)
		if err != nil {
			c.logger.Warn("skipping catalog device", "device_id", cd.ID, "error", err)
			continue
		}
		if added {
			addedDevices++
		}
	}

	for _, cs := range catalog.Sensors {
		if cs.ID == "" {
			continue
		}
		sensor := c.sensorFromCatalog(cs)
		added, err := c.registry.AddSensor(sensor)
		if err != nil {
			c.logger.Warn("skipping catalog sensor", "sensor_id", cs.ID, "error", err)
			continue
		}
		if added {
			addedSensors++
		}
	}

	c.logger.Info("discovery complete",
		"host", c.host,
		"devices_added", addedDevices,
		"sensors_added", addedSensors,
		"devices_total", c.registry.DeviceCount(),
		"sensors_total", c.registry.SensorCount(),
	)
	return nil
}

func (c *Coordinator) deviceFromCatalog(cd controller.CatalogDevice) device.Device {
	dt := device.ParseDeviceType(cd.DeviceType)
	if dt.IsOther() {
		c.logger.Warn("unknown device type, classified as other",
			"device_id", cd.ID,
			"device_type", cd.DeviceType,
		)
	}

	power := device.Unsupported()
	if cd.PowerLevelSupported {
		maxLevel := device.DefaultMaxPowerLevel
		if cd.MaxPowerLevel != nil {
			maxLevel = *cd.MaxPowerLevel
		}
		power = device.Supported(derefInt(cd.PowerLevel), maxLevel)
	}

	return device.Device{
		ID:          cd.ID,
		UniqueID:    device.ScopedID(c.host, cd.ID),
		Type:        dt,
		Name:        nameOr(cd.Name, cd.ID),
		State:       cd.State != nil && *cd.State,
		Power:       power,
		Enabled:     flagOrTrue(cd.IsEnabled),
		Initialized: flagOrTrue(cd.IsInitialized),
	}
}

func (c *Coordinator) sensorFromCatalog(cs controller.CatalogSensor) device.Sensor {
	st := device.ParseSensorType(cs.SensorType)
	if st.IsOther() {
		c.logger.Warn("unknown sensor type, classified as other",
			"sensor_id", cs.ID,
			"sensor_type", cs.SensorType,
		)
	}

	valid := cs.IsValid != nil && *cs.IsValid
	s := device.Sensor{
		ID:          cs.ID,
		UniqueID:    device.ScopedID(c.host, cs.ID),
		Type:        st,
		Name:        nameOr(cs.Name, cs.ID),
		Unit:        cs.Unit,
		Valid:       valid,
		Enabled:     flagOrTrue(cs.IsEnabled),
		Initialized: flagOrTrue(cs.IsInitialized),
	}
	if s.Unit == "" {
		s.Unit = device.DescribeSensor(st).Unit
	}
	if valid {
		s.Value = string(cs.SensorValue)
	}
	return s
}

// reconcileDevices applies bulk entries to known devices. Entries for the
// same id are applied in order, so the last one wins field by field.
// Unknown ids are ignored.
func (c *Coordinator) reconcileDevices(statuses []controller.DeviceStatus, snap Snapshot) []device.Device {
	byID := make(map[string][]controller.DeviceStatus, len(statuses))
	for _, st := range statuses {
		byID[st.ID] = append(byID[st.ID], st)
	}

	var changed []device.Device
	for _, id := range c.registry.DeviceIDs() {
		entries := byID[id]

		var before device.Device
		c.registry.UpdateDevice(id, func(d *device.Device) {
			before = *d
			d.Responding = len(entries) > 0
			for _, st := range entries {
				if st.State != nil {
					d.State = *st.State
				}
				if st.PowerLevel != nil {
					d.Power = d.Power.WithLevel(*st.PowerLevel)
				}
				if st.Enabled != nil {
					d.Enabled = *st.Enabled
				}
				if st.Initialized != nil {
					d.Initialized = *st.Initialized
				}
			}
		})

		if len(entries) > 0 {
			snap[id] = entries[len(entries)-1].Raw
		} else {
			snap[id] = controller.Payload{}
		}

		after, err := c.registry.GetDevice(id)
		if err == nil && deviceChanged(&before, after) {
			changed = append(changed, *after)
		}
	}
	return changed
}

// reconcileSlots never fails the cycle. On a malformed section every slot
// parameter stays unavailable.
func (c *Coordinator) reconcileSlots(bulk *controller.BulkState, snap Snapshot) {
	known := c.registry.SlotParameterIDs()

	slots, err := bulk.SlotStatuses()
	if err != nil {
		c.logger.Warn("slot data unavailable", "error", fmt.Errorf("%w: %w", ErrPartialData, err))
		for _, id := range known {
			c.registry.UpdateSlotParameter(id, func(p *device.SlotParameter) { p.Available = false })
			snap[id] = controller.Payload{}
		}
		return
	}

	if len(known) == 0 {
		c.discoverSlots(slots)
		known = c.registry.SlotParameterIDs()
	}

	type slotEntry struct {
		value *float64
		raw   controller.Payload
	}
	byID := make(map[string][]slotEntry)
	for _, slot := range slots {
		for _, p := range slot.Parameters {
			id := device.SlotParameterID(slot.Name, slot.Index, p.Parameter)
			byID[id] = append(byID[id], slotEntry{value: p.Value, raw: p.Raw})
		}
	}

	for _, id := range known {
		entries := byID[id]
		c.registry.UpdateSlotParameter(id, func(p *device.SlotParameter) {
			p.Available = len(entries) > 0
			for _, e := range entries {
				if e.value != nil {
					p.Value = *e.value
				}
			}
		})
		if len(entries) > 0 {
			snap[id] = entries[len(entries)-1].raw
		} else {
			snap[id] = controller.Payload{}
		}
	}
}

// discoverSlots adds slot parameters found in the first usable snapshot.
func (c *Coordinator) discoverSlots(slots []controller.SlotStatus) {
	added := 0
	for _, slot := range slots {
		for _, p := range slot.Parameters {
			var value float64
			if p.Value != nil {
				value = *p.Value
			}
			param := device.NewSlotParameter(c.host, slot.Name, slot.Index, p.Parameter, value)
			if param.Parameter.IsOther() {
				c.logger.Warn("unknown slot parameter, classified as other",
					"slot", slot.Name,
					"parameter", p.Parameter,
				)
			}
			ok, err := c.registry.AddSlotParameter(param)
			if err != nil {
				c.logger.Warn("skipping slot parameter", "slot", slot.Name, "parameter", p.Parameter, "error", err)
				continue
			}
			if ok {
				added++
			}
		}
	}
	if added > 0 {
		c.logger.Info("slot parameters discovered", "host", c.host, "count", added)
	}
}

// reconcileSensors overwrites a value only when the reading is valid.
func (c *Coordinator) reconcileSensors(readings []controller.SensorReading, snap Snapshot) {
	byID := make(map[string][]controller.SensorReading, len(readings))
	for _, r := range readings {
		byID[r.ID] = append(byID[r.ID], r)
	}

	for _, id := range c.registry.SensorIDs() {
		entries := byID[id]
		c.registry.UpdateSensor(id, func(s *device.Sensor) {
			s.Responding = len(entries) > 0
			for _, r := range entries {
				s.Valid = r.Valid
				if r.Valid && r.Value != nil {
					s.Value = *r.Value
				}
				if r.Unit != "" {
					s.Unit = r.Unit
				}
				if r.Enabled != nil {
					s.Enabled = *r.Enabled
				}
				if r.Initialized != nil {
					s.Initialized = *r.Initialized
				}
			}
		})
		if len(entries) > 0 {
			snap[id] = entries[len(entries)-1].Raw
		} else {
			snap[id] = controller.Payload{}
		}
	}
}

// pushExternalSensors forwards host readings. Empty and "unknown" states are skipped.
func (c *Coordinator) pushExternalSensors(ctx context.Context) {
	if c.external == nil {
		return
	}
	readings := make(map[string]controller.ExternalReading)
	for id, r := range c.external.ExternalReadings() {
		state := strings.TrimSpace(r.State)
		if state == "" || strings.EqualFold(state, "unknown") {
			continue
		}
		readings[id] = r
	}
	if len(readings) == 0 {
		return
	}
	if err := c.ctrl.PushExternalSensors(ctx, readings); err != nil {
		level := c.logger.Warn
		if errors.Is(err, controller.ErrAuth) {
			level = c.logger.Error
		}
		level("failed to push external sensors", "count", len(readings), "error", err)
		return
	}
	c.logger.Debug("external sensors pushed", "count", len(readings))
}

func deviceChanged(before, after *device.Device) bool {
	if before.State != after.State || before.Available != after.Available {
		return true
	}
	bl, bok := before.Power.Level()
	al, aok := after.Power.Level()
	return bok != aok || bl != al
}

func flagOrTrue(b *bool) bool {
	return b == nil || *b
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
