package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

const namespace = "mannito"

// EntitySource lists the entities exported as gauges. *device.Registry implements it.
type EntitySource interface {
	ListDevices() []device.Device
	ListSensors() []device.Sensor
	ListSlotParameters() []device.SlotParameter
}

// Collector exports refresh, entity and command metrics on a private
// Prometheus registry. It implements coordinator.Listener.
type Collector struct {
	registry *prometheus.Registry
	source   EntitySource
	host     string

	refreshDuration      prometheus.Histogram
	refreshTotal         *prometheus.CounterVec
	lastRefreshTimestamp prometheus.Gauge
	connectionFailure    prometheus.Gauge
	entities             *prometheus.GaugeVec
	deviceState          *prometheus.GaugeVec
	devicePowerLevel     *prometheus.GaugeVec
	sensorValue          *prometheus.GaugeVec
	slotValue            *prometheus.GaugeVec
	commandTotal         *prometheus.CounterVec
}

// New creates a Collector reading entities from source. Host is attached as
// a constant label so several bridges can share one Prometheus.
func New(host string, source EntitySource) *Collector {
	constLabels := prometheus.Labels{"host": host}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		source:   source,
		host:     host,

		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "refresh_duration_seconds",
			Help:        "Duration of controller refresh cycles",
			ConstLabels: constLabels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "refresh_total",
			Help:        "Refresh cycles by result (success, auth_error, connection_error, error)",
			ConstLabels: constLabels,
		}, []string{"result"}),
		lastRefreshTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_refresh_timestamp_seconds",
			Help:        "Unix timestamp of the last successful refresh",
			ConstLabels: constLabels,
		}),
		connectionFailure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_failure",
			Help:        "1 when the last refresh failed, 0 otherwise",
			ConstLabels: constLabels,
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "entities",
			Help:        "Known entities by category and availability",
			ConstLabels: constLabels,
		}, []string{"category", "available"}),
		deviceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "device_on",
			Help:        "Device on/off state (1 = on) for available devices",
			ConstLabels: constLabels,
		}, []string{"device_id", "kind"}),
		devicePowerLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "device_power_level",
			Help:        "Power level of available devices that support one",
			ConstLabels: constLabels,
		}, []string{"device_id"}),
		sensorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "sensor_value",
			Help:        "Latest numeric reading of available sensors",
			ConstLabels: constLabels,
		}, []string{"sensor_id", "kind", "unit"}),
		slotValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "slot_parameter_value",
			Help:        "Slot setpoints",
			ConstLabels: constLabels,
		}, []string{"slot", "parameter"}),
		commandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "commands_total",
			Help:        "Device commands by command and result",
			ConstLabels: constLabels,
		}, []string{"command", "result"}),
	}

	c.registry.MustRegister(
		c.refreshDuration,
		c.refreshTotal,
		c.lastRefreshTimestamp,
		c.connectionFailure,
		c.entities,
		c.deviceState,
		c.devicePowerLevel,
		c.sensorValue,
		c.slotValue,
		c.commandTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry, for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OnRefresh updates cycle counters and re-exports every entity gauge.
// Entity gauges are reset first so removed or unavailable entities vanish.
func (c *Collector) OnRefresh(result coordinator.RefreshResult) {
	c.refreshDuration.Observe(result.Duration.Seconds())
	c.refreshTotal.WithLabelValues(refreshResultLabel(result.Err)).Inc()

	if result.Err != nil {
		c.connectionFailure.Set(1)
	} else {
		c.connectionFailure.Set(0)
		c.lastRefreshTimestamp.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
	}

	stats := result.Stats
	c.entities.WithLabelValues("device", "true").Set(float64(stats.AvailableDevices))
	c.entities.WithLabelValues("device", "false").Set(float64(stats.Devices - stats.AvailableDevices))
	c.entities.WithLabelValues("sensor", "true").Set(float64(stats.AvailableSensors))
	c.entities.WithLabelValues("sensor", "false").Set(float64(stats.Sensors - stats.AvailableSensors))
	c.entities.WithLabelValues("slot_parameter", "true").Set(float64(stats.AvailableSlotParameters))
	c.entities.WithLabelValues("slot_parameter", "false").Set(float64(stats.SlotParameters - stats.AvailableSlotParameters))

	c.exportEntities()
}

func (c *Collector) exportEntities() {
	if c.source == nil {
		return
	}

	c.deviceState.Reset()
	c.devicePowerLevel.Reset()
	for _, d := range c.source.ListDevices() {
		if !d.Available {
			continue
		}
		c.deviceState.WithLabelValues(d.ID, string(d.Type.Kind)).Set(boolValue(d.State))
		if level, ok := d.CurrentPowerLevel(); ok {
			c.devicePowerLevel.WithLabelValues(d.ID).Set(float64(level))
		}
	}

	c.sensorValue.Reset()
	for _, s := range c.source.ListSensors() {
		if !s.Available {
			continue
		}
		if v, ok := device.NativeValue(&s); ok {
			if f, numeric := v.(float64); numeric {
				c.sensorValue.WithLabelValues(s.ID, string(s.Type.Kind), s.Unit).Set(f)
			}
		}
	}

	c.slotValue.Reset()
	for _, p := range c.source.ListSlotParameters() {
		if p.Available {
			c.slotValue.WithLabelValues(p.SlotName, p.Parameter.String()).Set(p.Value)
		}
	}
}

// OnCommand counts a Command Gateway call.
func (c *Collector) OnCommand(result coordinator.CommandResult) {
	label := "success"
	switch {
	case result.Success:
	case errors.Is(result.Err, coordinator.ErrUnsupportedCommand):
		label = "rejected"
	case errors.Is(result.Err, device.ErrDeviceNotFound):
		label = "unknown_device"
	default:
		label = "failed"
	}
	c.commandTotal.WithLabelValues(result.Command, label).Inc()
}

func refreshResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, controller.ErrAuth):
		return "auth_error"
	case errors.Is(err, controller.ErrConnection):
		return "connection_error"
	default:
		return "error"
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
