package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

const (
	historyWriteTimeout = 5 * time.Second
	pruneInterval       = time.Hour
)

// PointWriter receives telemetry points. *influxdb.Client implements it.
type PointWriter interface {
	WriteSensor(host string, s device.Sensor)
	WriteDevice(host string, d device.Device)
	WriteSlotParameter(host string, p device.SlotParameter)
	WriteRefresh(host string, at time.Time, duration time.Duration, success bool, stats device.Stats)
}

// HistoryStore persists device state changes.
// *device.SQLiteStateHistoryRepository implements it.
type HistoryStore interface {
	RecordStateChange(ctx context.Context, deviceID string, state device.State, source string) error
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EntitySource lists the entities written after each refresh.
type EntitySource interface {
	ListDevices() []device.Device
	ListSensors() []device.Sensor
	ListSlotParameters() []device.SlotParameter
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Recorder. Points and History are each optional;
// a Recorder with neither does nothing.
type Options struct {
	Host     string
	Entities EntitySource
	Points   PointWriter
	History  HistoryStore

	// Retention bounds state history age; zero keeps history forever.
	Retention time.Duration

	Logger Logger
}

// Recorder is a coordinator.Listener that writes refresh results to the
// time-series store and device state changes to the local history.
type Recorder struct {
	host      string
	entities  EntitySource
	points    PointWriter
	history   HistoryStore
	retention time.Duration
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a recorder.
func New(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		host:      opts.Host,
		entities:  opts.Entities,
		points:    opts.Points,
		history:   opts.History,
		retention: opts.Retention,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// OnRefresh writes every available entity plus one refresh summary point,
// and records each changed device in the history.
func (r *Recorder) OnRefresh(result coordinator.RefreshResult) {
	if r.points != nil {
		r.points.WriteRefresh(r.host, result.StartedAt, result.Duration, result.Err == nil, result.Stats)
		if result.Err == nil && r.entities != nil {
			for _, s := range r.entities.ListSensors() {
				r.points.WriteSensor(r.host, s)
			}
			for _, d := range r.entities.ListDevices() {
				r.points.WriteDevice(r.host, d)
			}
			for _, p := range r.entities.ListSlotParameters() {
				r.points.WriteSlotParameter(r.host, p)
			}
		}
	}

	for _, d := range result.Changed {
		r.record(d, device.StateHistorySourcePoll)
	}
}

// OnCommand records the optimistic device state after a successful command.
func (r *Recorder) OnCommand(result coordinator.CommandResult) {
	if !result.Success || result.Device == nil {
		return
	}
	if r.points != nil {
		r.points.WriteDevice(r.host, *result.Device)
	}
	r.record(*result.Device, device.StateHistorySourceCommand)
}

func (r *Recorder) record(d device.Device, source string) {
	if r.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	if err := r.history.RecordStateChange(ctx, d.ID, d.Snapshot(), source); err != nil {
		r.logger.Warn("failed to record state history", "device_id", d.ID, "source", source, "error", err)
	}
}

// Start runs history pruning hourly when a retention is configured.
func (r *Recorder) Start(ctx context.Context) {
	if r.history == nil || r.retention <= 0 {
		return
	}
	r.wg.Add(1)
	go r.pruneLoop(ctx)
}

// Stop ends pruning. Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	deleted, err := r.history.PruneHistory(ctx, r.retention)
	if err != nil {
		r.logger.Warn("failed to prune state history", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("pruned state history", "deleted", deleted, "retention", r.retention.String())
	}
}
