package coordinator

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is used when the scheduler is created with a zero interval.
const DefaultPollInterval = 30 * time.Second

// Refresher runs one synchronization cycle. *Coordinator implements it.
type Refresher interface {
	Refresh(ctx context.Context) (Snapshot, error)
}

// Scheduler drives a Refresher at a fixed interval.
//
// The first cycle runs as soon as Start is called. A failed cycle is logged
// and the next one runs on the normal cadence; there is no backoff. On-demand
// cycles (Refresh) run on the same goroutine, so cycles never
// overlap, and they restart the interval.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    Logger

	requests chan chan<- refreshReply
	stopped  chan struct{}

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a scheduler for refresher.
//
// Parameters:
//   - refresher: The cycle to run (usually a *Coordinator)
//   - interval: Time between cycles; zero means DefaultPollInterval
//
// Returns:
//   - *Scheduler: Ready to start
func NewScheduler(refresher Refresher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		logger:    noopLogger{},
		requests:  make(chan chan<- refreshReply),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Interval returns the poll interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins polling in a background goroutine. Call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

type refreshReply struct {
	snap Snapshot
	err  error
}

// Refresh runs a cycle on the scheduler goroutine and waits for its result.
// The cycle runs under the scheduler's context, so a caller that gives up
// early (ctx done) leaves it to finish and gets ctx.Err(). *Scheduler
// therefore satisfies Refresher.
func (s *Scheduler) Refresh(ctx context.Context) (Snapshot, error) {
	reply := make(chan refreshReply, 1)
	select {
	case s.requests <- reply:
	case <-s.stopped:
		return nil, ErrSchedulerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops polling and waits for a running cycle to finish.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case reply := <-s.requests:
			snap, err := s.runOnce(ctx)
			reply <- refreshReply{snap: snap, err: err}
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snap, err := s.refresher.Refresh(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
	case err != nil:
		s.logger.Warn("refresh failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	default:
		s.logger.Debug("refresh complete", "entities", len(snap), "duration_ms", time.Since(start).Milliseconds())
	}
	return snap, err
}
