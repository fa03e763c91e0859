package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

// infoRetryBackoff is how long a failed metadata fetch is remembered before
// the controller is asked again.
const infoRetryBackoff = 5 * time.Minute

// infoFetcher is the slice of Controller the cache needs.
type infoFetcher interface {
	FetchDeviceInfo(ctx context.Context) (*controller.InfoPayload, error)
}

// MetadataCache lazily fetches controller identity metadata and keeps it for
// the lifetime of the coordinator unless invalidated.
//
// A failed fetch never propagates: the last persisted copy is returned if a
// store is configured, otherwise host-derived defaults. That fallback is
// served for infoRetryBackoff before the controller is asked again, so an
// unreachable controller does not cost every cycle an extra request.
type MetadataCache struct {
	fetcher infoFetcher
	host    string
	store   device.InfoStore
	logger  Logger

	now func() time.Time

	mu       sync.Mutex
	info     device.Info
	fetched  bool
	fallback *device.Info
	retryAt  time.Time
}

// NewMetadataCache creates a cache for the controller at host. store may be nil.
func NewMetadataCache(fetcher infoFetcher, host string, store device.InfoStore) *MetadataCache {
	return &MetadataCache{
		fetcher: fetcher,
		host:    host,
		store:   store,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the cache.
func (m *MetadataCache) SetLogger(logger Logger) {
	m.logger = logger
}

// Get returns cached metadata, fetching it on first use.
func (m *MetadataCache) Get(ctx context.Context) device.Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fetched {
		return m.info
	}
	if m.fallback != nil && m.now().Before(m.retryAt) {
		return *m.fallback
	}

	payload, err := m.fetcher.FetchDeviceInfo(ctx)
	if err != nil {
		m.logger.Warn("device info unavailable, using fallback",
			"host", m.host,
			"error", fmt.Errorf("%w: %w", ErrPartialData, err),
		)
		info := m.loadFallback(ctx)
		// A cancelled caller says nothing about the controller.
		if ctx.Err() == nil {
			m.fallback = &info
			m.retryAt = m.now().Add(infoRetryBackoff)
		}
		return info
	}

	m.info = infoFromPayload(payload).WithDefaults(m.host)
	m.fetched = true
	m.fallback = nil

	if m.store != nil {
		if err := m.store.SaveInfo(ctx, m.host, m.info); err != nil {
			m.logger.Warn("failed to persist device info", "host", m.host, "error", err)
		}
	}
	return m.info
}

// Cached returns the metadata without any I/O; ok is false until a fetch succeeded.
func (m *MetadataCache) Cached() (device.Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, m.fetched
}

// Invalidate forces the next Get to fetch again, even while backing off.
func (m *MetadataCache) Invalidate() {
	m.mu.Lock()
	m.fetched = false
	m.fallback = nil
	m.mu.Unlock()
}

func (m *MetadataCache) loadFallback(ctx context.Context) device.Info {
	if m.store != nil {
		stored, err := m.store.LoadInfo(ctx, m.host)
		if err == nil {
			return stored.WithDefaults(m.host)
		}
		if !errors.Is(err, device.ErrInfoNotFound) {
			m.logger.Warn("failed to load persisted device info", "host", m.host, "error", err)
		}
	}
	return device.DefaultInfo(m.host)
}

func infoFromPayload(p *controller.InfoPayload) device.Info {
	return device.Info{
		Name:            string(p.Name),
		Manufacturer:    string(p.Manufacturer),
		Model:           string(p.Model),
		FirmwareVersion: string(p.FirmwareVersion),
		HardwareVersion: string(p.HardwareVersion),
		SerialNumber:    string(p.SerialNumber),
		Uptime:          string(p.Uptime),
		IPAddress:       string(p.IPAddress),
	}
}
