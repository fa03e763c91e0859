package device

import (
	"context"
	"time"
)

// History sources.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceCommand = "command"
)

// State is the runtime part of a device kept in history. See Device.Snapshot.
type State map[string]any

// StateHistoryEntry is one recorded device state.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryQuery selects history entries of one device, newest first.
//
// A zero Since places no lower bound. Limit is clamped to 1..200 and
// defaults to 50.
type HistoryQuery struct {
	Since time.Time
	Limit int
}

// StateHistoryRepository stores device state changes observed by polling
// or caused by commands.
type StateHistoryRepository interface {
	// RecordStateChange stores one snapshot. An empty source means poll.
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns entries strictly after q.Since, newest first.
	GetHistory(ctx context.Context, deviceID string, q HistoryQuery) ([]StateHistoryEntry, error)
}
