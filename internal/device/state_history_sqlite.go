package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat matches strftime('%Y-%m-%dT%H:%M:%fZ') so rows
	// written by SQLite defaults and by Go sort and compare as text.
	historyTimeFormat = "2006-01-02T15:04:05.000Z"
)

// SQLiteStateHistoryRepository keeps device snapshots as JSON in the
// device_state_history table.
type SQLiteStateHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStateHistoryRepository creates a repository on an open database
// whose schema has been migrated.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db, now: time.Now}
}

// RecordStateChange inserts one snapshot for deviceID.
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, deviceID string, state State, source string) error {
	if deviceID == "" {
		return ErrMissingID
	}
	if source == "" {
		source = StateHistorySourcePoll
	}
	if state == nil {
		state = State{}
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state of %s: %w", deviceID, err)
	}

	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO device_state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID, string(raw), source, formatHistoryTime(r.now()),
	); err != nil {
		return fmt.Errorf("inserting state history for %s: %w", deviceID, err)
	}
	return nil
}

// GetHistory returns the entries of deviceID selected by q.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Controller device identifier
//   - q: Lower time bound and page size
//
// Returns:
//   - []StateHistoryEntry: Newest first, never nil
//   - error: ErrMissingID or the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, deviceID string, q HistoryQuery) ([]StateHistoryEntry, error) {
	if deviceID == "" {
		return nil, ErrMissingID
	}
	limit := clampHistoryLimit(q.Limit)

	query := `SELECT id, device_id, state, source, created_at
		 FROM device_state_history
		 WHERE device_id = ?`
	args := []any{deviceID}
	if !q.Since.IsZero() {
		query += " AND created_at > ?"
		args = append(args, formatHistoryTime(q.Since))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     StateHistoryEntry
			raw       string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &raw, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &entry.State); err != nil {
			return nil, fmt.Errorf("decoding state history row %d: %w", entry.ID, err)
		}
		if entry.CreatedAt, err = parseHistoryTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan and reports how many
// rows went.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history retention must be positive, got %s", olderThan)
	}

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM device_state_history WHERE created_at < ?",
		formatHistoryTime(r.now().Add(-olderThan)),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning state history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning state history: %w", err)
	}
	return n, nil
}

func clampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

func formatHistoryTime(t time.Time) string {
	return t.UTC().Format(historyTimeFormat)
}

// parseHistoryTime accepts any RFC3339 timestamp.
func parseHistoryTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing history timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
