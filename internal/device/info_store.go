package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InfoStore persists the last successfully fetched controller metadata so a
// restart with the controller offline still shows real identity fields.
type InfoStore interface {
	LoadInfo(ctx context.Context, host string) (*Info, error)
	SaveInfo(ctx context.Context, host string, info Info) error
}

// SQLiteInfoStore implements InfoStore on the controller_info table.
type SQLiteInfoStore struct {
	db *sql.DB
}

// NewSQLiteInfoStore creates a store backed by db.
func NewSQLiteInfoStore(db *sql.DB) *SQLiteInfoStore {
	return &SQLiteInfoStore{db: db}
}

// LoadInfo returns the stored metadata for host, or ErrInfoNotFound.
func (s *SQLiteInfoStore) LoadInfo(ctx context.Context, host string) (*Info, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT info FROM controller_info WHERE host = ?", host,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInfoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying controller info: %w", err)
	}

	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("unmarshalling controller info: %w", err)
	}
	return &info, nil
}

// SaveInfo upserts the metadata for host.
func (s *SQLiteInfoStore) SaveInfo(ctx context.Context, host string, info Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshalling controller info: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO controller_info (host, info, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(host) DO UPDATE SET info = excluded.info, updated_at = excluded.updated_at`,
		host, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving controller info: %w", err)
	}
	return nil
}
