package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

const (
	dirMode  = 0o750
	fileMode = 0o600

	openPingTimeout  = 5 * time.Second
	closeOptimizeCap = 2 * time.Second

	fallbackBusySeconds = 5
)

// DB is the bridge's SQLite handle. The embedded *sql.DB is what the
// device and audit stores take.
type DB struct {
	*sql.DB
	path string
}

// Open creates the parent directory, opens the file with the configured
// journal mode and busy timeout, and pings it.
//
// The pool is limited to one connection: the poll loop, telemetry pruning
// and audit writes all share it, so SQLITE_BUSY never reaches callers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory for %s: %w", cfg.Path, err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = fallbackBusySeconds
	}
	sqlDB, err := sql.Open("sqlite3", dsn(cfg.Path, busy, cfg.WALMode))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Path, err)
	}

	// The file only exists once the ping has opened it.
	if err := os.Chmod(cfg.Path, fileMode); err != nil && !os.IsNotExist(err) {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("restricting permissions on %s: %w", cfg.Path, err)
	}
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn builds a go-sqlite3 file URI. Busy timeout is given in seconds.
func dsn(path string, busySeconds int, wal bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(busySeconds*1000))
	q.Set("_foreign_keys", "on")
	if wal {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs SELECT 1 on the shared connection.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// Close runs PRAGMA optimize, which refreshes planner statistics for the
// history and audit queries, then closes the pool. Nil and zero values are
// accepted.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeOptimizeCap)
	//nolint:errcheck // statistics are advisory
	db.ExecContext(ctx, "PRAGMA optimize")
	cancel()

	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", db.path, err)
	}
	return nil
}
