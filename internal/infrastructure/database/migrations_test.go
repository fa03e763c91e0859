package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func testSource() Source {
	return Source{
		Dir: "sql",
		FS: fstest.MapFS{
			"sql/20260301_090000_create_history.up.sql": {
				Data: []byte("CREATE TABLE history (id INTEGER PRIMARY KEY, device_id TEXT NOT NULL);"),
			},
			"sql/20260301_090000_create_history.down.sql": {
				Data: []byte("DROP TABLE history;"),
			},
			"sql/20260302_100000_add_source.up.sql": {
				Data: []byte("ALTER TABLE history ADD COLUMN source TEXT DEFAULT 'poll';"),
			},
			"sql/README.md": {Data: []byte("ignored")},
		},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "history") {
		t.Fatal("history table not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2, 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260301_090000" {
		t.Errorf("applied[0].Version = %q", applied[0].Version)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testSource()

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The newest migration has no down file.
	err := db.MigrateDown(ctx, src)
	if !errors.Is(err, ErrNoDownSQL) {
		t.Fatalf("MigrateDown() error = %v, want missing down SQL", err)
	}

	// Drop the second migration from the source and record so the first can roll back.
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260302_100000'"); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "history") {
		t.Error("history table still present after rollback")
	}

	applied, _, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrate_EmptySources(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"nil filesystem", Source{}},
		{"missing directory", Source{FS: fstest.MapFS{}, Dir: "nowhere"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			if err := db.Migrate(context.Background(), tt.src); err != nil {
				t.Errorf("Migrate() error = %v", err)
			}
		})
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := Source{FS: fstest.MapFS{
		"20260301_090000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260302_090000_bad.up.sql":  {Data: []byte("CREATE TABLE bad (id INTEGER); NOT SQL;")},
	}}

	err := db.Migrate(ctx, src)
	if err == nil || !strings.Contains(err.Error(), "20260302_090000") {
		t.Fatalf("Migrate() error = %v, want failure naming the bad migration", err)
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration was not kept")
	}

	applied, pending, _ := db.MigrationStatus(ctx, src)
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 1, 1", len(applied), len(pending))
	}
}

func TestMigrateDown_UnknownVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, testSource()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ('20990101_000000', '2099-01-01T00:00:00Z')",
	); err != nil {
		t.Fatal(err)
	}

	if err := db.MigrateDown(ctx, testSource()); !errors.Is(err, ErrUnknownMigration) {
		t.Errorf("MigrateDown() error = %v, want ErrUnknownMigration", err)
	}
}

func TestMigrate_DownWithoutUp(t *testing.T) {
	db := openTestDB(t)
	src := Source{FS: fstest.MapFS{
		"20260301_090000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}}
	if err := db.Migrate(context.Background(), src); err == nil {
		t.Error("Migrate() error = nil, want missing up SQL")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_initial_schema.up.sql", "20260301_090000", "initial_schema", true, true},
		{"20260301_090000_initial_schema.down.sql", "20260301_090000", "initial_schema", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"20260301_090000_schema.sql", "", "", false, false},
		{"README.md", "", "", false, false},
		{"nounderscore.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("parse = (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
