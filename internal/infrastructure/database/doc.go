// Package database provides the SQLite store behind the Mannito bridge.
//
// The bridge keeps two things on disk:
//   - device_state_history: one row per observed device change, pruned by
//     controller.history_retention
//   - controller_info: the last metadata document fetched from each controller,
//     used when the live fetch fails after a restart
//
// Connections use WAL mode and a busy timeout so API reads never block the
// poll loop's writes for long. The pool holds a single connection.
//
// # Migrations
//
// Schema changes are pairs of files named YYYYMMDD_HHMMSS_description.up.sql
// and .down.sql. The migrations package embeds them and exposes a Source:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry a default.
package database
