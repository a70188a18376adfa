// Package database provides SQLite persistence for TapFlow Core.
//
// This package manages:
//   - Database connection lifecycle (open, close, health checks)
//   - WAL mode and busy timeout configuration
//   - Schema migrations from embedded SQL files
//
// # Schema Migrations
//
// Migrations are SQL files embedded into the binary via the migrations
// package. Filenames follow the pattern:
//
//	YYYYMMDD_HHMMSS_description.up.sql
//	YYYYMMDD_HHMMSS_description.down.sql
//
// Each migration runs in its own transaction and is recorded in the
// schema_migrations table. Re-running Migrate() is safe and applies
// only pending migrations.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// # Concurrency
//
// SQLite supports a single writer. The connection pool is limited to
// one connection so the executor, scheduler, and API share access
// without lock contention errors.
package database
