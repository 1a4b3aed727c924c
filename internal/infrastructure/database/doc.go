// Package database provides the SQLite connection behind the emubot
// script and bot catalog.
//
// It manages:
//   - The connection, with WAL mode and a busy timeout
//   - Embedded schema migrations (schema_migrations bookkeeping)
//   - Health checks used by the API health endpoint
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// live in the top-level migrations package.
package database
