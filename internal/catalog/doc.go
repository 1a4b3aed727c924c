// Package catalog stores script documents and bot profiles.
//
// Architecture:
//
//	┌──────────────┐    ┌──────────────────┐
//	│   Registry   │───▶│ SQLiteRepository │
//	│ (registry.go)│    │ (repository.go)  │
//	└──────────────┘    └──────────────────┘
//
// The Registry keeps every script and bot in memory, refreshed from the
// repository at startup and kept in sync by write-through CRUD. It serves
// the runner's script lookups without touching the database.
//
// DirSource resolves scripts straight from a directory of documents and is
// used by one-shot CLI runs that have no database.
//
// # Usage
//
//	repo := catalog.NewSQLiteRepository(db.DB)
//	reg := catalog.NewRegistry(repo)
//	reg.SetLogger(log)
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	svc := runner.NewService(engine, instances, reg, log)
package catalog
