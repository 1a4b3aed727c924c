package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"
)

// MigrationsFS holds the embedded *.sql files. The emubot migrations
// package assigns it in an init function:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "migrations"

// ErrNoDownSQL is returned when a rollback reaches a migration without a
// .down.sql file.
var ErrNoDownSQL = errors.New("migration has no down SQL")

// migrationFile matches YYYYMMDD_HHMMSS_name.up.sql and its .down.sql pair.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// SchemaStatus splits the known migrations by state.
type SchemaStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Migrate applies every pending migration, oldest first.
//
// Each migration commits on its own. When one fails the earlier ones stay
// applied and a later call resumes at the failed version.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back up to steps of the newest applied migrations and
// returns them newest first. It stops at the first migration that cannot be
// rolled back; those already undone stay undone.
func (db *DB) MigrateDown(ctx context.Context, steps int) ([]Migration, error) {
	if steps < 1 {
		return nil, fmt.Errorf("rollback steps must be at least 1, got %d", steps)
	}
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	known, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]Migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}

	var undone []Migration
	for i := len(applied) - 1; i >= 0 && len(undone) < steps; i-- {
		version := applied[i].Version
		m, ok := byVersion[version]
		if !ok {
			return undone, fmt.Errorf("migration %s not found in embedded files", version)
		}
		if strings.TrimSpace(m.Down) == "" {
			return undone, fmt.Errorf("%w: %s", ErrNoDownSQL, version)
		}
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Down); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", version)
			return err
		})
		if err != nil {
			return undone, fmt.Errorf("rolling back %s (%s): %w", version, m.Name, err)
		}
		undone = append(undone, m)
	}
	return undone, nil
}

// MigrationStatus reports which embedded migrations have been applied.
func (db *DB) MigrationStatus(ctx context.Context) (SchemaStatus, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return SchemaStatus{}, fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return SchemaStatus{}, err
	}
	known, err := loadMigrations()
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("loading migrations: %w", err)
	}

	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	status := SchemaStatus{Applied: applied}
	for _, m := range known {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// getAppliedMigrations returns schema_migrations ordered oldest first.
func (db *DB) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.DB.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			a  AppliedMigration
			at string
		)
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return out, nil
}

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations reads MigrationsDir and pairs up/down files by version.
// Files that do not follow the naming pattern are ignored, and a version
// with only a down file is skipped.
func loadMigrations() ([]Migration, error) {
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFile(entry.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if up {
			m.Name, m.Up = name, string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up != "" {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFile splits "20260301_120000_catalog.up.sql" into its
// version, name and direction.
func parseMigrationFile(filename string) (version, name string, up, ok bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false, false
	}
	return m[1], m[2], m[3] == "up", true
}
