package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// Repository defines the interface for catalog persistence.
type Repository interface {
	GetScript(ctx context.Context, name string) (*ScriptRecord, error)
	ListScripts(ctx context.Context) ([]ScriptRecord, error)
	CreateScript(ctx context.Context, rec *ScriptRecord) error
	UpdateScript(ctx context.Context, rec *ScriptRecord) error
	DeleteScript(ctx context.Context, name string) error

	GetBot(ctx context.Context, id string) (*BotRecord, error)
	ListBots(ctx context.Context) ([]BotRecord, error)
	CreateBot(ctx context.Context, rec *BotRecord) error
	UpdateBot(ctx context.Context, rec *BotRecord) error
	DeleteBot(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
// Documents are stored as JSON in the document column.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ─── Scripts ────────────────────────────────────────────────────

// GetScript retrieves a script by name.
func (r *SQLiteRepository) GetScript(ctx context.Context, name string) (*ScriptRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document, created_at, updated_at FROM scripts WHERE name = ?`, name)
	rec, err := scanScript(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScriptNotFound
		}
		return nil, fmt.Errorf("querying script: %w", err)
	}
	return rec, nil
}

// ListScripts retrieves all scripts ordered by name.
func (r *SQLiteRepository) ListScripts(ctx context.Context) ([]ScriptRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document, created_at, updated_at FROM scripts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying scripts: %w", err)
	}
	defer rows.Close()

	var out []ScriptRecord
	for rows.Next() {
		rec, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning script: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scripts: %w", err)
	}
	return out, nil
}

// CreateScript inserts a new script.
func (r *SQLiteRepository) CreateScript(ctx context.Context, rec *ScriptRecord) error {
	doc, err := json.Marshal(rec.Script)
	if err != nil {
		return fmt.Errorf("marshalling script: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scripts (name, game, author, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Script.Name,
		nullableString(rec.Script.Game),
		nullableString(rec.Script.Author),
		string(doc),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrScriptExists
		}
		return fmt.Errorf("inserting script: %w", err)
	}
	return nil
}

// UpdateScript replaces the document of an existing script.
func (r *SQLiteRepository) UpdateScript(ctx context.Context, rec *ScriptRecord) error {
	doc, err := json.Marshal(rec.Script)
	if err != nil {
		return fmt.Errorf("marshalling script: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE scripts SET game = ?, author = ?, document = ?, updated_at = ?
		WHERE name = ?`,
		nullableString(rec.Script.Game),
		nullableString(rec.Script.Author),
		string(doc),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.Script.Name,
	)
	if err != nil {
		return fmt.Errorf("updating script: %w", err)
	}
	return expectOneRow(result, ErrScriptNotFound)
}

// DeleteScript removes a script by name.
func (r *SQLiteRepository) DeleteScript(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scripts WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting script: %w", err)
	}
	return expectOneRow(result, ErrScriptNotFound)
}

func scanScript(row rowScanner) (*ScriptRecord, error) {
	var doc, createdAt, updatedAt string
	if err := row.Scan(&doc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var s script.Script
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return nil, fmt.Errorf("decoding script document: %w", err)
	}
	rec := &ScriptRecord{Script: &s}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return rec, nil
}

// ─── Bots ───────────────────────────────────────────────────────

// GetBot retrieves a bot by id.
func (r *SQLiteRepository) GetBot(ctx context.Context, id string) (*BotRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document, created_at, updated_at FROM bots WHERE id = ?`, id)
	rec, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("querying bot: %w", err)
	}
	return rec, nil
}

// ListBots retrieves all bots ordered by name.
func (r *SQLiteRepository) ListBots(ctx context.Context) ([]BotRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document, created_at, updated_at FROM bots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying bots: %w", err)
	}
	defer rows.Close()

	var out []BotRecord
	for rows.Next() {
		rec, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bot: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bots: %w", err)
	}
	return out, nil
}

// CreateBot inserts a new bot.
func (r *SQLiteRepository) CreateBot(ctx context.Context, rec *BotRecord) error {
	doc, err := json.Marshal(rec.Bot)
	if err != nil {
		return fmt.Errorf("marshalling bot: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bots (id, name, game, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Bot.ID,
		rec.Bot.Name,
		nullableString(rec.Bot.Game),
		string(doc),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrBotExists
		}
		return fmt.Errorf("inserting bot: %w", err)
	}
	return nil
}

// UpdateBot replaces an existing bot.
func (r *SQLiteRepository) UpdateBot(ctx context.Context, rec *BotRecord) error {
	doc, err := json.Marshal(rec.Bot)
	if err != nil {
		return fmt.Errorf("marshalling bot: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE bots SET name = ?, game = ?, document = ?, updated_at = ?
		WHERE id = ?`,
		rec.Bot.Name,
		nullableString(rec.Bot.Game),
		string(doc),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.Bot.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrBotExists
		}
		return fmt.Errorf("updating bot: %w", err)
	}
	return expectOneRow(result, ErrBotNotFound)
}

// DeleteBot removes a bot by id.
func (r *SQLiteRepository) DeleteBot(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM bots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting bot: %w", err)
	}
	return expectOneRow(result, ErrBotNotFound)
}

func scanBot(row rowScanner) (*BotRecord, error) {
	var doc, createdAt, updatedAt string
	if err := row.Scan(&doc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var b runner.BotProfile
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("decoding bot document: %w", err)
	}
	rec := &BotRecord{Bot: &b}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return rec, nil
}

// ─── Helpers ────────────────────────────────────────────────────

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "primary key")
}
