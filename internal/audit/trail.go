package audit

import (
	"context"
	"time"
)

// recordTimeout bounds a single audit write.
const recordTimeout = 2 * time.Second

// Logger is the logging interface used by Trail.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Trail records entries without failing the caller: write errors are
// logged and dropped. A nil *Trail records nothing.
type Trail struct {
	repo   Repository
	logger Logger
}

// NewTrail creates a Trail over repo.
func NewTrail(repo Repository) *Trail {
	return &Trail{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (t *Trail) SetLogger(logger Logger) {
	if t != nil && logger != nil {
		t.logger = logger
	}
}

// Record stores e. The write survives cancellation of ctx so an action
// that completed is still recorded when its request ends.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := t.repo.Create(ctx, &e); err != nil {
		t.logger.Warn("audit write failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err)
	}
}

// List returns a page of entries.
func (t *Trail) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return t.repo.List(ctx, filter)
}

// Prune deletes entries older than retention.
func (t *Trail) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return t.repo.Prune(ctx, time.Now().Add(-retention))
}
