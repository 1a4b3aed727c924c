package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is a write-through cache over a Repository.
//
// Every value handed out is a deep copy, so callers may modify what they
// receive. All public methods are thread-safe.
type Registry struct {
	repo    Repository
	scripts map[string]*ScriptRecord
	bots    map[string]*BotRecord
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over repo. Call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		scripts: make(map[string]*ScriptRecord),
		bots:    make(map[string]*BotRecord),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every script and bot from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	scripts, err := r.repo.ListScripts(ctx)
	if err != nil {
		return fmt.Errorf("loading scripts: %w", err)
	}
	bots, err := r.repo.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("loading bots: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.scripts = make(map[string]*ScriptRecord, len(scripts))
	for i := range scripts {
		r.scripts[scripts[i].Script.Name] = scripts[i].DeepCopy()
	}
	r.bots = make(map[string]*BotRecord, len(bots))
	for i := range bots {
		r.bots[bots[i].Bot.ID] = bots[i].DeepCopy()
	}

	r.logger.Info("catalog cache refreshed", "scripts", len(scripts), "bots", len(bots))
	return nil
}

// ─── Scripts ────────────────────────────────────────────────────

// Script returns the named script. It satisfies runner.ScriptSource.
func (r *Registry) Script(ctx context.Context, name string) (*script.Script, error) {
	rec, err := r.GetScript(ctx, name)
	if err != nil {
		return nil, err
	}
	return rec.Script, nil
}

// GetScript returns the stored record for name.
func (r *Registry) GetScript(_ context.Context, name string) (*ScriptRecord, error) {
	r.cacheMu.RLock()
	cached, ok := r.scripts[name]
	r.cacheMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return cached.DeepCopy(), nil
}

// ListScripts returns every script sorted by name, optionally filtered by game.
func (r *Registry) ListScripts(_ context.Context, game string) []ScriptRecord {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := make([]ScriptRecord, 0, len(r.scripts))
	for _, rec := range r.scripts {
		if game != "" && !strings.EqualFold(rec.Script.Game, game) {
			continue
		}
		out = append(out, *rec.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Script.Name < out[j].Script.Name })
	return out
}

// CreateScript validates, persists and caches a new script.
func (r *Registry) CreateScript(ctx context.Context, s *script.Script) (*ScriptRecord, error) {
	if err := script.Validate(s); err != nil {
		return nil, err
	}
	rec := &ScriptRecord{Script: s.DeepCopy()}
	if err := r.repo.CreateScript(ctx, rec); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.scripts[s.Name] = rec.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("script created", "name", s.Name, "steps", len(s.Steps))
	return rec.DeepCopy(), nil
}

// UpdateScript validates, persists and re-caches an existing script.
func (r *Registry) UpdateScript(ctx context.Context, s *script.Script) (*ScriptRecord, error) {
	if err := script.Validate(s); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	existing, ok := r.scripts[s.Name]
	r.cacheMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, s.Name)
	}

	rec := &ScriptRecord{Script: s.DeepCopy(), CreatedAt: existing.CreatedAt}
	if err := r.repo.UpdateScript(ctx, rec); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.scripts[s.Name] = rec.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("script updated", "name", s.Name)
	return rec.DeepCopy(), nil
}

// DeleteScript removes a script from persistence and cache.
func (r *Registry) DeleteScript(ctx context.Context, name string) error {
	if err := r.repo.DeleteScript(ctx, name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.scripts, name)
	r.cacheMu.Unlock()

	r.logger.Info("script deleted", "name", name)
	return nil
}

// ─── Bots ───────────────────────────────────────────────────────

// Bot returns the bot profile with the given id.
func (r *Registry) Bot(ctx context.Context, id string) (*runner.BotProfile, error) {
	rec, err := r.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Bot, nil
}

// GetBot returns the stored record for id.
func (r *Registry) GetBot(_ context.Context, id string) (*BotRecord, error) {
	r.cacheMu.RLock()
	cached, ok := r.bots[id]
	r.cacheMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	return cached.DeepCopy(), nil
}

// ListBots returns every bot sorted by name.
func (r *Registry) ListBots(_ context.Context) []BotRecord {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := make([]BotRecord, 0, len(r.bots))
	for _, rec := range r.bots {
		out = append(out, *rec.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bot.Name < out[j].Bot.Name })
	return out
}

// CreateBot validates, persists and caches a new bot. A missing id is generated.
func (r *Registry) CreateBot(ctx context.Context, b *runner.BotProfile) (*BotRecord, error) {
	b = b.DeepCopy()
	if b.ID == "" {
		b.ID = runner.GenerateID()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rec := &BotRecord{Bot: b}
	if err := r.repo.CreateBot(ctx, rec); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.bots[b.ID] = rec.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("bot created", "id", b.ID, "name", b.Name)
	return rec.DeepCopy(), nil
}

// UpdateBot validates, persists and re-caches an existing bot.
func (r *Registry) UpdateBot(ctx context.Context, b *runner.BotProfile) (*BotRecord, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	existing, ok := r.bots[b.ID]
	r.cacheMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, b.ID)
	}

	rec := &BotRecord{Bot: b.DeepCopy(), CreatedAt: existing.CreatedAt}
	if err := r.repo.UpdateBot(ctx, rec); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.bots[b.ID] = rec.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("bot updated", "id", b.ID, "name", b.Name)
	return rec.DeepCopy(), nil
}

// DeleteBot removes a bot from persistence and cache.
func (r *Registry) DeleteBot(ctx context.Context, id string) error {
	if err := r.repo.DeleteBot(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.bots, id)
	r.cacheMu.Unlock()

	r.logger.Info("bot deleted", "id", id)
	return nil
}

// Counts returns the number of cached scripts and bots.
func (r *Registry) Counts() (scripts, bots int) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.scripts), len(r.bots)
}
