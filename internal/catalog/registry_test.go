package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/emubot-core/internal/infrastructure/database"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
	_ "github.com/nerrad567/emubot-core/migrations"
)

func newTestRegistry(t *testing.T) (*Registry, *SQLiteRepository) {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	repo := NewSQLiteRepository(db.DB)
	return NewRegistry(repo), repo
}

func sampleScript(name string) *script.Script {
	return &script.Script{
		Name: name,
		Game: "Example Quest",
		Variables: []script.Variable{
			{Key: "x", Type: script.VarInt, Default: float64(10)},
		},
		Steps: []script.Step{
			&script.TapStep{X: "${x}", Y: "20"},
			&script.LoopStep{Count: 2, Steps: []script.Step{&script.WaitStep{Delay: script.DefaultWaitDelay}}},
		},
	}
}

// ─── Scripts ────────────────────────────────────────────────────

func TestRegistry_ScriptCRUD(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	rec, err := reg.CreateScript(ctx, sampleScript("farm"))
	require.NoError(t, err)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = reg.CreateScript(ctx, sampleScript("farm"))
	assert.ErrorIs(t, err, ErrScriptExists)

	got, err := reg.Script(ctx, "farm")
	require.NoError(t, err)
	assert.Equal(t, sampleScript("farm").Steps, got.Steps)

	// Returned values are copies.
	got.Steps[0].(*script.TapStep).X = "999"
	again, err := reg.Script(ctx, "farm")
	require.NoError(t, err)
	assert.Equal(t, "${x}", again.Steps[0].(*script.TapStep).X)

	upd := sampleScript("farm")
	upd.Steps = upd.Steps[:1]
	_, err = reg.UpdateScript(ctx, upd)
	require.NoError(t, err)
	got, err = reg.Script(ctx, "farm")
	require.NoError(t, err)
	assert.Len(t, got.Steps, 1)

	_, err = reg.UpdateScript(ctx, sampleScript("ghost"))
	assert.ErrorIs(t, err, ErrScriptNotFound)

	require.NoError(t, reg.DeleteScript(ctx, "farm"))
	_, err = reg.Script(ctx, "farm")
	assert.ErrorIs(t, err, ErrScriptNotFound)
	assert.ErrorIs(t, reg.DeleteScript(ctx, "farm"), ErrScriptNotFound)
}

func TestRegistry_CreateScriptValidates(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.CreateScript(context.Background(), &script.Script{Name: ""})
	assert.ErrorIs(t, err, script.ErrInvalidScript)
}

func TestRegistry_RefreshCacheLoadsPersisted(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.CreateScript(ctx, sampleScript("b-script"))
	require.NoError(t, err)
	_, err = reg.CreateScript(ctx, sampleScript("a-script"))
	require.NoError(t, err)
	bot := runner.NewBotProfile("farm-bot")
	_, err = reg.CreateBot(ctx, bot)
	require.NoError(t, err)

	fresh := NewRegistry(repo)
	require.NoError(t, fresh.RefreshCache(ctx))

	scripts, bots := fresh.Counts()
	assert.Equal(t, 2, scripts)
	assert.Equal(t, 1, bots)

	list := fresh.ListScripts(ctx, "")
	require.Len(t, list, 2)
	assert.Equal(t, "a-script", list[0].Script.Name)
	assert.Len(t, fresh.ListScripts(ctx, "example quest"), 2)
	assert.Empty(t, fresh.ListScripts(ctx, "other game"))

	s, err := fresh.Script(ctx, "a-script")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(10)}, s.Defaults())
}

// ─── Bots ───────────────────────────────────────────────────────

func TestRegistry_BotCRUD(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	bot := &runner.BotProfile{
		Name:               "farm-bot",
		Instances:          []runner.InstanceBinding{{InstanceName: "emu-1"}},
		Scripts:            []runner.ScriptRef{{ScriptName: "farm", Enabled: true}},
		InstanceCooldownMS: 250,
	}
	rec, err := reg.CreateBot(ctx, bot)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Bot.ID)
	assert.Empty(t, bot.ID, "caller's profile is not modified")

	dup := runner.NewBotProfile("farm-bot")
	_, err = reg.CreateBot(ctx, dup)
	assert.ErrorIs(t, err, ErrBotExists)

	got, err := reg.Bot(ctx, rec.Bot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.InstanceCooldownMS)
	assert.Equal(t, "emu-1", got.Instances[0].InstanceName)

	got.RunParallel = true
	_, err = reg.UpdateBot(ctx, got)
	require.NoError(t, err)
	got, err = reg.Bot(ctx, rec.Bot.ID)
	require.NoError(t, err)
	assert.True(t, got.RunParallel)

	assert.Len(t, reg.ListBots(ctx), 1)
	require.NoError(t, reg.DeleteBot(ctx, rec.Bot.ID))
	_, err = reg.Bot(ctx, rec.Bot.ID)
	assert.ErrorIs(t, err, ErrBotNotFound)
}

func TestRegistry_CreateBotValidates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.CreateBot(context.Background(), &runner.BotProfile{})
	assert.ErrorIs(t, err, runner.ErrInvalidBot)
}

// ─── DirSource ──────────────────────────────────────────────────

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "farm.yaml"), []byte(`
name: farm
steps:
  - type: wait
    delay_ms: 5
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name":""}`), 0o600))

	src := NewDirSource(dir)
	ctx := context.Background()

	s, err := src.Script(ctx, "farm")
	require.NoError(t, err)
	assert.Equal(t, "farm", s.Name)

	_, err = src.Script(ctx, "missing")
	assert.ErrorIs(t, err, ErrScriptNotFound)

	_, err = src.Script(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrScriptNotFound)

	_, err = src.Script(ctx, "broken")
	assert.ErrorIs(t, err, script.ErrInvalidScript)
}
