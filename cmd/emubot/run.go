package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nerrad567/emubot-core/internal/catalog"
	"github.com/nerrad567/emubot-core/internal/infrastructure/logging"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// settlePoll is how often the run command checks for completion.
const settlePoll = 200 * time.Millisecond

func newRunCmd() *cobra.Command {
	var (
		botPath    string
		scriptsDir string
		overrides  []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one bot from files and wait for it to finish",
		Long: `Run a bot profile read from a JSON or YAML file. Scripts are resolved
from <scripts>/<name>.json|.yaml|.yml. No database is used. Ctrl+C stops
the run. The command fails when any instance ends in ERROR.`,
		Example: `  emubot run --bot bots/daily.yaml --scripts scripts/
  emubot run --bot bots/daily.json --scripts scripts/ --set who=world`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			bot, err := loadBot(botPath)
			if err != nil {
				return err
			}
			scripts := catalog.NewDirSource(scriptsDir)
			if err := applyOverrides(cmd.Context(), bot, overrides, scripts); err != nil {
				return err
			}

			log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format, version)
			c := newCore(cfg, scripts, log)
			return runOnce(cmd.Context(), c, bot, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&botPath, "bot", "", "bot profile file (.json, .yaml, .yml)")
	cmd.Flags().StringVar(&scriptsDir, "scripts", ".", "directory holding script documents")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "variable override as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("bot") //nolint:errcheck // flag exists

	return cmd
}

// loadBot decodes a bot profile, choosing the format by extension.
func loadBot(path string) (*runner.BotProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bot %s: %w", path, err)
	}
	var bot *runner.BotProfile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		bot, err = runner.DecodeBotYAML(data)
	default:
		bot, err = runner.DecodeBot(data)
	}
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", path, err)
	}
	return bot, nil
}

// applyOverrides merges key=value pairs into the bot's variable overrides.
// A value is coerced to the type the first enabled script declares for its
// key; undeclared keys stay strings.
func applyOverrides(ctx context.Context, bot *runner.BotProfile, pairs []string, scripts runner.ScriptSource) error {
	if len(pairs) == 0 {
		return nil
	}
	declared := declaredTypes(ctx, bot, scripts)
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q: want key=value", pair)
		}
		value, err := script.CoerceVariable(declared[key], raw)
		if err != nil {
			return fmt.Errorf("invalid --set %q: %w", pair, err)
		}
		if bot.Overrides == nil {
			bot.Overrides = make(map[string]any)
		}
		bot.Overrides[key] = value
	}
	return nil
}

// declaredTypes maps variable keys to their declared type across the bot's
// enabled scripts. Scripts that fail to load are skipped here; the run
// reports them.
func declaredTypes(ctx context.Context, bot *runner.BotProfile, scripts runner.ScriptSource) map[string]string {
	out := make(map[string]string)
	for _, ref := range bot.Scripts {
		if !ref.Enabled {
			continue
		}
		sc, err := scripts.Script(ctx, ref.ScriptName)
		if err != nil {
			continue
		}
		for _, v := range sc.Variables {
			if _, ok := out[v.Key]; !ok {
				out[v.Key] = v.Type
			}
		}
	}
	return out
}

// runOnce starts bot, prints every status change to out and blocks until
// the run settles and its executions have returned. Cancelling ctx stops
// the run.
func runOnce(ctx context.Context, c *core, bot *runner.BotProfile, out io.Writer) error {
	c.runner.AddObserver(&statusPrinter{out: out})

	runID := c.runner.Start(bot)
	fmt.Fprintf(out, "run %s started for bot %s\n", runID, color.New(color.Bold).Sprint(bot.Name))

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	for !c.runner.Settled(runID) || c.engine.IsRunning(runID) {
		select {
		case <-ctx.Done():
			c.runner.Stop(runID)
			c.engine.Stop(runID)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.engine.Shutdown(shutdownCtx) //nolint:errcheck // best effort on interrupt
			return fmt.Errorf("run %s interrupted", runID)
		case <-ticker.C:
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.runner.Close(shutdownCtx) //nolint:errcheck // run already settled

	statuses, err := c.runner.Get(runID)
	if err != nil {
		return err
	}
	var failed []string
	for _, st := range statuses {
		if st.State == runner.StateError {
			failed = append(failed, st.Instance)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("run %s: %d instance(s) ended in ERROR: %s", runID, len(failed), strings.Join(failed, ", "))
	}
	fmt.Fprintln(out, color.GreenString("run %s finished", runID))
	return nil
}

// statusPrinter writes one coloured line per status change.
type statusPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *statusPrinter) StatusChanged(st runner.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s  %-16s %-7s %-20s %s\n",
		st.UpdatedAt.Format("15:04:05"),
		st.Instance,
		stateColor(st.State),
		st.Script,
		st.Message,
	)
}

func stateColor(s runner.State) string {
	switch s {
	case runner.StateRunning:
		return color.CyanString("%s", s)
	case runner.StateWaiting:
		return color.YellowString("%s", s)
	case runner.StateStopped:
		return color.GreenString("%s", s)
	case runner.StateError:
		return color.RedString("%s", s)
	default:
		return string(s)
	}
}
