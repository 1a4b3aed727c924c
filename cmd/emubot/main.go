// emubot drives Android emulator instances through scripted bots.
//
// The serve command runs the long-lived service: script and bot catalog,
// execution engine, runner, HTTP API and optional MQTT and InfluxDB
// integration. The run command executes one bot from files on disk without
// a database. The migrate command inspects and rolls back the catalog schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "emubot",
		Short:         "Emulator automation engine",
		Long:          `emubot runs scripted bots against Android emulator instances over adb.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (default $EMUBOT_CONFIG or "+config.DefaultPath+")")

	cmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newValidateCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the config named by --config or $EMUBOT_CONFIG. When
// neither is set and the default file is absent, defaults plus environment
// overrides are used so one-shot commands work without a config file.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	explicit, _ := cmd.Flags().GetString("config") //nolint:errcheck // flag is registered on root
	path := config.ResolvePath(explicit)

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit == "" && os.Getenv(config.EnvConfigPath) == "" && errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, "", fmt.Errorf("default config: %w", vErr)
		}
		return cfg, "", nil
	}
	return nil, "", fmt.Errorf("loading config: %w", err)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emubot %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
