package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nerrad567/emubot-core/internal/infrastructure/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the catalog database schema",
		Long: `Manage the embedded schema migrations of database.path. serve applies
pending migrations on startup; these commands are for inspection and
recovery.`,
		Args: cobra.NoArgs,
	}
	cmd.AddCommand(newMigrateStatusCmd(), newMigrateUpCmd(), newMigrateDownCmd())
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				status, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				before, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				if err := db.Migrate(cmd.Context()); err != nil {
					return err
				}
				for _, m := range before.Pending {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", color.GreenString("applied"), m.Version, m.Name)
				}
				if len(before.Pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest applied migrations",
		Long: `Roll back the newest applied migrations, one transaction each. Data in
the dropped tables is lost. Stop serve before rolling back.`,
		Example: `  emubot migrate down
  emubot migrate down --steps 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				undone, err := db.MigrateDown(cmd.Context(), steps)
				for _, m := range undone {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", color.YellowString("rolled back"), m.Version, m.Name)
				}
				if err != nil {
					return err
				}
				if len(undone) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(cmd *cobra.Command, fn func(*database.DB) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly command
	return fn(db)
}

func printStatus(w io.Writer, status database.SchemaStatus) {
	for _, a := range status.Applied {
		fmt.Fprintf(w, "%s %s  %s\n", color.GreenString("applied"), a.Version, a.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s %s  %s\n", color.YellowString("pending"), m.Version, m.Name)
	}
	fmt.Fprintf(w, "%d applied, %d pending\n", len(status.Applied), len(status.Pending))
}
