package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrel-es/kestrel/adapters/postgres"
	"github.com/kestrel-es/kestrel/cli/config"
	"github.com/kestrel-es/kestrel/cli/styles"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the event store schema",
		Long: `Create and upgrade the PostgreSQL event store schema.

Examples:
  kestrel migrate up       # Apply all pending migrations
  kestrel migrate status   # Show the current schema version`,
	}

	cmd.AddCommand(newMigrateUpCommand(flags))
	cmd.AddCommand(newMigrateStatusCommand(flags))

	return cmd
}

// openMigrator returns nil when the configured driver has no schema.
func (f *globalFlags) openMigrator(cmd *cobra.Command) (*postgres.PostgresAdapter, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == config.DriverMemory {
		fmt.Fprintln(cmd.OutOrStdout(), styles.FormatInfo("Memory driver doesn't require migrations"))
		return nil, nil
	}

	return openPostgres(cmd.Context(), cfg)
}

func newMigrateUpCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := flags.openMigrator(cmd)
			if err != nil || adapter == nil {
				return err
			}
			defer adapter.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			before, err := adapter.MigrationVersion(ctx)
			if err != nil {
				return err
			}
			latest := postgres.LatestMigrationVersion()
			if before >= latest {
				fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Schema %q is up to date (version %d)", adapter.Schema(), before)))
				return nil
			}

			fmt.Fprintf(out, "%s Migrating schema %q from version %d to %d...\n", styles.IconPending, adapter.Schema(), before, latest)
			if err := adapter.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Applied %d migration(s)", latest-before)))
			return nil
		},
	}
}

func newMigrateStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := flags.openMigrator(cmd)
			if err != nil || adapter == nil {
				return err
			}
			defer adapter.Close()

			current, err := adapter.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			latest := postgres.LatestMigrationVersion()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatKeyValue("Schema", adapter.Schema()))
			fmt.Fprintln(out, styles.FormatKeyValue("Current version", fmt.Sprint(current)))
			fmt.Fprintln(out, styles.FormatKeyValue("Latest version", fmt.Sprint(latest)))

			if pending := latest - current; pending > 0 {
				fmt.Fprintln(out, styles.FormatWarning(fmt.Sprintf("%d pending migration(s); run 'kestrel migrate up'", pending)))
			} else {
				fmt.Fprintln(out, styles.FormatSuccess("Up to date"))
			}
			return nil
		},
	}
}
