package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kestrel-es/kestrel/adapters/postgres"
	"github.com/kestrel-es/kestrel/cli/config"
	"github.com/kestrel-es/kestrel/cli/styles"
)

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

// diagnostic is one named check over the loaded configuration.
type diagnostic struct {
	name  string
	check func(ctx context.Context, cfg *config.Config, cfgErr error) CheckResult
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "diagnose",
		Short:   "Run diagnostic checks",
		Aliases: []string{"diag", "doctor"},
		Long: `Check the Go runtime, kestrel.yaml, database connectivity and the
event store schema version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgErr := loadConfig(flags.configPath)
			results := runDiagnostics(cmd.Context(), cfg, cfgErr)
			printDiagnostics(cmd, results)
			return nil
		},
	}
}

func runDiagnostics(ctx context.Context, cfg *config.Config, cfgErr error) []CheckResult {
	checks := []diagnostic{
		{name: "Go Version", check: checkGoVersion},
		{name: "Configuration", check: checkConfiguration},
		{name: "Database Connection", check: checkDatabaseConnection},
		{name: "Event Store Schema", check: checkEventStoreSchema},
	}

	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		r := c.check(ctx, cfg, cfgErr)
		r.Name = c.name
		results = append(results, r)
	}
	return results
}

func printDiagnostics(cmd *cobra.Command, results []CheckResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Title.Render(styles.IconKestrel+" Running Diagnostics"))

	allPassed := true
	for _, r := range results {
		var status string
		switch r.Status {
		case StatusOK:
			status = styles.SuccessStyle.Render("OK")
		case StatusWarning:
			status = styles.WarningStyle.Render("WARNING")
			allPassed = false
		default:
			status = styles.ErrorStyle.Render("FAILED")
			allPassed = false
		}
		fmt.Fprintf(out, "  %s %s... %s\n", styles.IconPending, r.Name, status)
		if r.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(r.Message))
		}
	}
	fmt.Fprintln(out)

	if allPassed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed"))
		return
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings"))
	for _, r := range results {
		if r.Recommendation != "" {
			fmt.Fprintf(out, "  %s %s\n", styles.IconArrow, r.Recommendation)
		}
	}
}

func checkGoVersion(context.Context, *config.Config, error) CheckResult {
	return CheckResult{Status: StatusOK, Message: runtime.Version()}
}

func checkConfiguration(_ context.Context, cfg *config.Config, cfgErr error) CheckResult {
	if cfgErr != nil {
		return CheckResult{
			Status:         StatusError,
			Message:        cfgErr.Error(),
			Recommendation: "Run 'kestrel init' to create " + config.ConfigFileName,
		}
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return CheckResult{
			Status:         StatusError,
			Message:        fmt.Sprint(problems),
			Recommendation: "Fix the reported fields in " + config.ConfigFileName,
		}
	}
	return CheckResult{Status: StatusOK, Message: fmt.Sprintf("project %q, driver %s", cfg.Project.Name, cfg.Database.Driver)}
}

func checkDatabaseConnection(ctx context.Context, cfg *config.Config, cfgErr error) CheckResult {
	if cfgErr != nil {
		return CheckResult{Status: StatusWarning, Message: "skipped: no configuration"}
	}
	if cfg.Database.Driver == config.DriverMemory {
		return CheckResult{Status: StatusOK, Message: "in-memory store"}
	}

	adapter, err := openPostgres(ctx, cfg)
	if err != nil {
		return CheckResult{
			Status:         StatusError,
			Message:        err.Error(),
			Recommendation: "Check DATABASE_URL and that PostgreSQL is reachable",
		}
	}
	_ = adapter.Close()
	return CheckResult{Status: StatusOK, Message: "connected"}
}

func checkEventStoreSchema(ctx context.Context, cfg *config.Config, cfgErr error) CheckResult {
	if cfgErr != nil || cfg.Database.Driver == config.DriverMemory {
		return CheckResult{Status: StatusOK, Message: "no schema required"}
	}

	adapter, err := openPostgres(ctx, cfg)
	if err != nil {
		return CheckResult{Status: StatusWarning, Message: "skipped: database unavailable"}
	}
	defer adapter.Close()

	current, err := adapter.MigrationVersion(ctx)
	if err != nil {
		return CheckResult{Status: StatusError, Message: err.Error()}
	}
	latest := postgres.LatestMigrationVersion()
	if current < latest {
		return CheckResult{
			Status:         StatusWarning,
			Message:        fmt.Sprintf("schema %q at version %d of %d", adapter.Schema(), current, latest),
			Recommendation: "Run 'kestrel migrate up'",
		}
	}
	return CheckResult{Status: StatusOK, Message: fmt.Sprintf("schema %q at version %d", adapter.Schema(), current)}
}
