// Package commands provides the CLI command implementations for kestrel.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kestrel-es/kestrel/cli/config"
	"github.com/kestrel-es/kestrel/cli/styles"
	"github.com/kestrel-es/kestrel/middleware/tracing"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	noColor    bool
	trace      bool
}

// NewRootCommand creates the root command for the kestrel CLI
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "kestrel",
		Short: "Event-sourced aggregates for Go",
		Long: styles.Banner() + `
Kestrel stores event-sourced aggregates in PostgreSQL or memory and
forwards committed events to Kafka, SNS or webhooks.

` + styles.Subtitle.Render("Quick Start:") + `

  ` + styles.Code.Render("kestrel init") + `             Create kestrel.yaml
  ` + styles.Code.Render("kestrel migrate up") + `       Create or upgrade the event store schema
  ` + styles.Code.Render("kestrel demo") + `             Run a bank account scenario
  ` + styles.Code.Render("kestrel stream list") + `      Inspect stored streams`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to kestrel.yaml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flags.trace, "trace", false, "Print OpenTelemetry spans to stderr")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMigrateCommand(flags))
	rootCmd.AddCommand(NewStreamCommand(flags))
	rootCmd.AddCommand(NewDemoCommand(flags))
	rootCmd.AddCommand(NewDiagnoseCommand(flags))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), styles.FormatError(err.Error()))
		return err
	}

	return nil
}

// openEnv loads the config and opens the event store for a command.
func (f *globalFlags) openEnv(cmd *cobra.Command) (*Env, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid %s: %v", config.ConfigFileName, problems)
	}

	var (
		tracer   *tracing.Tracer
		shutdown func() error
	)
	if f.trace || cfg.Tracing.Enabled {
		tracer, shutdown, err = newStdoutTracer(cmd.ErrOrStderr(), cfg.Project.Name)
		if err != nil {
			return nil, err
		}
	}

	env, err := OpenEnv(cmd.Context(), cfg, tracer)
	if err != nil {
		if shutdown != nil {
			_ = shutdown()
		}
		return nil, err
	}
	if shutdown != nil {
		env.closers = append([]func() error{shutdown}, env.closers...)
	}
	return env, nil
}

// newStdoutTracer exports spans synchronously to w.
func newStdoutTracer(w io.Writer, service string) (*tracing.Tracer, func() error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := tracing.NewTracer(
		tracing.WithTracerProvider(tp),
		tracing.WithServiceName(service),
	)
	return tracer, func() error { return tp.Shutdown(context.Background()) }, nil
}
