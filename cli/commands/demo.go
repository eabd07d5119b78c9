package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/cli/demo"
	"github.com/kestrel-es/kestrel/cli/styles"
	"github.com/kestrel-es/kestrel/middleware/tracing"
)

// commitFunc adapts a function to the Committer interfaces of the metrics
// and tracing middleware.
type commitFunc func(ctx context.Context) error

func (f commitFunc) Commit(ctx context.Context) error {
	return f(ctx)
}

// NewDemoCommand creates the demo command
func NewDemoCommand(flags *globalFlags) *cobra.Command {
	var (
		owner    string
		deposit  int64
		withdraw int64
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a bank account scenario against the configured store",
		Long: `Open an account, deposit and withdraw inside one session, reload the
account through a repository and provoke a concurrency conflict.

Events go through the configured serializer and publishers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			return runDemo(cmd, env, owner, deposit, withdraw)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "alice", "Account owner")
	cmd.Flags().Int64Var(&deposit, "deposit", 100, "Amount to deposit")
	cmd.Flags().Int64Var(&withdraw, "withdraw", 30, "Amount to withdraw")

	return cmd
}

func runDemo(cmd *cobra.Command, env *Env, owner string, deposit, withdraw int64) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	env.Store.RegisterEvents(demo.Events()...)

	if env.Tracer != nil {
		var span trace.Span
		ctx, span = env.Tracer.StartSpan(ctx, "kestrel.demo")
		defer span.End()
	}

	session := env.Store.NewSession(kestrel.WithSessionMetadata(kestrel.Metadata{
		CorrelationID: uuid.NewString(),
		UserID:        owner,
	}))
	uow := env.Metrics.WrapUnitOfWork(session)
	if env.Tracer != nil {
		uow = tracing.WrapUnitOfWork(ctx, uow)
	}

	account := demo.NewAccount()
	if err := account.Open(uow, owner); err != nil {
		return err
	}
	if err := account.Deposit(uow, deposit); err != nil {
		return err
	}
	if err := account.Withdraw(uow, withdraw); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Applied %d event(s) to %s\n", styles.IconArrow, len(account.UncommittedEvents()), account.StreamID())

	var committer commitFunc = session.Commit
	if env.Tracer != nil {
		committer = func(ctx context.Context) error { return tracing.TraceCommit(ctx, env.Tracer, session) }
	}
	if err := env.Metrics.Commit(ctx, committer); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Committed %s at version %d", account.StreamID(), account.Version())))

	repo := kestrel.NewRepository(env.Store, demo.NewAccount)
	loaded, err := repo.Get(ctx, account.ID())
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	fmt.Fprintln(out, styles.FormatKeyValue("Owner", loaded.Owner))
	fmt.Fprintln(out, styles.FormatKeyValue("Balance", fmt.Sprint(loaded.Balance)))
	fmt.Fprintln(out, styles.FormatKeyValue("Version", fmt.Sprint(loaded.Version())))

	if err := demoConflict(ctx, out, repo, account.ID()); err != nil {
		return err
	}

	printDemoMetrics(out, env.Registry)
	return listStreams(cmd, env, demo.AggregateType+"-", 10)
}

// demoConflict saves two copies of the same account; the second must be rejected.
func demoConflict(ctx context.Context, out io.Writer, repo *kestrel.Repository[*demo.Account], id uuid.UUID) error {
	first, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	second, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	direct := kestrel.UnitOfWorkFunc(func(kestrel.EventSource) {})
	if err := first.Deposit(direct, 1); err != nil {
		return err
	}
	if err := second.Deposit(direct, 2); err != nil {
		return err
	}

	if err := repo.Save(ctx, first); err != nil {
		return err
	}
	err = repo.Save(ctx, second)
	if !errors.Is(err, kestrel.ErrConcurrencyConflict) {
		return fmt.Errorf("expected a concurrency conflict, got %v", err)
	}

	fmt.Fprintln(out, styles.FormatInfo("Stale writer rejected: "+err.Error()))
	return nil
}

// printDemoMetrics prints the kestrel counters gathered during the run.
func printDemoMetrics(out io.Writer, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		fmt.Fprintln(out, styles.FormatWarning("metrics unavailable: "+err.Error()))
		return
	}

	table := styles.NewTable("Metric", "Value")
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "_total") {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		table.AddRow(mf.GetName(), fmt.Sprint(total))
	}
	if table.Len() == 0 {
		return
	}

	fmt.Fprintln(out, styles.Subtitle.Render("Metrics"))
	fmt.Fprintln(out, table.Render())
}
