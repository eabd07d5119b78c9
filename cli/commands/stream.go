package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/cli/config"
	"github.com/kestrel-es/kestrel/cli/styles"
)

// NewStreamCommand creates the stream command
func NewStreamCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect event streams",
		Long: `Inspect stored aggregate streams.

Stream IDs have the form <AggregateType>-<AggregateID>.

Examples:
  kestrel stream list --prefix Account-
  kestrel stream info Account-5f0c...
  kestrel stream events Account-5f0c... --from 10`,
	}

	cmd.AddCommand(newStreamListCommand(flags))
	cmd.AddCommand(newStreamInfoCommand(flags))
	cmd.AddCommand(newStreamEventsCommand(flags))

	return cmd
}

func newStreamListCommand(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		prefix string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List event streams",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			return listStreams(cmd, env, prefix, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum streams to show")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Filter by stream ID prefix")

	return cmd
}

func listStreams(cmd *cobra.Command, env *Env, prefix string, limit int) error {
	out := cmd.OutOrStdout()

	streams, err := env.Adapter.ListStreams(cmd.Context(), prefix, limit)
	if err != nil {
		return err
	}

	if len(streams) == 0 {
		fmt.Fprintln(out, styles.FormatInfo("No streams found"))
		return nil
	}

	table := styles.NewTable("Stream ID", "Version", "Last Event", "Last Updated")
	for _, s := range streams {
		table.AddRow(s.StreamID, fmt.Sprint(s.Version), s.LastEventType, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" Event Streams"))
	fmt.Fprintln(out, table.Render())
	fmt.Fprintf(out, "Showing %d stream(s)\n", table.Len())
	return nil
}

func newStreamInfoCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <stream-id>",
		Short: "Show stream metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			info, err := env.Store.GetStreamInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatKeyValue("Stream", info.StreamID))
			fmt.Fprintln(out, styles.FormatKeyValue("Category", info.Category))
			fmt.Fprintln(out, styles.FormatKeyValue("Version", fmt.Sprint(info.Version)))
			fmt.Fprintln(out, styles.FormatKeyValue("Events", fmt.Sprint(info.EventCount)))
			fmt.Fprintln(out, styles.FormatKeyValue("Created", info.CreatedAt.Format(time.RFC3339)))
			fmt.Fprintln(out, styles.FormatKeyValue("Updated", info.UpdatedAt.Format(time.RFC3339)))
			return nil
		},
	}
}

func newStreamEventsCommand(flags *globalFlags) *cobra.Command {
	var (
		limit int
		from  int64
	)

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "Show events in a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			events, err := env.Store.LoadFrom(cmd.Context(), args[0], from)
			if err != nil {
				return err
			}
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("No events in stream '%s'", args[0])))
				return nil
			}

			for _, e := range events {
				printEvent(out, env.Store.Serializer(), env.Config.Serializer.Format, e)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events to show (0 = all)")
	cmd.Flags().Int64VarP(&from, "from", "f", 0, "Show events after this version")

	return cmd
}

// printEvent writes one event with its payload rendered as indented JSON.
func printEvent(out io.Writer, serializer kestrel.Serializer, format string, e kestrel.StoredEvent) {
	fmt.Fprintln(out, styles.Subtitle.Render(fmt.Sprintf("#%d %s", e.Version, e.Type)))
	fmt.Fprintln(out, styles.Muted.Render("  ID:   "+e.ID))
	fmt.Fprintln(out, styles.Muted.Render("  Time: "+e.Timestamp.Format(time.RFC3339Nano)))
	if e.Metadata.CorrelationID != "" {
		fmt.Fprintln(out, styles.Muted.Render("  Correlation: "+e.Metadata.CorrelationID))
	}
	fmt.Fprintln(out, "  "+payloadJSON(serializer, format, e))
	fmt.Fprintln(out)
}

// payloadJSON renders a stored payload as JSON regardless of its encoding.
func payloadJSON(serializer kestrel.Serializer, format string, e kestrel.StoredEvent) string {
	data := e.Data
	if format == config.FormatMsgpack {
		decoded, err := serializer.Deserialize(e.Data, e.Type)
		if err != nil {
			return fmt.Sprintf("<undecodable %d bytes: %v>", len(e.Data), err)
		}
		if data, err = json.Marshal(decoded); err != nil {
			return fmt.Sprintf("<undecodable %d bytes: %v>", len(e.Data), err)
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "  ", "  "); err != nil {
		return string(data)
	}
	return pretty.String()
}
