package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomworks/millflow/internal/event"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent business events",
		Long: `List recent business events, newest first.

The monitoring feed: shows each event's status and, for failed events,
the diagnostic recorded by the dispatcher.

Examples:
  millflow events
  millflow events --limit 100 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max events to list")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	a, err := loadApp(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.store.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]any{"events": events})
	}

	return writeEventsTable(cmd, events)
}

// writeEventsTable renders the text listing. Output is deterministic for a
// given event set, so it is covered by a golden test.
func writeEventsTable(cmd *cobra.Command, events []event.BusinessEvent) error {
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tORG\tSTATUS\tCREATED\tERROR")
	for _, ev := range events {
		errMsg := "-"
		if ev.ErrorMessage != "" {
			errMsg = ev.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID,
			ev.EventType,
			ev.OrgID,
			ev.Status,
			ev.CreatedAt.UTC().Format(time.RFC3339),
			errMsg,
		)
	}
	return w.Flush()
}
