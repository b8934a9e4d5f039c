package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	Database string
	OrgID    string
	Limit    int
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Claim and process pending events",
		Long: `Claim and process pending business events, oldest first.

One pass through the queue; intended to run from cron or manually.
Multiple concurrent invocations over the same database are safe -
each event is claimed by exactly one worker.

Exits 1 if any event in the batch failed, so cron jobs can alert.

Examples:
  millflow process
  millflow process --org org-1 --limit 50`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.OrgID, "org", "", "restrict to one tenant (default: all)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max events to claim (default: config batch_limit)")

	return cmd
}

func runProcess(opts *ProcessOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	a, err := loadApp(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := opts.Limit
	if limit <= 0 {
		limit = a.cfg.BatchLimit
	}

	result, err := a.dispatcher.ProcessPending(ctx, opts.OrgID, limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "dispatch pass failed", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Processed %d, failed %d (claimed %d)\n",
			result.Processed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d events failed", result.Failed))
	}
	return nil
}
