package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/millflow/internal/store"
)

// RetryOptions holds flags for the retry command.
type RetryOptions struct {
	*RootOptions
	Database string
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retry <event-id>",
		Short: "Reset a failed event to pending",
		Long: `Reset a failed event to pending for reprocessing.

The original payload snapshot is replayed as-is on the next dispatch
pass. Only failed events can be retried.

Example:
  millflow retry 6f1c9a4e-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runRetry(opts *RetryOptions, cmd *cobra.Command, eventID string) error {
	ctx := context.Background()

	a, err := loadApp(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.dispatcher.Retry(ctx, eventID); err != nil {
		formatter := &OutputFormatter{
			Format:  opts.Format,
			Writer:  cmd.OutOrStdout(),
			Verbose: opts.Verbose,
		}
		code := "RETRY_FAILED"
		switch {
		case errors.Is(err, store.ErrEventNotFound):
			code = "EVENT_NOT_FOUND"
		case errors.Is(err, store.ErrEventNotFailed):
			code = "EVENT_NOT_FAILED"
		}
		_ = formatter.Error(code, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]string{"event_id": eventID, "status": "pending"})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Event %s reset to pending\n", eventID)
	return nil
}
