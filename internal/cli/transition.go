package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/millflow/internal/statemachine"
)

// TransitionOptions holds flags for the transition command.
type TransitionOptions struct {
	*RootOptions
	Database string
	OrgID    string
}

// TransitionResult is the success payload for JSON output.
type TransitionResult struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	PriorStatus string `json:"prior_status"`
	NewStatus   string `json:"new_status"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
}

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransitionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transition <entity-type> <entity-id> <to-status>",
		Short: "Apply a state transition to an entity",
		Long: `Apply a state transition to an entity.

Validates the edge against the transition table, updates the entity's
status, and enqueues one pending business event atomically. The event
is not processed here; run 'millflow process' afterwards.

Example:
  millflow transition production_order ord-42 confirmed --org org-1`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(opts, cmd, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.OrgID, "org", "", "tenant organization ID (required)")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runTransition(opts *TransitionOptions, cmd *cobra.Command, entityType, entityID, toStatus string) error {
	ctx := context.Background()

	a, err := loadApp(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Transition(ctx, entityType, entityID, opts.OrgID, toStatus)
	if err != nil {
		formatter := &OutputFormatter{
			Format:  opts.Format,
			Writer:  cmd.OutOrStdout(),
			Verbose: opts.Verbose,
		}
		code := transitionErrorCode(err)
		_ = formatter.Error(code, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	payload := TransitionResult{
		EntityType:  entityType,
		EntityID:    entityID,
		PriorStatus: result.PriorStatus,
		NewStatus:   result.NewStatus,
		EventID:     result.Event.ID,
		EventType:   result.Event.EventType,
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(payload)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s -> %s (event %s)\n",
		entityType, entityID, result.PriorStatus, result.NewStatus, result.Event.ID)
	return nil
}

// transitionErrorCode maps a transition failure to its taxonomy code for
// structured output.
func transitionErrorCode(err error) string {
	switch {
	case statemachine.IsIllegalTransition(err):
		return string(statemachine.CodeIllegalTransition)
	case statemachine.IsConcurrentModification(err):
		return string(statemachine.CodeConcurrentModification)
	case statemachine.IsEntityNotFound(err):
		return string(statemachine.CodeEntityNotFound)
	default:
		return "TRANSITION_FAILED"
	}
}
