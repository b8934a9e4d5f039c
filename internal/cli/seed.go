package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/millflow/internal/config"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	SeedFile string
}

// SeedResult summarizes what a seed run upserted.
type SeedResult struct {
	Transitions int `json:"transitions"`
	Handlers    int `json:"handlers"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the transition graph and handler registry from a seed file",
		Long: `Load the transition graph and handler registry from a seed file.

Upserts every declared edge and handler row, so re-running against an
existing database is safe: rows are updated in place, never duplicated.

Example:
  millflow seed --file seed.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.SeedFile, "file", "seed.yaml", "path to seed YAML file")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	seed, err := config.LoadSeed(opts.SeedFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load seed file", err)
	}

	a, err := loadApp(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer a.Close()

	result := SeedResult{}
	for _, tr := range seed.TransitionRows() {
		if err := a.store.UpsertTransition(ctx, tr); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed transition", err)
		}
		result.Transitions++
	}
	for _, h := range seed.HandlerRows() {
		if err := a.store.UpsertHandler(ctx, h); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed handler", err)
		}
		result.Handlers++
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d transitions and %d handlers\n",
		result.Transitions, result.Handlers)
	return nil
}
