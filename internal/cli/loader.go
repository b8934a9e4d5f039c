package cli

import (
	"github.com/loomworks/millflow/internal/actions"
	"github.com/loomworks/millflow/internal/config"
	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/statemachine"
	"github.com/loomworks/millflow/internal/store"
)

// app bundles the wired components a command needs.
type app struct {
	cfg        config.Config
	store      *store.Store
	engine     *statemachine.Engine
	dispatcher *dispatch.Dispatcher
}

// loadApp opens the configured database and wires the engine, registry, and
// dispatcher. The --db flag overrides the config file's database path.
func loadApp(opts *RootOptions, dbOverride string, dispatchOpts ...dispatch.Option) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if dbOverride != "" {
		cfg.DatabasePath = dbOverride
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := dispatch.NewActionRegistry()
	if err := actions.RegisterAll(reg, st); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register actions", err)
	}

	dispatchOpts = append([]dispatch.Option{
		dispatch.WithHandlerTimeout(cfg.HandlerTimeout.Std()),
	}, dispatchOpts...)

	return &app{
		cfg:        cfg,
		store:      st,
		engine:     statemachine.New(st, nil),
		dispatcher: dispatch.New(st, reg, dispatchOpts...),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
