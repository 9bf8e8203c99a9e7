package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aatuh/scenario"
	"github.com/aatuh/scenario/config"
	"github.com/aatuh/scenario/manifest"
	"github.com/aatuh/scenario/world"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	backend   world.Backend
	registry  *scenario.Registry
	lifecycle *scenario.Lifecycle
	scopes    []scenario.Scope
	// wrap is applied to every directory source, e.g. to track the ledger.
	wrap      func(scenario.MigrationSource) scenario.MigrationSource
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogFormat, cfg.Verbose)

	backend, err := world.Open(ctx, cfg.BackendConfig())
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		logger:    logger,
		backend:   backend,
		lifecycle: scenario.NewLifecycle().WithLogger(logger),
	}

	if cfg.Ledger.Enabled {
		sqlBackend, ok := backend.(*world.SQLBackend)
		if !ok {
			_ = backend.Close()
			return nil, fmt.Errorf("ledger requires a SQL store, got %T", backend)
		}
		history := sqlBackend.History(cfg.Ledger.Table)
		if err := history.Ensure(ctx); err != nil {
			_ = backend.Close()
			return nil, err
		}
		a.lifecycle = a.lifecycle.WithHistory(history)
		a.wrap = history.Track
		logger.Debug("enactment ledger enabled", "table", cfg.Ledger.Table)
	}

	if err := a.loadTree(); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

// loadTree registers the deployments directory in a new registry and selects
// the scopes to run. It replaces the previous registry, so scopes added on
// disk since the last call are picked up.
func (a *app) loadTree() error {
	registry := scenario.NewRegistry(a.logger)
	scopes, err := manifest.RegisterTree(registry, a.cfg.DeploymentsDir, a.wrap)
	if err != nil {
		return err
	}
	a.registry = registry
	a.scopes = a.selectScopes(scopes)
	if len(a.scopes) == 0 && a.cfg.Network != "" && a.cfg.Deployment != "" {
		// Unregistered scopes still solve to the empty combination.
		a.scopes = []scenario.Scope{{Network: a.cfg.Network, Deployment: a.cfg.Deployment}}
	}
	return nil
}

func (a *app) close() error {
	return a.backend.Close()
}

// selectScopes filters scopes by the configured network and deployment.
func (a *app) selectScopes(scopes []scenario.Scope) []scenario.Scope {
	var out []scenario.Scope
	for _, s := range scopes {
		if a.cfg.Network != "" && s.Network != a.cfg.Network {
			continue
		}
		if a.cfg.Deployment != "" && s.Deployment != a.cfg.Deployment {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (a *app) solver() *scenario.Solver {
	return &scenario.Solver{
		Registry:  a.registry,
		Pattern:   a.cfg.Pattern,
		Options:   a.cfg.EnumerateOptions(),
		Lifecycle: a.lifecycle,
		Logger:    a.logger,
	}
}

// baseWorld returns the world a scope's solutions are solved for and forked
// from.
func (a *app) baseWorld(scope scenario.Scope) *world.World {
	return world.New(scope.Network, scope.Deployment, a.backend,
		world.WithSigners(a.cfg.Actors()...),
		world.WithProposer(scenario.Actor(a.cfg.Proposer)),
		world.WithLogger(a.logger),
	)
}
