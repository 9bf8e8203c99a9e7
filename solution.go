package scenario

import (
	"context"
	"fmt"
	"log/slog"
)

// Context is the per-run state threaded through a solution.
type Context struct {
	Env DeploymentManager
	// Proposer overrides the environment's proposer for this run.
	Proposer Actor
	// Migrations is the combination applied in this run, in order. It is
	// written by Solution.Apply for the verification phase.
	Migrations Combination
	Outcomes   []Outcome
}

// NewContext returns a Context for env.
func NewContext(env DeploymentManager) *Context {
	return &Context{Env: env}
}

// Solution realizes one combination against a scenario context. Solutions
// hold no mutable state and can be applied to any number of contexts.
type Solution struct {
	Combination Combination
	lifecycle   *Lifecycle
}

// Build returns the solution for comb.
//
// Parameters:
//   - comb: The ordered combination to apply.
//   - lifecycle: The lifecycle driver. Nil uses NewLifecycle().
//
// Returns:
//   - Solution: The solution.
func Build(comb Combination, lifecycle *Lifecycle) Solution {
	if lifecycle == nil {
		lifecycle = NewLifecycle()
	}
	return Solution{Combination: comb, lifecycle: lifecycle}
}

// Name identifies the solution by its combination.
func (s Solution) Name() string {
	return s.Combination.String()
}

// Apply makes the proposer the default signer, runs the combination and
// restores the signer list, whether or not a migration failed. The
// combination and the outcomes are written onto sc.
//
// Parameters:
//   - ctx: Context for the migration actions.
//   - sc: The scenario context holding the environment.
//
// Returns:
//   - *Context: sc, updated.
//   - error: The first migration failure.
func (s Solution) Apply(ctx context.Context, sc *Context) (*Context, error) {
	if sc == nil || sc.Env == nil {
		return sc, fmt.Errorf("apply %s: context has no environment", s.Name())
	}
	lc := s.lifecycle
	if lc == nil {
		lc = NewLifecycle()
	}
	log := lc.logger()

	proposer, err := resolveProposer(ctx, sc)
	if err != nil {
		return sc, fmt.Errorf("apply %s: resolve proposer: %w", s.Name(), err)
	}

	sc.Migrations = s.Combination
	log.Info("running scenario with migrations", "migrations", s.Combination.Names())

	run := func() error {
		outcomes, err := lc.Run(ctx, s.Combination, sc.Env)
		sc.Outcomes = outcomes
		return err
	}
	if proposer == "" {
		log.Debug("no proposer available, keeping signers")
		err = run()
	} else {
		err = WithSigner(sc.Env, proposer, run)
	}
	return sc, err
}

func resolveProposer(ctx context.Context, sc *Context) (Actor, error) {
	if sc.Proposer != "" {
		return sc.Proposer, nil
	}
	if p, ok := sc.Env.(Proposer); ok {
		return p.Proposer(ctx)
	}
	return "", nil
}

// Solver discovers the migrations for an environment's scope and builds one
// solution per enumerated combination.
type Solver struct {
	Registry  *Registry
	Pattern   string
	Options   EnumerateOptions
	Lifecycle *Lifecycle
	Logger    *slog.Logger
}

// Solve returns the solutions for env's network and deployment.
//
// Parameters:
//   - env: The environment whose scope selects the migrations.
//
// Returns:
//   - []Solution: One solution per combination.
//   - error: A *DiscoveryError or an enumeration error.
func (s *Solver) Solve(env DeploymentManager) ([]Solution, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	scope := ScopeOf(env)
	migs, err := s.Registry.Discover(Selector{Scope: scope, Pattern: s.Pattern})
	if err != nil {
		return nil, err
	}
	seq, err := Enumerate(migs, s.Options)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", scope, err)
	}
	var solutions []Solution
	for comb := range seq {
		solutions = append(solutions, Build(comb, s.Lifecycle))
	}
	if len(migs) > 0 && !s.Options.IncludeEmpty {
		log.Debug("skipping empty migration combination", "scope", scope.String())
	}
	log.Info("solved migration constraint", "scope", scope.String(),
		"migrations", len(migs), "solutions", len(solutions))
	return solutions, nil
}
