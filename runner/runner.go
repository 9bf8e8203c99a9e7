// Package runner applies the solutions of a migration constraint to fresh
// worlds, runs scenario checks against each migrated world and then runs
// the verification phase.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aatuh/scenario"
	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CheckFn is the body of a scenario, run after the solution was applied.
type CheckFn func(ctx context.Context, sc *scenario.Context) error

// Scenario is one behaviour exercised against every solution.
type Scenario struct {
	Name string
	// Filter is an optional expr over network and deployment. The scenario
	// is skipped when it evaluates to false.
	Filter string
	Check  CheckFn
}

// WorldFactory creates the environment a single solution runs in. base is
// the environment the solutions were solved for. Environments with a
// Discard(context.Context) error method are discarded when the run ends.
type WorldFactory func(ctx context.Context, base scenario.DeploymentManager, runID string) (scenario.DeploymentManager, error)

// discarder is implemented by environments that release their state once a
// run is over.
type discarder interface {
	Discard(ctx context.Context) error
}

// Result describes one solution run.
type Result struct {
	RunID    string
	Scenario string
	Solution string
	Outcomes []scenario.Outcome
	Verified []string
	Err      error
	Duration time.Duration
}

// Passed reports whether the run completed without error.
func (r Result) Passed() bool { return r.Err == nil }

// Runner executes scenarios against every solution of a solver.
type Runner struct {
	Solver *scenario.Solver
	// Worlds creates one environment per solution. When nil, every solution
	// runs against the base environment, one at a time.
	Worlds      WorldFactory
	Parallelism int
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Matches evaluates a scenario filter against env's identity. An empty
// filter matches everything.
func Matches(filter string, env scenario.DeploymentManager) (bool, error) {
	if filter == "" {
		return true, nil
	}
	vars := map[string]any{
		"network":    env.Network(),
		"deployment": env.Deployment(),
	}
	out, err := expr.Eval(filter, vars)
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", filter, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter %q: expected bool, got %T", filter, out)
	}
	return ok, nil
}

// Run solves the migration constraint for base and runs sc once per
// solution. Results are returned in solution order. The returned error
// joins every failed run; a nil error means all runs passed. Once ctx is
// done, solutions not yet started fail with ctx's error without a world.
func (r *Runner) Run(ctx context.Context, base scenario.DeploymentManager, sc Scenario) ([]Result, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("scenario", sc.Name)

	ok, err := Matches(sc.Filter, base)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("scenario filtered out", "scope", scenario.ScopeOf(base).String())
		return nil, nil
	}

	solutions, err := r.Solver.Solve(base)
	if err != nil {
		return nil, err
	}

	lifecycle := r.Solver.Lifecycle
	if lifecycle == nil {
		lifecycle = scenario.NewLifecycle()
	}

	limit := r.Parallelism
	if limit < 1 || r.Worlds == nil {
		limit = 1
	}

	results := make([]Result, len(solutions))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, sol := range solutions {
		g.Go(func() error {
			// Solutions still queued when ctx ends are not started.
			if err := ctx.Err(); err != nil {
				results[i] = Result{Scenario: sc.Name, Solution: sol.Name(), Err: err}
				return err
			}
			results[i] = r.runOne(ctx, log, base, sc, sol, lifecycle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("scenario run interrupted", "error", err)
	}

	var errs []error
	for _, res := range results {
		if r.Metrics != nil {
			r.Metrics.observe(res)
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("scenario %s with migrations %s: %w", sc.Name, res.Solution, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) runOne(
	ctx context.Context,
	log *slog.Logger,
	base scenario.DeploymentManager,
	sc Scenario,
	sol scenario.Solution,
	lifecycle *scenario.Lifecycle,
) Result {
	start := time.Now()
	res := Result{
		RunID:    uuid.NewString(),
		Scenario: sc.Name,
		Solution: sol.Name(),
	}
	log = log.With("run_id", res.RunID, "solution", res.Solution)

	env := base
	if r.Worlds != nil {
		w, err := r.Worlds(ctx, base, res.RunID)
		if err != nil {
			res.Err = fmt.Errorf("create world: %w", err)
			return finish(log, res, start)
		}
		env = w
		if d, ok := w.(discarder); ok {
			defer func() {
				if err := d.Discard(context.WithoutCancel(ctx)); err != nil {
					log.Warn("failed to discard world", "error", err)
				}
			}()
		}
	}

	sctx := scenario.NewContext(env)
	_, err := sol.Apply(ctx, sctx)
	res.Outcomes = sctx.Outcomes
	if err != nil {
		res.Err = err
		return finish(log, res, start)
	}
	if sc.Check != nil {
		if err := sc.Check(ctx, sctx); err != nil {
			res.Err = fmt.Errorf("check: %w", err)
			return finish(log, res, start)
		}
	}
	res.Verified, res.Err = lifecycle.VerifyContext(ctx, sctx)
	return finish(log, res, start)
}

func finish(log *slog.Logger, res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	if res.Err != nil {
		log.Error("scenario run failed", "error", res.Err, "duration", res.Duration)
	} else {
		log.Info("scenario run passed", "verified", res.Verified, "duration", res.Duration)
	}
	return res
}
