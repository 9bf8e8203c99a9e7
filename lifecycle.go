package scenario

import (
	"context"
	"log/slog"
)

// Outcome records what the lifecycle did with one migration.
type Outcome struct {
	Migration string
	Artifact  Artifact
	// Skipped is true when the migration was already enacted and enact
	// was not invoked.
	Skipped bool
}

// Lifecycle drives migrations through prepare, enacted and enact, and
// later through verify.
type Lifecycle struct {
	Logger  *slog.Logger
	History *History
}

// NewLifecycle returns a Lifecycle logging to slog.Default().
//
// Returns:
//   - *Lifecycle: A new Lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{Logger: slog.Default()}
}

// WithLogger returns a new Lifecycle with the given logger.
//
// Parameters:
//   - logger: The logger to use.
//
// Returns:
//   - *Lifecycle: A new Lifecycle.
func (l *Lifecycle) WithLogger(logger *slog.Logger) *Lifecycle {
	new := *l
	new.Logger = logger
	return &new
}

// WithHistory returns a new Lifecycle that records every enactment in the
// given ledger.
//
// Parameters:
//   - history: The ledger to record enactments in. Nil disables recording.
//
// Returns:
//   - *Lifecycle: A new Lifecycle.
func (l *Lifecycle) WithHistory(history *History) *Lifecycle {
	new := *l
	new.History = history
	return &new
}

func (l *Lifecycle) logger() *slog.Logger {
	if l == nil || l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Run executes the combination against env, strictly in order. For each
// migration it prepares an artifact, skips enactment if the migration is
// already enacted and otherwise enacts it with the artifact. The first
// failure aborts the remaining migrations; nothing is rolled back.
//
// Parameters:
//   - ctx: Context checked between migrations.
//   - comb: The ordered migrations to run.
//   - env: The environment to migrate.
//
// Returns:
//   - []Outcome: One outcome per migration that completed.
//   - error: A *MigrationError naming the failing migration, or ctx.Err().
func (l *Lifecycle) Run(ctx context.Context, comb Combination, env DeploymentManager) ([]Outcome, error) {
	log := l.logger()
	outcomes := make([]Outcome, 0, len(comb))
	for _, mig := range comb {
		if err := ctx.Err(); err != nil {
			log.Warn("lifecycle cancelled", "next", mig.Name, "error", err)
			return outcomes, err
		}

		var artifact Artifact
		if mig.Actions.Prepare != nil {
			a, err := mig.Actions.Prepare(ctx, env)
			if err != nil {
				return outcomes, &MigrationError{Migration: mig.Name, Phase: PhasePrepare, Err: err}
			}
			artifact = a
		}
		log.Debug("prepared migration", "migration", mig.Name, "artifact", artifact)

		enacted, err := isEnacted(ctx, mig, env)
		if err != nil {
			return outcomes, &MigrationError{Migration: mig.Name, Phase: PhaseEnacted, Err: err}
		}
		if enacted {
			log.Info("migration already enacted", "migration", mig.Name)
			outcomes = append(outcomes, Outcome{Migration: mig.Name, Artifact: artifact, Skipped: true})
			continue
		}

		if err := mig.Actions.Enact(ctx, env, artifact); err != nil {
			return outcomes, &MigrationError{Migration: mig.Name, Phase: PhaseEnact, Err: err}
		}
		if l != nil && l.History != nil {
			if err := l.History.Record(ctx, env, mig.Name); err != nil {
				return outcomes, &MigrationError{Migration: mig.Name, Phase: PhaseRecord, Err: err}
			}
		}
		log.Info("enacted migration", "migration", mig.Name)
		outcomes = append(outcomes, Outcome{Migration: mig.Name, Artifact: artifact})
	}
	return outcomes, nil
}

// Verify re-walks the combination and runs verify for every migration that
// defines one and is not currently reported as enacted. The enacted check
// is evaluated now, after the run, not captured before it.
//
// Parameters:
//   - ctx: Context passed to the actions.
//   - comb: The ordered migrations that were run.
//   - env: The migrated environment.
//
// Returns:
//   - []string: The names of the migrations that were verified.
//   - error: A *MigrationError for the first failing verification.
func (l *Lifecycle) Verify(ctx context.Context, comb Combination, env DeploymentManager) ([]string, error) {
	log := l.logger()
	var verified []string
	for _, mig := range comb {
		if mig.Actions.Verify == nil {
			continue
		}
		enacted, err := isEnacted(ctx, mig, env)
		if err != nil {
			return verified, &MigrationError{Migration: mig.Name, Phase: PhaseEnacted, Err: err}
		}
		if enacted {
			log.Debug("skipping verification of enacted migration", "migration", mig.Name)
			continue
		}
		if err := mig.Actions.Verify(ctx, env); err != nil {
			return verified, &MigrationError{Migration: mig.Name, Phase: PhaseVerify, Err: err}
		}
		log.Info("verified migration", "migration", mig.Name)
		verified = append(verified, mig.Name)
	}
	return verified, nil
}

// VerifyContext runs Verify over the migrations recorded on sc.
func (l *Lifecycle) VerifyContext(ctx context.Context, sc *Context) ([]string, error) {
	return l.Verify(ctx, sc.Migrations, sc.Env)
}
