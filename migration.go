package scenario

import (
	"context"
	"strings"
)

// Artifact is the data produced by a migration's prepare action and handed
// to its own enact action, e.g. deployed addresses or encoded calldata.
type Artifact any

// PrepareFn computes the artifact for a migration. It may deploy helpers
// into the environment but must not perform the enactment itself.
type PrepareFn func(ctx context.Context, env DeploymentManager) (Artifact, error)

// EnactFn applies the migration to the environment's persistent state.
type EnactFn func(ctx context.Context, env DeploymentManager, artifact Artifact) error

// VerifyFn asserts that the environment reflects the enacted change.
type VerifyFn func(ctx context.Context, env DeploymentManager) error

// EnactedFn reports whether the migration's effect is already present in the
// environment, regardless of which run applied it.
type EnactedFn func(ctx context.Context, env DeploymentManager) (bool, error)

// Actions bundles the lifecycle operations of a migration.
type Actions struct {
	Prepare PrepareFn
	Enact   EnactFn
	Verify  VerifyFn
	Enacted EnactedFn
}

// Migration is a named unit of environment state change. The name is the
// total-order key used to sequence migrations within a combination.
type Migration struct {
	Name        string
	Description string
	// Source describes where the migration was loaded from (a file path or
	// a source label). Informational only.
	Source  string
	Actions Actions
}

// NewMigration returns a new migration.
//
// Parameters:
//   - name: The unique name of the migration.
//   - actions: The lifecycle actions of the migration.
//
// Returns:
//   - *Migration: A new migration.
func NewMigration(name string, actions Actions) *Migration {
	return &Migration{
		Name:    name,
		Actions: actions,
	}
}

// WithName returns a new Migration with the given name.
//
// Parameters:
//   - name: The name of the migration.
//
// Returns:
//   - *Migration: A new migration.
func (m *Migration) WithName(name string) *Migration {
	new := *m
	new.Name = name
	return &new
}

// WithDescription returns a new Migration with the given description.
//
// Parameters:
//   - description: A human readable summary of the change.
//
// Returns:
//   - *Migration: A new migration.
func (m *Migration) WithDescription(description string) *Migration {
	new := *m
	new.Description = description
	return &new
}

// WithSource returns a new Migration with the given source label.
//
// Parameters:
//   - source: The file path or label the migration was loaded from.
//
// Returns:
//   - *Migration: A new migration.
func (m *Migration) WithSource(source string) *Migration {
	new := *m
	new.Source = source
	return &new
}

// WithActions returns a new Migration with the given actions.
//
// Parameters:
//   - actions: The lifecycle actions to use.
//
// Returns:
//   - *Migration: A new migration.
func (m *Migration) WithActions(actions Actions) *Migration {
	new := *m
	new.Actions = actions
	return &new
}

// WithEnacted returns a new Migration whose actions use the given enacted
// predicate, keeping the other actions.
//
// Parameters:
//   - enacted: The predicate to use.
//
// Returns:
//   - *Migration: A new migration.
func (m *Migration) WithEnacted(enacted EnactedFn) *Migration {
	new := *m
	new.Actions.Enacted = enacted
	return &new
}

// validate checks the shape of a discovered migration.
func (m Migration) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrMissingName
	}
	if m.Actions.Enact == nil {
		return ErrMissingEnact
	}
	return nil
}

// isEnacted evaluates the enacted predicate. A migration without one is
// never considered enacted.
func isEnacted(ctx context.Context, m Migration, env DeploymentManager) (bool, error) {
	if m.Actions.Enacted == nil {
		return false, nil
	}
	return m.Actions.Enacted(ctx, env)
}
