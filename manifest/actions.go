package manifest

import (
	"context"
	"fmt"
	"maps"

	"github.com/aatuh/scenario"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// StateEnv is the environment a declarative migration needs: a deployment
// manager with key/value state and simulated deployments. *world.World
// implements it.
type StateEnv interface {
	scenario.DeploymentManager
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Snapshot(ctx context.Context) (map[string]string, error)
	Deploy(ctx context.Context, alias, contract string) (string, error)
}

type setProgram struct {
	key   string
	value *vm.Program
}

type compiled struct {
	file    File
	sets    []setProgram
	enacted *vm.Program
	verify  []*vm.Program
}

// Compile validates f and compiles its expressions into migration actions.
// source labels the migration (usually the file path).
func Compile(f File, source string) (scenario.Migration, error) {
	c := &compiled{file: f}
	for i, d := range f.Prepare.Deploy {
		if d.Alias == "" || d.Contract == "" {
			return scenario.Migration{}, fmt.Errorf("prepare.deploy[%d]: alias and contract: %w", i, ErrMissingField)
		}
	}
	for i, s := range f.Enact.Set {
		if s.Key == "" || s.Value == "" {
			return scenario.Migration{}, fmt.Errorf("enact.set[%d]: key and value: %w", i, ErrMissingField)
		}
		p, err := expr.Compile(s.Value)
		if err != nil {
			return scenario.Migration{}, fmt.Errorf("enact.set[%d] %s: %w", i, s.Key, err)
		}
		c.sets = append(c.sets, setProgram{key: s.Key, value: p})
	}
	if f.Enacted != "" {
		p, err := expr.Compile(f.Enacted)
		if err != nil {
			return scenario.Migration{}, fmt.Errorf("enacted: %w", err)
		}
		c.enacted = p
	}
	for i, v := range f.Verify {
		p, err := expr.Compile(v)
		if err != nil {
			return scenario.Migration{}, fmt.Errorf("verify[%d]: %w", i, err)
		}
		c.verify = append(c.verify, p)
	}

	actions := scenario.Actions{
		Prepare: c.prepare,
		Enact:   c.enact,
	}
	if c.enacted != nil {
		actions.Enacted = c.isEnacted
	}
	if len(c.verify) > 0 {
		actions.Verify = c.check
	}
	return *scenario.NewMigration(f.Name, actions).
		WithDescription(f.Description).
		WithSource(source), nil
}

func stateEnv(env scenario.DeploymentManager) (StateEnv, error) {
	se, ok := env.(StateEnv)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNoStateEnv, env)
	}
	return se, nil
}

// Env builds the expression environment for env. artifact may be nil.
func Env(ctx context.Context, env StateEnv, artifact map[string]string) (map[string]any, error) {
	snap, err := env.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	signers := env.Signers()
	names := make([]string, len(signers))
	for i, s := range signers {
		names[i] = string(s)
	}
	signer := ""
	if len(names) > 0 {
		signer = names[0]
	}
	if artifact == nil {
		artifact = map[string]string{}
	}
	return map[string]any{
		"state":      snap,
		"artifact":   maps.Clone(artifact),
		"network":    env.Network(),
		"deployment": env.Deployment(),
		"signer":     signer,
		"signers":    names,
	}, nil
}

// prepare deploys the declared helper contracts; the artifact maps each
// alias to its address.
func (c *compiled) prepare(ctx context.Context, env scenario.DeploymentManager) (scenario.Artifact, error) {
	se, err := stateEnv(env)
	if err != nil {
		return nil, err
	}
	artifact := make(map[string]string, len(c.file.Prepare.Deploy))
	for _, d := range c.file.Prepare.Deploy {
		addr, err := se.Deploy(ctx, d.Alias, d.Contract)
		if err != nil {
			return nil, fmt.Errorf("deploy %s: %w", d.Alias, err)
		}
		artifact[d.Alias] = addr
	}
	return artifact, nil
}

func (c *compiled) enact(ctx context.Context, env scenario.DeploymentManager, a scenario.Artifact) error {
	se, err := stateEnv(env)
	if err != nil {
		return err
	}
	artifact, _ := a.(map[string]string)
	for _, s := range c.sets {
		// Each set sees the writes before it.
		vars, err := Env(ctx, se, artifact)
		if err != nil {
			return err
		}
		out, err := expr.Run(s.value, vars)
		if err != nil {
			return fmt.Errorf("set %s: %w", s.key, err)
		}
		if err := se.Set(ctx, s.key, fmt.Sprint(out)); err != nil {
			return err
		}
	}
	for _, key := range c.file.Enact.Delete {
		if err := se.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiled) isEnacted(ctx context.Context, env scenario.DeploymentManager) (bool, error) {
	se, err := stateEnv(env)
	if err != nil {
		return false, err
	}
	vars, err := Env(ctx, se, nil)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(c.enacted, vars)
	if err != nil {
		return false, err
	}
	enacted, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("enacted: expected bool, got %T", out)
	}
	return enacted, nil
}

func (c *compiled) check(ctx context.Context, env scenario.DeploymentManager) error {
	se, err := stateEnv(env)
	if err != nil {
		return err
	}
	vars, err := Env(ctx, se, nil)
	if err != nil {
		return err
	}
	return assertAll(c.verify, c.file.Verify, vars)
}

// assertAll runs every boolean program and reports the first one that is
// false.
func assertAll(programs []*vm.Program, sources []string, vars map[string]any) error {
	for i, p := range programs {
		out, err := expr.Run(p, vars)
		if err != nil {
			return fmt.Errorf("assertion %q: %w", sources[i], err)
		}
		if ok, _ := out.(bool); !ok {
			return fmt.Errorf("%w: %s", ErrAssertion, sources[i])
		}
	}
	return nil
}
