package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/aatuh/scenario"
	"github.com/aatuh/scenario/runner"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ScenarioFile is the on-disk shape of a scenario: assertions evaluated
// against every migrated world.
type ScenarioFile struct {
	Name   string   `toml:"name" yaml:"name"`
	Filter string   `toml:"filter" yaml:"filter"`
	Assert []string `toml:"assert" yaml:"assert"`
}

// LoadScenario decodes and compiles a single scenario file.
func LoadScenario(path string) (runner.Scenario, error) {
	var f ScenarioFile
	if err := decode(path, &f); err != nil {
		return runner.Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = baseName(path)
	}
	sc, err := CompileScenario(f)
	if err != nil {
		return runner.Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// CompileScenario compiles the assertions of f into a runner scenario. The
// filter is kept as source and evaluated by the runner.
func CompileScenario(f ScenarioFile) (runner.Scenario, error) {
	if f.Filter != "" {
		if _, err := expr.Compile(f.Filter); err != nil {
			return runner.Scenario{}, fmt.Errorf("filter: %w", err)
		}
	}
	programs := make([]*vm.Program, 0, len(f.Assert))
	for i, a := range f.Assert {
		p, err := expr.Compile(a)
		if err != nil {
			return runner.Scenario{}, fmt.Errorf("assert[%d]: %w", i, err)
		}
		programs = append(programs, p)
	}
	sources := append([]string(nil), f.Assert...)
	return runner.Scenario{
		Name:   f.Name,
		Filter: f.Filter,
		Check: func(ctx context.Context, sc *scenario.Context) error {
			se, err := stateEnv(sc.Env)
			if err != nil {
				return err
			}
			vars, err := Env(ctx, se, nil)
			if err != nil {
				return err
			}
			vars["migrations"] = sc.Migrations.Names()
			return assertAll(programs, sources, vars)
		},
	}, nil
}

// LoadScenarios loads every scenario file in dir, sorted by name. A missing
// directory yields no scenarios.
func LoadScenarios(dir string) ([]runner.Scenario, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []runner.Scenario
	for _, e := range entries {
		if e.IsDir() || !isManifest(e.Name()) {
			continue
		}
		sc, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
