package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/aatuh/scenario"
	"github.com/aatuh/scenario/world"
)

const raiseCapTOML = `
description = "raise the supply cap"
enacted = 'state["cap"] == "2000"'
verify = ['"cap" in state']

[[prepare.deploy]]
alias = "feed"
contract = "PriceFeed.sol"

[[enact.set]]
key = "cap"
value = '"2000"'

[[enact.set]]
key = "feed"
value = 'artifact["feed"]'

[[enact.set]]
key = "admin"
value = 'signer'
`

const pauseYAML = `
name: B-pause
enact:
  set:
    - key: paused
      value: "true"
  delete: [cap]
verify:
  - 'state["paused"] == "true"'
  - 'not ("cap" in state)'
`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newWorld() *world.World {
	return world.New("mainnet", "usdc", world.NewMemoryBackend(), world.WithSigners("alice", "bob"))
}

func TestLoadFile_TOMLActions(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, filepath.Join(t.TempDir(), "A-raise-cap.toml"), raiseCapTOML)

	mig, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if mig.Name != "A-raise-cap" || mig.Source != path || mig.Description != "raise the supply cap" {
		t.Fatalf("unexpected migration metadata %+v", mig)
	}

	w := newWorld()
	lc := scenario.NewLifecycle()
	outcomes, err := lc.Run(ctx, scenario.Combination{mig}, w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Skipped {
		t.Fatalf("expected an enactment, got %+v", outcomes)
	}
	artifact, ok := outcomes[0].Artifact.(map[string]string)
	if !ok || artifact["feed"] == "" {
		t.Fatalf("expected deployed feed in artifact, got %v", outcomes[0].Artifact)
	}

	if v, _, _ := w.Get(ctx, "cap"); v != "2000" {
		t.Fatalf("expected cap 2000, got %q", v)
	}
	if v, _, _ := w.Get(ctx, "feed"); v != artifact["feed"] {
		t.Fatalf("expected feed address %s, got %q", artifact["feed"], v)
	}
	if v, _, _ := w.Get(ctx, "admin"); v != "alice" {
		t.Fatalf("expected admin alice, got %q", v)
	}

	// Enacted now holds, so a replay skips enact and verify is not run.
	outcomes, err = lc.Run(ctx, scenario.Combination{mig}, w)
	if err != nil || !outcomes[0].Skipped {
		t.Fatalf("expected skipped replay, got %+v %v", outcomes, err)
	}
	verified, err := lc.Verify(ctx, scenario.Combination{mig}, w)
	if err != nil || len(verified) != 0 {
		t.Fatalf("expected no verification, got %v %v", verified, err)
	}
}

func TestLoadFile_YAMLVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mig, err := LoadFile(writeFile(t, filepath.Join(dir, "pause.yaml"), pauseYAML))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if mig.Name != "B-pause" {
		t.Fatalf("expected name from file, got %q", mig.Name)
	}
	if mig.Actions.Enacted != nil {
		t.Fatalf("expected no enacted predicate")
	}

	w := newWorld()
	_ = w.Set(ctx, "cap", "1000")
	lc := scenario.NewLifecycle()
	if _, err := lc.Run(ctx, scenario.Combination{mig}, w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	verified, err := lc.Verify(ctx, scenario.Combination{mig}, w)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !slices.Equal(verified, []string{"B-pause"}) {
		t.Fatalf("expected B-pause verified, got %v", verified)
	}

	_ = w.Set(ctx, "paused", "false")
	_, err = lc.Verify(ctx, scenario.Combination{mig}, w)
	if !errors.Is(err, ErrAssertion) {
		t.Fatalf("expected assertion failure, got %v", err)
	}
	if phase, _ := scenario.PhaseOf(err); phase != scenario.PhaseVerify {
		t.Fatalf("expected verify phase, got %q", phase)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{name: "unknown field", file: "a.toml", content: "enact_typo = 1\n"},
		{name: "unknown yaml field", file: "a.yaml", content: "verfy: []\n"},
		{name: "bad expression", file: "b.toml", content: "enacted = 'state[\"x\" =='\n"},
		{name: "set without key", file: "c.yaml", content: "enact:\n  set:\n    - value: '1'\n", want: ErrMissingField},
		{name: "deploy without contract", file: "d.yaml", content: "prepare:\n  deploy:\n    - alias: feed\n", want: ErrMissingField},
		{name: "unsupported format", file: "e.json", content: "{}", want: ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, filepath.Join(dir, tt.file), tt.content))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDirSource_CompileErrorIsDiscoveryError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.toml"), raiseCapTOML)
	writeFile(t, filepath.Join(dir, "B.yaml"), "verify: ['state[']\n")

	scope := scenario.Scope{Network: "mainnet", Deployment: "usdc"}
	reg := scenario.NewRegistry(nil).Register(scope, NewDirSource(dir))
	_, err := reg.Discover(scenario.Selector{Scope: scope})
	var de *scenario.DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if de.Source != dir {
		t.Fatalf("expected source %s, got %s", dir, de.Source)
	}
}

func TestDirSource_LoadsSortedAndSkipsOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pause.yaml"), pauseYAML)
	writeFile(t, filepath.Join(dir, "A-raise-cap.toml"), raiseCapTOML)
	writeFile(t, filepath.Join(dir, "README.md"), "# notes")

	migs, err := NewDirSource(dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migs) != 2 || migs[0].Name != "A-raise-cap" || migs[1].Name != "B-pause" {
		t.Fatalf("unexpected migrations %v", scenario.Combination(migs).Names())
	}

	missing, err := NewDirSource(filepath.Join(dir, "nope")).LoadMigrations()
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected no migrations for a missing directory, got %v %v", missing, err)
	}
}

func TestRegisterTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mainnet", "usdc", MigrationsDir, "A.toml"), raiseCapTOML)
	writeFile(t, filepath.Join(root, "base", "weth", MigrationsDir, "pause.yaml"), pauseYAML)
	if err := os.MkdirAll(filepath.Join(root, "base", "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	reg := scenario.NewRegistry(nil)
	scopes, err := RegisterTree(reg, root, nil)
	if err != nil {
		t.Fatalf("RegisterTree: %v", err)
	}
	want := []scenario.Scope{
		{Network: "base", Deployment: "weth"},
		{Network: "mainnet", Deployment: "usdc"},
	}
	if !slices.Equal(scopes, want) {
		t.Fatalf("unexpected scopes %v", scopes)
	}
	migs, err := reg.Discover(scenario.Selector{Scope: want[1]})
	if err != nil || len(migs) != 1 || migs[0].Name != "A" {
		t.Fatalf("unexpected discovery %v %v", migs, err)
	}

	if _, err := RegisterTree(reg, filepath.Join(root, "missing"), nil); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

type bareEnv struct{}

func (bareEnv) Network() string             { return "mainnet" }
func (bareEnv) Deployment() string          { return "usdc" }
func (bareEnv) Signers() []scenario.Actor   { return nil }
func (bareEnv) SetSigners([]scenario.Actor) {}

func TestActions_RequireStateEnv(t *testing.T) {
	mig, err := Compile(File{Name: "A", Enact: EnactSpec{Set: []SetSpec{{Key: "k", Value: "1"}}}}, "inline")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = scenario.NewLifecycle().Run(context.Background(), scenario.Combination{mig}, bareEnv{})
	if !errors.Is(err, ErrNoStateEnv) {
		t.Fatalf("expected ErrNoStateEnv, got %v", err)
	}
	if phase, _ := scenario.PhaseOf(err); phase != scenario.PhasePrepare {
		t.Fatalf("expected prepare phase, got %q", phase)
	}
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "paused.yaml"), `
name: paused-after-pause
filter: network == "mainnet"
assert:
  - 'len(migrations) == 0 || state["paused"] == "true"'
`)
	writeFile(t, filepath.Join(dir, "owner.toml"), `assert = ['state["owner"] == "alice"']`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	scenarios, err := LoadScenarios(dir)
	if err != nil {
		t.Fatalf("LoadScenarios: %v", err)
	}
	if len(scenarios) != 2 || scenarios[0].Name != "owner" || scenarios[1].Name != "paused-after-pause" {
		t.Fatalf("unexpected scenarios %+v", scenarios)
	}
	if scenarios[1].Filter != `network == "mainnet"` {
		t.Fatalf("expected filter kept, got %q", scenarios[1].Filter)
	}

	mig, err := LoadFile(writeFile(t, filepath.Join(t.TempDir(), "pause.yaml"), pauseYAML))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	w := newWorld()
	sc := scenario.NewContext(w)
	if err := scenarios[1].Check(ctx, sc); err != nil {
		t.Fatalf("expected empty combination to pass, got %v", err)
	}
	sc.Migrations = scenario.Combination{mig}
	if err := scenarios[1].Check(ctx, sc); !errors.Is(err, ErrAssertion) {
		t.Fatalf("expected assertion failure before enactment, got %v", err)
	}
	if _, err := scenario.NewLifecycle().Run(ctx, sc.Migrations, w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := scenarios[1].Check(ctx, sc); err != nil {
		t.Fatalf("expected assertion to pass, got %v", err)
	}

	if err := scenarios[0].Check(ctx, scenario.NewContext(bareEnv{})); !errors.Is(err, ErrNoStateEnv) {
		t.Fatalf("expected ErrNoStateEnv, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "bad.yaml"), "assert: ['state[']\n")
	if _, err := LoadScenarios(dir); err == nil {
		t.Fatalf("expected compile error")
	}
}
