package scenario

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// --- Fakes ---

type fakeEnv struct {
	network    string
	deployment string
	signers    []Actor
	proposer   Actor
	state      map[string]bool
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		network:    "mainnet",
		deployment: "usdc",
		signers:    []Actor{"alice", "bob"},
		state:      map[string]bool{},
	}
}

func (e *fakeEnv) Network() string            { return e.network }
func (e *fakeEnv) Deployment() string         { return e.deployment }
func (e *fakeEnv) Signers() []Actor           { return slices.Clone(e.signers) }
func (e *fakeEnv) SetSigners(signers []Actor) { e.signers = slices.Clone(signers) }

type proposingEnv struct {
	*fakeEnv
}

func (e proposingEnv) Proposer(context.Context) (Actor, error) { return e.proposer, nil }

// spy counts lifecycle calls per migration and records the global call order.
type spy struct {
	mu    sync.Mutex
	calls map[string]int
	order []string
}

func newSpy() *spy { return &spy{calls: map[string]int{}} }

func (s *spy) hit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	s.order = append(s.order, key)
}

func (s *spy) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

var errBoom = errors.New("boom")

type spyOpts struct {
	enactErr   error
	prepareErr error
	verifyErr  error
	noVerify   bool
}

// spyMigration builds a migration whose enacted predicate reads env.state
// and whose enact sets it.
func spyMigration(s *spy, name string, o spyOpts) Migration {
	actions := Actions{
		Prepare: func(ctx context.Context, env DeploymentManager) (Artifact, error) {
			s.hit(name + ".prepare")
			if o.prepareErr != nil {
				return nil, o.prepareErr
			}
			return "artifact:" + name, nil
		},
		Enact: func(ctx context.Context, env DeploymentManager, artifact Artifact) error {
			s.hit(name + ".enact")
			if artifact != "artifact:"+name {
				return errors.New("unexpected artifact")
			}
			if o.enactErr != nil {
				return o.enactErr
			}
			env.(stateful).set(name)
			return nil
		},
		Enacted: func(ctx context.Context, env DeploymentManager) (bool, error) {
			s.hit(name + ".enacted")
			return env.(stateful).has(name), nil
		},
	}
	if !o.noVerify {
		actions.Verify = func(ctx context.Context, env DeploymentManager) error {
			s.hit(name + ".verify")
			return o.verifyErr
		}
	}
	return *NewMigration(name, actions)
}

type stateful interface {
	set(name string)
	has(name string) bool
}

func (e *fakeEnv) set(name string)      { e.state[name] = true }
func (e *fakeEnv) has(name string) bool { return e.state[name] }

func noop(context.Context, DeploymentManager, Artifact) error { return nil }

func named(names ...string) []Migration {
	out := make([]Migration, len(names))
	for i, n := range names {
		out[i] = *NewMigration(n, Actions{Enact: noop})
	}
	return out
}
