package scenario

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestSolution_ApplyRestoresSigners(t *testing.T) {
	s := newSpy()
	env := newFakeEnv()
	before := env.Signers()

	var during []Actor
	probe := *NewMigration("A", Actions{
		Enact: func(ctx context.Context, env DeploymentManager, a Artifact) error {
			during = env.Signers()
			return nil
		},
	})
	sol := Build(Combination{probe, spyMigration(s, "B", spyOpts{})}, nil)

	sc, err := sol.Apply(context.Background(), &Context{Env: env, Proposer: "gov"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(during) == 0 || during[0] != "gov" {
		t.Fatalf("expected proposer as default signer during run, got %v", during)
	}
	if !slices.Equal(env.Signers(), before) {
		t.Fatalf("expected signers restored to %v, got %v", before, env.Signers())
	}
	if !slices.Equal(sc.Migrations.Names(), []string{"A", "B"}) {
		t.Fatalf("expected migrations recorded on context, got %v", sc.Migrations.Names())
	}
	if len(sc.Outcomes) != 2 {
		t.Fatalf("expected outcomes on context, got %+v", sc.Outcomes)
	}
}

func TestSolution_ApplyRestoresSignersOnError(t *testing.T) {
	s := newSpy()
	env := proposingEnv{newFakeEnv()}
	env.proposer = "timelock"
	before := env.Signers()

	sol := Build(Combination{
		spyMigration(s, "A", spyOpts{enactErr: errBoom}),
		spyMigration(s, "B", spyOpts{}),
	}, nil)
	_, err := sol.Apply(context.Background(), NewContext(env))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if !slices.Equal(env.Signers(), before) {
		t.Fatalf("expected signers restored to %v, got %v", before, env.Signers())
	}
	if s.count("B.prepare") != 0 {
		t.Fatalf("expected B skipped after A failed")
	}
}

func TestWithSigner_RestoresAfterPanic(t *testing.T) {
	env := newFakeEnv()
	before := env.Signers()
	func() {
		defer func() { _ = recover() }()
		_ = WithSigner(env, "x", func() error { panic("boom") })
	}()
	if !slices.Equal(env.Signers(), before) {
		t.Fatalf("expected signers restored after panic, got %v", env.Signers())
	}
}

func TestSolution_ApplyWithoutEnv(t *testing.T) {
	if _, err := Build(nil, nil).Apply(context.Background(), &Context{}); err == nil {
		t.Fatalf("expected error for missing environment")
	}
}

func TestSolver_Solve(t *testing.T) {
	env := newFakeEnv()
	reg := NewRegistry(nil).Register(ScopeOf(env), NewStaticSource("code", named("C", "A", "B")...))

	solver := &Solver{Registry: reg}
	sols, err := solver.Solve(env)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sols) != 7 {
		t.Fatalf("expected 7 solutions, got %d", len(sols))
	}
	if sols[0].Name() != "[A]" || sols[len(sols)-1].Name() != "[A B C]" {
		t.Fatalf("unexpected solution order: first %s last %s", sols[0].Name(), sols[len(sols)-1].Name())
	}

	solver.Options.IncludeEmpty = true
	sols, err = solver.Solve(env)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sols) != 8 || sols[0].Name() != "[]" {
		t.Fatalf("expected 8 solutions starting with the empty one, got %d", len(sols))
	}

	other := newFakeEnv()
	other.network = "sepolia"
	sols, err = solver.Solve(other)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sols) != 1 || len(sols[0].Combination) != 0 {
		t.Fatalf("expected a single empty solution for an unregistered scope, got %d", len(sols))
	}
}
