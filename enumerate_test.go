package scenario

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestEnumerate_Counts(t *testing.T) {
	for n := 0; n <= 6; n++ {
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("m%02d", i)
		}
		migs := named(names...)

		withEmpty, err := Combinations(migs, EnumerateOptions{IncludeEmpty: true})
		if err != nil {
			t.Fatalf("n=%d: Combinations: %v", n, err)
		}
		if len(withEmpty) != 1<<n {
			t.Fatalf("n=%d: expected %d combinations with empty, got %d", n, 1<<n, len(withEmpty))
		}

		without, err := Combinations(migs, EnumerateOptions{})
		if err != nil {
			t.Fatalf("n=%d: Combinations: %v", n, err)
		}
		want := 1<<n - 1
		if n == 0 {
			want = 1
		}
		if len(without) != want {
			t.Fatalf("n=%d: expected %d combinations, got %d", n, want, len(without))
		}
	}
}

func TestEnumerate_ABC(t *testing.T) {
	combs, err := Combinations(named("C", "B", "A"), EnumerateOptions{})
	if err != nil {
		t.Fatalf("Combinations: %v", err)
	}
	if len(combs) != 7 {
		t.Fatalf("expected 7 combinations, got %d", len(combs))
	}
	var sawAB bool
	for _, c := range combs {
		if len(c) == 0 {
			t.Fatalf("did not expect the empty combination")
		}
		names := c.Names()
		if !slices.IsSorted(names) {
			t.Fatalf("combination not sorted: %v", names)
		}
		for i := 1; i < len(names); i++ {
			if names[i] == names[i-1] {
				t.Fatalf("duplicate in combination: %v", names)
			}
		}
		if slices.Equal(names, []string{"A", "B"}) {
			sawAB = true
		}
	}
	if !sawAB {
		t.Fatalf("expected [A B] among %v", combs)
	}
}

func TestEnumerate_EmptyInputYieldsSoleEmptyCombination(t *testing.T) {
	combs, err := Combinations(nil, EnumerateOptions{})
	if err != nil {
		t.Fatalf("Combinations: %v", err)
	}
	if len(combs) != 1 || len(combs[0]) != 0 {
		t.Fatalf("expected one empty combination, got %v", combs)
	}
	if combs[0].String() != "[]" {
		t.Fatalf("unexpected name %q", combs[0].String())
	}
}

func TestEnumerate_Restartable(t *testing.T) {
	seq, err := Enumerate(named("a", "b"), EnumerateOptions{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	var first, second []string
	for c := range seq {
		first = append(first, c.String())
	}
	for c := range seq {
		second = append(second, c.String())
	}
	if !slices.Equal(first, second) {
		t.Fatalf("expected identical passes, got %v and %v", first, second)
	}
	if !slices.Equal(first, []string{"[a]", "[b]", "[a b]"}) {
		t.Fatalf("unexpected order %v", first)
	}
}

func TestEnumerate_EarlyBreak(t *testing.T) {
	seq, _ := Enumerate(named("a", "b", "c"), EnumerateOptions{})
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2, got %d", n)
	}
}

func TestEnumerate_Limits(t *testing.T) {
	names := make([]string, MaxMigrations+1)
	for i := range names {
		names[i] = fmt.Sprintf("m%02d", i)
	}
	if _, err := Enumerate(named(names...), EnumerateOptions{}); !errors.Is(err, ErrTooManyMigrations) {
		t.Fatalf("expected ErrTooManyMigrations, got %v", err)
	}
	if _, err := Enumerate(named("a", "b", "a"), EnumerateOptions{}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestEnumerate_MaxSizeAndRequire(t *testing.T) {
	combs, err := Combinations(named("a", "b", "c"), EnumerateOptions{MaxSize: 1})
	if err != nil {
		t.Fatalf("Combinations: %v", err)
	}
	if len(combs) != 3 {
		t.Fatalf("expected 3 singletons, got %v", combs)
	}

	combs, err = Combinations(named("a", "b", "c"), EnumerateOptions{Require: []string{"b"}, IncludeEmpty: true})
	if err != nil {
		t.Fatalf("Combinations: %v", err)
	}
	if len(combs) != 4 {
		t.Fatalf("expected 4 combinations containing b, got %v", combs)
	}
	for _, c := range combs {
		if !slices.Contains(c.Names(), "b") {
			t.Fatalf("combination %v lacks required b", c)
		}
	}

	if _, err := Enumerate(named("a"), EnumerateOptions{Require: []string{"zz"}}); !errors.Is(err, ErrUnknownRequired) {
		t.Fatalf("expected ErrUnknownRequired, got %v", err)
	}
}
