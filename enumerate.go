package scenario

import (
	"fmt"
	"iter"
	"math/bits"
	"sort"
	"strings"
)

// MaxMigrations bounds the number of migrations Enumerate accepts. The
// number of combinations is 2^n.
const MaxMigrations = 20

// Combination is an ordered subset of migrations, ascending by name.
type Combination []Migration

// Names returns the migration names in order.
func (c Combination) Names() []string {
	names := make([]string, len(c))
	for i, m := range c {
		names[i] = m.Name
	}
	return names
}

// String renders the combination as "[A B]".
func (c Combination) String() string {
	return "[" + strings.Join(c.Names(), " ") + "]"
}

// EnumerateOptions restricts the enumerated subsets.
type EnumerateOptions struct {
	// IncludeEmpty keeps the empty combination even when non-empty
	// combinations exist.
	IncludeEmpty bool
	// MaxSize caps the number of migrations per combination. Zero means
	// no cap.
	MaxSize int
	// Require lists migration names every combination must contain.
	Require []string
}

// Enumerate returns a lazy, restartable sequence over the subsets of
// migrations. Subsets are produced by iterating a bitmask over the
// name-sorted input, so every combination is already ascending. The empty
// combination is dropped when the input is non-empty unless
// opts.IncludeEmpty is set.
//
// Parameters:
//   - migrations: The migrations to combine. Names must be unique.
//   - opts: Restrictions on the produced subsets.
//
// Returns:
//   - iter.Seq[Combination]: The combinations, in ascending mask order.
//   - error: ErrTooManyMigrations, ErrDuplicateName or ErrUnknownRequired.
func Enumerate(migrations []Migration, opts EnumerateOptions) (iter.Seq[Combination], error) {
	n := len(migrations)
	if n > MaxMigrations {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyMigrations, n, MaxMigrations)
	}

	sorted := make([]Migration, n)
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < n; i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, sorted[i].Name)
		}
	}

	var required uint32
	for _, name := range opts.Require {
		idx := sort.Search(n, func(i int) bool { return sorted[i].Name >= name })
		if idx == n || sorted[idx].Name != name {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequired, name)
		}
		required |= 1 << idx
	}

	skipEmpty := n > 0 && !opts.IncludeEmpty
	total := uint32(1) << n

	return func(yield func(Combination) bool) {
		for mask := uint32(0); mask < total; mask++ {
			if mask == 0 && skipEmpty {
				continue
			}
			if mask&required != required {
				continue
			}
			size := bits.OnesCount32(mask)
			if opts.MaxSize > 0 && size > opts.MaxSize {
				continue
			}
			comb := make(Combination, 0, size)
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					comb = append(comb, sorted[i])
				}
			}
			if !yield(comb) {
				return
			}
		}
	}, nil
}

// Combinations collects the output of Enumerate into a slice.
func Combinations(migrations []Migration, opts EnumerateOptions) ([]Combination, error) {
	seq, err := Enumerate(migrations, opts)
	if err != nil {
		return nil, err
	}
	var out []Combination
	for comb := range seq {
		out = append(out, comb)
	}
	return out, nil
}
