package scenario

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"
)

// MigrationSource defines the interface to load migrations.
type MigrationSource interface {
	LoadMigrations() ([]Migration, error)
}

// StaticSource serves migrations defined in code.
type StaticSource struct {
	Label      string
	Migrations []Migration
}

// NewStaticSource returns a new StaticSource.
//
// Parameters:
//   - label: A label used in discovery errors and logs.
//   - migrations: The migrations to serve.
//
// Returns:
//   - *StaticSource: A new StaticSource.
func NewStaticSource(label string, migrations ...Migration) *StaticSource {
	return &StaticSource{
		Label:      label,
		Migrations: migrations,
	}
}

// LoadMigrations returns a copy of the configured migrations.
func (s *StaticSource) LoadMigrations() ([]Migration, error) {
	out := make([]Migration, len(s.Migrations))
	for i, m := range s.Migrations {
		if m.Source == "" {
			m.Source = s.Label
		}
		out[i] = m
	}
	return out, nil
}

// String implements fmt.Stringer for error reporting.
func (s *StaticSource) String() string {
	return s.Label
}

// Selector scopes discovery to one network/deployment and optionally to
// migration names matching a path.Match glob.
type Selector struct {
	Scope
	Pattern string
}

// Registry maps scopes to the migration sources registered for them.
type Registry struct {
	mu      sync.RWMutex
	sources map[Scope][]MigrationSource
	scopes  []Scope
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
//
// Parameters:
//   - logger: Optional logger. Defaults to slog.Default().
//
// Returns:
//   - *Registry: A new registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources: make(map[Scope][]MigrationSource),
		logger:  logger,
	}
}

// Register adds sources for the given scope. Sources registered for the
// same scope are merged at discovery time.
//
// Parameters:
//   - scope: The network/deployment the sources belong to.
//   - sources: The sources to add.
//
// Returns:
//   - *Registry: The registry, for chaining.
func (r *Registry) Register(scope Scope, sources ...MigrationSource) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[scope]; !ok {
		r.scopes = append(r.scopes, scope)
	}
	r.sources[scope] = append(r.sources[scope], sources...)
	return r
}

// Scopes returns the registered scopes in registration order.
func (r *Registry) Scopes() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scope, len(r.scopes))
	copy(out, r.scopes)
	return out
}

// Discover loads every source registered for the selector's scope and
// returns the matching migrations sorted by name. Discovery never touches
// an environment. An unregistered scope yields no migrations.
//
// Parameters:
//   - sel: The scope and name pattern to select.
//
// Returns:
//   - []Migration: The discovered migrations, ascending by name.
//   - error: A *DiscoveryError if any unit is malformed.
func (r *Registry) Discover(sel Selector) ([]Migration, error) {
	r.mu.RLock()
	sources := append([]MigrationSource(nil), r.sources[sel.Scope]...)
	r.mu.RUnlock()

	if sel.Pattern != "" {
		if _, err := path.Match(sel.Pattern, ""); err != nil {
			return nil, &DiscoveryError{Scope: sel.Scope, Err: fmt.Errorf("pattern %q: %w", sel.Pattern, err)}
		}
	}

	seen := make(map[string]string)
	var all []Migration
	for _, src := range sources {
		label := sourceLabel(src)
		migs, err := src.LoadMigrations()
		if err != nil {
			return nil, &DiscoveryError{Scope: sel.Scope, Source: label, Err: err}
		}
		for _, mig := range migs {
			if err := mig.validate(); err != nil {
				return nil, &DiscoveryError{Scope: sel.Scope, Source: label, Migration: mig.Name, Err: err}
			}
			if prev, dup := seen[mig.Name]; dup {
				return nil, &DiscoveryError{
					Scope:     sel.Scope,
					Source:    label,
					Migration: mig.Name,
					Err:       fmt.Errorf("%w (also in %s)", ErrDuplicateName, prev),
				}
			}
			seen[mig.Name] = label
			if sel.Pattern != "" {
				if ok, _ := path.Match(sel.Pattern, mig.Name); !ok {
					r.logger.Debug("skipping migration not matching pattern",
						"migration", mig.Name, "pattern", sel.Pattern)
					continue
				}
			}
			all = append(all, mig)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	r.logger.Debug("discovered migrations", "scope", sel.Scope.String(), "count", len(all))
	return all, nil
}

func sourceLabel(src MigrationSource) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", src)
}
