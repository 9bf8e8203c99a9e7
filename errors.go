package scenario

import (
	"errors"
	"fmt"
)

// Sentinel errors for discovery and enumeration.
var (
	// ErrMissingName indicates a migration unit declared no name.
	ErrMissingName = errors.New("migration has no name")
	// ErrMissingEnact indicates a migration unit has no enact action.
	ErrMissingEnact = errors.New("migration has no enact action")
	// ErrDuplicateName indicates two migrations in one snapshot share a name.
	ErrDuplicateName = errors.New("duplicate migration name")
	// ErrTooManyMigrations indicates the input exceeds MaxMigrations.
	ErrTooManyMigrations = errors.New("too many migrations to enumerate")
	// ErrUnknownRequired indicates a required migration is not in the input.
	ErrUnknownRequired = errors.New("required migration not found")
)

// DiscoveryError reports a malformed migration unit or an unloadable source.
type DiscoveryError struct {
	Scope     Scope
	Source    string
	Migration string
	Err       error
}

// Error returns the scope, source and migration context of the failure.
func (e *DiscoveryError) Error() string {
	msg := "discover " + e.Scope.String()
	if e.Source != "" {
		msg += ": " + e.Source
	}
	if e.Migration != "" {
		msg += ": migration " + e.Migration
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Phase names the lifecycle step a migration failed in.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseEnacted Phase = "enacted"
	PhaseEnact   Phase = "enact"
	PhaseRecord  Phase = "record"
	PhaseVerify  Phase = "verify"
)

// MigrationError is raised when a migration's own logic fails. It carries
// the originating migration's name for diagnosis.
type MigrationError struct {
	Migration string
	Phase     Phase
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s: %s: %v", e.Migration, e.Phase, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// PhaseOf returns the phase of the first MigrationError in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Phase, true
	}
	return "", false
}
