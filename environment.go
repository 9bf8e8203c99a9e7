package scenario

import (
	"context"
	"slices"
)

// Actor identifies a signer that submits transactions to the environment.
type Actor string

// DeploymentManager is the environment handle migrations act upon. It is
// passed opaquely to every action.
type DeploymentManager interface {
	Network() string
	Deployment() string
	// Signers returns the current signer list. The first entry is the
	// default signer.
	Signers() []Actor
	// SetSigners replaces the signer list.
	SetSigners(signers []Actor)
}

// Proposer is implemented by environments that can name the actor used to
// submit migrations.
type Proposer interface {
	Proposer(ctx context.Context) (Actor, error)
}

// Namespaced is implemented by environments that isolate their state under
// a namespace, e.g. one world per solution inside a shared backend.
type Namespaced interface {
	Namespace() string
}

// Scope selects a network/deployment pair.
type Scope struct {
	Network    string
	Deployment string
}

func (s Scope) String() string {
	return s.Network + "/" + s.Deployment
}

// ScopeOf returns the scope an environment belongs to.
func ScopeOf(env DeploymentManager) Scope {
	return Scope{Network: env.Network(), Deployment: env.Deployment()}
}

// NamespaceOf returns env's namespace, falling back to its scope.
func NamespaceOf(env DeploymentManager) string {
	if ns, ok := env.(Namespaced); ok && ns.Namespace() != "" {
		return ns.Namespace()
	}
	return ScopeOf(env).String()
}

// WithSigner makes actor the default signer of env while fn runs. The
// previous signer list is restored on every exit path, including panics
// and errors returned by fn.
func WithSigner(env DeploymentManager, actor Actor, fn func() error) error {
	prev := slices.Clone(env.Signers())
	env.SetSigners(append([]Actor{actor}, prev...))
	defer env.SetSigners(prev)
	return fn()
}
