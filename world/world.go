// Package world provides a simulated deployment environment that migrations
// run against. A World has a network/deployment identity, a signer list and
// key/value state kept in a pluggable backend.
package world

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/aatuh/scenario"
	"github.com/google/uuid"
)

const (
	deployPrefix   = "deploy:"
	contractPrefix = "contract:"
	nonceKey       = "nonce"
)

// World implements scenario.DeploymentManager over a Store.
type World struct {
	network    string
	deployment string
	namespace  string
	proposer   scenario.Actor
	logger     *slog.Logger

	mu      sync.RWMutex
	signers []scenario.Actor
	// deployMu serializes nonce allocation.
	deployMu sync.Mutex
	backend  Backend
	store    Store
}

// Option configures a World.
type Option func(*World)

// WithSigners sets the initial signer list.
func WithSigners(signers ...scenario.Actor) Option {
	return func(w *World) { w.signers = slices.Clone(signers) }
}

// WithProposer sets the actor migrations are submitted by.
func WithProposer(a scenario.Actor) Option {
	return func(w *World) { w.proposer = a }
}

// WithNamespace isolates the world's state under ns instead of
// network/deployment.
func WithNamespace(ns string) Option {
	return func(w *World) { w.namespace = ns }
}

// WithLogger sets the logger for the world.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = l }
}

// New creates a world for network/deployment whose state lives in backend.
func New(network, deployment string, backend Backend, opts ...Option) *World {
	w := &World{
		network:    network,
		deployment: deployment,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.namespace == "" {
		w.namespace = network + "/" + deployment
	}
	w.backend = backend
	w.store = backend.Store(w.namespace)
	return w
}

// Fork returns a world with the same identity, signers and proposer whose
// state is a copy of w's, isolated under namespace in the same backend.
func (w *World) Fork(ctx context.Context, namespace string) (*World, error) {
	snap, err := w.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("world: snapshot %s: %w", w.namespace, err)
	}
	fork := New(w.network, w.deployment, w.backend,
		WithSigners(w.Signers()...),
		WithProposer(w.proposer),
		WithNamespace(namespace),
		WithLogger(w.logger),
	)
	for k, v := range snap {
		if err := fork.store.Set(ctx, k, v); err != nil {
			return nil, fmt.Errorf("world: copy %s into %s: %w", k, namespace, err)
		}
	}
	w.logger.Debug("forked world", "from", w.namespace, "to", namespace, "keys", len(snap))
	return fork, nil
}

// Factory returns a function creating one forked world per run. base must be
// a *World; any other environment is rejected.
func Factory() func(ctx context.Context, base scenario.DeploymentManager, runID string) (scenario.DeploymentManager, error) {
	return func(ctx context.Context, base scenario.DeploymentManager, runID string) (scenario.DeploymentManager, error) {
		w, ok := base.(*World)
		if !ok {
			return nil, fmt.Errorf("world: cannot fork %T", base)
		}
		return w.Fork(ctx, w.namespace+"#"+runID)
	}
}

// Discard drops the world's state, and any ledger rows kept for its
// namespace, from the backend. The world must not be used afterwards.
func (w *World) Discard(ctx context.Context) error {
	if err := w.backend.Drop(ctx, w.namespace); err != nil {
		return err
	}
	w.logger.Debug("discarded world", "namespace", w.namespace)
	return nil
}

// Network returns the network the world simulates.
func (w *World) Network() string { return w.network }

// Deployment returns the deployment the world simulates.
func (w *World) Deployment() string { return w.deployment }

// Namespace returns the key the world's state is stored under.
func (w *World) Namespace() string { return w.namespace }

// Signers returns a copy of the signer list.
func (w *World) Signers() []scenario.Actor {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.signers)
}

// SetSigners replaces the signer list with a copy of signers.
func (w *World) SetSigners(signers []scenario.Actor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signers = slices.Clone(signers)
}

// Proposer returns the configured proposer. An empty actor means migrations
// are submitted by the current default signer.
func (w *World) Proposer(context.Context) (scenario.Actor, error) {
	return w.proposer, nil
}

// DefaultSigner returns the first signer, if any.
func (w *World) DefaultSigner() (scenario.Actor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.signers) == 0 {
		return "", false
	}
	return w.signers[0], true
}

// Get returns the value of key and whether it is set.
func (w *World) Get(ctx context.Context, key string) (string, bool, error) {
	return w.store.Get(ctx, key)
}

// Set stores value under key.
func (w *World) Set(ctx context.Context, key, value string) error {
	return w.store.Set(ctx, key, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (w *World) Delete(ctx context.Context, key string) error {
	return w.store.Delete(ctx, key)
}

// Snapshot returns a copy of the whole state.
func (w *World) Snapshot(ctx context.Context) (map[string]string, error) {
	return w.store.Snapshot(ctx)
}

// Deploy simulates deploying contract under alias and returns its address.
// Addresses are derived from the namespace, alias and a per-world nonce, so
// replaying the same sequence of deployments yields the same addresses.
func (w *World) Deploy(ctx context.Context, alias, contract string) (string, error) {
	w.deployMu.Lock()
	defer w.deployMu.Unlock()

	nonce := 0
	if raw, ok, err := w.store.Get(ctx, nonceKey); err != nil {
		return "", err
	} else if ok {
		if nonce, err = strconv.Atoi(raw); err != nil {
			return "", fmt.Errorf("world: corrupt nonce %q: %w", raw, err)
		}
	}

	addr := address(w.namespace, alias, nonce)
	if err := w.store.Set(ctx, nonceKey, strconv.Itoa(nonce+1)); err != nil {
		return "", err
	}
	if err := w.store.Set(ctx, deployPrefix+alias, addr); err != nil {
		return "", err
	}
	if err := w.store.Set(ctx, contractPrefix+addr, contract); err != nil {
		return "", err
	}
	w.logger.Debug("deployed contract", "namespace", w.namespace, "alias", alias, "contract", contract, "address", addr)
	return addr, nil
}

// Deployed returns the address last deployed under alias.
func (w *World) Deployed(ctx context.Context, alias string) (string, bool, error) {
	return w.store.Get(ctx, deployPrefix+alias)
}

func address(namespace, alias string, nonce int) string {
	seed := namespace + "/" + alias + "/" + strconv.Itoa(nonce)
	hi := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
	lo := uuid.NewSHA1(hi, []byte(seed))
	return "0x" + hex.EncodeToString(hi[:]) + hex.EncodeToString(lo[:4])
}
