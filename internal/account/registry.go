// internal/account/registry.go
package account

import (
	"context"
	"fmt"
	"sync"

	"questa-service/internal/events"
	"questa-service/internal/provider"

	"go.uber.org/zap"
)

// RegistryConfig carries the shared dependencies of all live managers plus
// per-identity factories for the notifier and navigator (hub-backed in
// production).
type RegistryConfig struct {
	Provider           provider.Identity
	Profiles           provider.ProfileStore
	Broker             *events.Broker
	NotifierFor        func(identityID string) Notifier
	NavigatorFor       func(identityID string) Navigator
	Logger             *zap.Logger
	ConfirmRedirectURL string
}

// Registry holds one live Manager per signed-in identity. A manager is
// created and restored on first authenticated contact and torn down when
// its identity signs out.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	managers map[string]*Manager
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		managers: make(map[string]*Manager),
	}
}

// Attach returns the live manager for the identity, creating, subscribing
// and restoring one when none exists yet.
func (r *Registry) Attach(ctx context.Context, identityID, accessToken string) (*Manager, error) {
	r.mu.Lock()
	if mgr, ok := r.managers[identityID]; ok {
		r.mu.Unlock()
		return mgr, nil
	}
	r.mu.Unlock()

	var nav Navigator
	if r.cfg.NavigatorFor != nil {
		nav = r.cfg.NavigatorFor(identityID)
	}

	mgr := NewManager(Config{
		Provider:           r.cfg.Provider,
		Profiles:           r.cfg.Profiles,
		Broker:             r.cfg.Broker,
		Notifier:           r.cfg.NotifierFor(identityID),
		Navigator:          nav,
		Logger:             r.cfg.Logger,
		ConfirmRedirectURL: r.cfg.ConfirmRedirectURL,
	})
	mgr.OnSignedOut = func() { r.Remove(identityID) }
	mgr.StartSubscription(identityID)

	if err := mgr.RestoreSession(ctx, accessToken); err != nil {
		mgr.Close()
		return nil, err
	}
	if mgr.State() != StateAuthenticated {
		mgr.Close()
		return nil, fmt.Errorf("no live session for identity %s", identityID)
	}

	r.mu.Lock()
	if existing, ok := r.managers[identityID]; ok {
		// Lost the race to another request; keep the first one.
		r.mu.Unlock()
		mgr.Close()
		return existing, nil
	}
	r.managers[identityID] = mgr
	r.mu.Unlock()

	return mgr, nil
}

// Get returns the live manager for the identity, if any.
func (r *Registry) Get(identityID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mgr, ok := r.managers[identityID]
	return mgr, ok
}

// Remove tears down and forgets the identity's manager.
func (r *Registry) Remove(identityID string) {
	r.mu.Lock()
	mgr, ok := r.managers[identityID]
	delete(r.managers, identityID)
	r.mu.Unlock()
	if ok {
		mgr.Close()
	}
}

// Shutdown tears down every live manager.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	managers := r.managers
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()
	for _, mgr := range managers {
		mgr.Close()
	}
}
