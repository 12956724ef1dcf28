// Package session resolves the security context a containment decision is
// made against: the session, its policy and its violation count.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ppiankov/podguard/internal/model"
)

var (
	// ErrSessionNotFound is returned when the session is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPolicyNotFound is returned when the session's policy cannot be resolved.
	ErrPolicyNotFound = errors.New("security policy not found")
)

// Source looks up session records.
type Source interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// Store is a Source the session gateway can write to.
type Store interface {
	Source
	Register(ctx context.Context, s *model.Session) error
	End(ctx context.Context, id string) error
}

// Registry is an in-memory Store fed by the session gateway.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]model.Session)}
}

// Register adds or replaces a session.
func (r *Registry) Register(_ context.Context, s *model.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("register session: id is required")
	}
	if s.TenantID == "" {
		return fmt.Errorf("register session %q: tenant_id is required", s.ID)
	}
	r.mu.Lock()
	r.sessions[s.ID] = *s
	r.mu.Unlock()
	return nil
}

// End removes a session.
func (r *Registry) End(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// GetSession returns a copy of the session with id.
func (r *Registry) GetSession(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return &s, nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
