// Package policy loads pod security policies and tenant DLP settings.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ppiankov/podguard/internal/model"
)

// ErrNotFound is returned when no policy has the requested id.
var ErrNotFound = errors.New("policy not found")

// Source resolves a policy by id.
type Source interface {
	GetPolicy(ctx context.Context, id string) (*model.PodSecurityPolicy, error)
}

// Store is an in-memory Source backed by a PolicyConfig. Replace swaps the
// whole set atomically for hot reload.
type Store struct {
	mu        sync.RWMutex
	policies  map[string]*model.PodSecurityPolicy
	defaultID string
	hash      string
}

// NewStore creates a Store from cfg.
func NewStore(cfg *PolicyConfig, hash string) *Store {
	s := &Store{}
	s.Replace(cfg, hash)
	return s
}

// Replace installs a new policy set.
func (s *Store) Replace(cfg *PolicyConfig, hash string) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := make(map[string]*model.PodSecurityPolicy, len(cfg.Policies))
	for _, p := range cfg.Policies {
		m[p.ID] = p
	}

	s.mu.Lock()
	s.policies = m
	s.defaultID = cfg.DefaultPolicyID
	s.hash = hash
	s.mu.Unlock()
}

// GetPolicy returns a copy of the policy with id. An empty id resolves to
// the default policy when one is configured.
func (s *Store) GetPolicy(_ context.Context, id string) (*model.PodSecurityPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.defaultID
	}
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

// Hash returns the hash of the loaded policies file.
func (s *Store) Hash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hash
}

// IDs returns the loaded policy ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.policies))
	for id := range s.policies {
		ids = append(ids, id)
	}
	return ids
}
