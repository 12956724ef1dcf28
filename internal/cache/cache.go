// Package cache provides a read-through key-value cache with per-key TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/metrics"
)

// Cache is a key-value store with per-key expiry. Implementations must be
// safe for concurrent use; concurrent Sets for one key are last-write-wins.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on Get
// and by Sweep.
type Memory[V any] struct {
	name    string
	clock   clock.Clock
	mu      sync.RWMutex
	entries map[string]entry[V]
}

// NewMemory creates an in-process cache. The name labels cache metrics.
func NewMemory[V any](name string, clk clock.Clock) *Memory[V] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory[V]{
		name:    name,
		clock:   clk,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the cached value for key if present and not expired.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && m.clock.Now().Before(e.expiresAt) {
		metrics.CacheLookups.WithLabelValues(m.name, "hit").Inc()
		return e.value, true, nil
	}

	if ok {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, still := m.entries[key]; still && !m.clock.Now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}

	metrics.CacheLookups.WithLabelValues(m.name, "miss").Inc()
	var zero V
	return zero, false, nil
}

// Set stores value under key until ttl elapses.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, expiresAt: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep removes all expired entries and returns how many were dropped.
func (m *Memory[V]) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// GetOrLoad returns the cached value for key or calls load on a miss and
// caches its result for ttl. Load errors are returned and nothing is cached.
func GetOrLoad[V any](ctx context.Context, c Cache[V], key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	if v, ok, err := c.Get(ctx, key); err != nil {
		var zero V
		return zero, err
	} else if ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return v, err
	}
	return v, nil
}
