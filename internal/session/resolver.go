package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/cache"
	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/policy"
)

// ContextTTL is how long a resolved context is reused before the session,
// policy and violation count are read again.
const ContextTTL = 5 * time.Minute

// ViolationCounter reports how many violations a session has accumulated.
type ViolationCounter interface {
	SessionViolationCount(ctx context.Context, sessionID string) (int, error)
}

// Resolver builds and caches SessionSecurityContext values.
type Resolver struct {
	sessions   Source
	policies   policy.Source
	violations ViolationCounter
	cache      cache.Cache[model.SessionSecurityContext]
	clock      clock.Clock
	ttl        time.Duration
	logger     *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTTL overrides ContextTTL.
func WithTTL(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithClock sets the clock used for LastActivity and session expiry.
func WithClock(c clock.Clock) ResolverOption {
	return func(r *Resolver) { r.clock = c }
}

// NewResolver creates a Resolver. violations may be nil, in which case
// counts start at zero.
func NewResolver(sessions Source, policies policy.Source, violations ViolationCounter, c cache.Cache[model.SessionSecurityContext], opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sessions:   sessions,
		policies:   policies,
		violations: violations,
		cache:      c,
		clock:      clock.Real(),
		ttl:        ContextTTL,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Context returns the security context for sessionID, loading it on a cache
// miss. LastActivity is the time of this call. It returns ErrSessionNotFound
// or ErrPolicyNotFound when the session cannot be resolved; any other error
// is an infrastructure failure.
func (r *Resolver) Context(ctx context.Context, sessionID string) (*model.SessionSecurityContext, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	sc, err := cache.GetOrLoad(ctx, r.cache, sessionID, r.ttl, func(ctx context.Context) (model.SessionSecurityContext, error) {
		return r.load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	sc.LastActivity = r.clock.Now()
	return &sc, nil
}

func (r *Resolver) load(ctx context.Context, sessionID string) (model.SessionSecurityContext, error) {
	s, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return model.SessionSecurityContext{}, err
		}
		return model.SessionSecurityContext{}, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	now := r.clock.Now()
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return model.SessionSecurityContext{}, fmt.Errorf("%w: %q expired", ErrSessionNotFound, sessionID)
	}

	p, err := r.policies.GetPolicy(ctx, s.PolicyID)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return model.SessionSecurityContext{}, fmt.Errorf("%w: %v", ErrPolicyNotFound, err)
		}
		return model.SessionSecurityContext{}, fmt.Errorf("load policy %q: %w", s.PolicyID, err)
	}

	count := 0
	if r.violations != nil {
		count, err = r.violations.SessionViolationCount(ctx, sessionID)
		if err != nil {
			return model.SessionSecurityContext{}, fmt.Errorf("count violations for %q: %w", sessionID, err)
		}
	}

	r.logger.Debug("session context loaded",
		zap.String("session_id", sessionID),
		zap.String("policy_id", p.ID),
		zap.Int("violation_count", count))

	return model.SessionSecurityContext{
		SessionID:      s.ID,
		TenantID:       s.TenantID,
		UserID:         s.UserID,
		PodID:          s.PodID,
		Policy:         p,
		ViolationCount: count,
		LastActivity:   now,
		SourceIP:       s.SourceIP,
	}, nil
}

// Update applies fn to the session's context, stamps LastActivity and
// restarts the cache TTL. The session's own expiry is untouched.
func (r *Resolver) Update(ctx context.Context, sessionID string, fn func(*model.SessionSecurityContext)) (*model.SessionSecurityContext, error) {
	sc, err := r.Context(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		fn(sc)
	}
	sc.SessionID = sessionID
	sc.LastActivity = r.clock.Now()
	if err := r.cache.Set(ctx, sessionID, *sc, r.ttl); err != nil {
		return nil, fmt.Errorf("update session context %q: %w", sessionID, err)
	}
	return sc, nil
}

// Invalidate drops the cached context so the next read reloads it.
func (r *Resolver) Invalidate(ctx context.Context, sessionID string) error {
	return r.cache.Delete(ctx, sessionID)
}
