// Package containment decides whether data may cross a pod boundary. Each
// channel runs an ordered rule pipeline; the first rule that denies wins and
// later rules, including content scans, never run.
package containment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/audit"
	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/fingerprint"
	"github.com/ppiankov/podguard/internal/malware"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/policy"
	"github.com/ppiankov/podguard/internal/ratelimit"
	"github.com/ppiankov/podguard/internal/scan"
	"github.com/ppiankov/podguard/internal/session"
	"github.com/ppiankov/podguard/internal/violation"
)

// Config wires an Engine to its collaborators. Resolver, Violations, Audit
// and Approvals are required; everything else has a default.
type Config struct {
	Resolver   *session.Resolver
	Sessions   session.Store
	Violations violation.Sink
	Audit      audit.Store
	Approvals  *approval.Workflow

	DLP      policy.DLPSource
	Scanner  scan.ContentScanner
	Malware  malware.Scanner
	Hasher   *fingerprint.Hasher
	Denylist *denylist.Denylist
	Limiter  *ratelimit.Limiter
	Alerts   alert.Publisher
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Engine evaluates containment requests against session policies.
type Engine struct {
	resolver   *session.Resolver
	sessions   session.Store
	violations violation.Sink
	audit      audit.Store
	approvals  *approval.Workflow
	dlp        policy.DLPSource
	scanner    scan.ContentScanner
	malware    malware.Scanner
	hasher     *fingerprint.Hasher
	denylist   *denylist.Denylist
	limiter    *ratelimit.Limiter
	alerts     alert.Publisher
	clock      clock.Clock
	logger     *zap.Logger
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	var missing []error
	if cfg.Resolver == nil {
		missing = append(missing, errors.New("resolver"))
	}
	if cfg.Violations == nil {
		missing = append(missing, errors.New("violation sink"))
	}
	if cfg.Audit == nil {
		missing = append(missing, errors.New("audit store"))
	}
	if cfg.Approvals == nil {
		missing = append(missing, errors.New("approval workflow"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("containment engine: missing %w", errors.Join(missing...))
	}

	e := &Engine{
		resolver:   cfg.Resolver,
		sessions:   cfg.Sessions,
		violations: cfg.Violations,
		audit:      cfg.Audit,
		approvals:  cfg.Approvals,
		dlp:        cfg.DLP,
		scanner:    cfg.Scanner,
		malware:    cfg.Malware,
		hasher:     cfg.Hasher,
		denylist:   cfg.Denylist,
		limiter:    cfg.Limiter,
		alerts:     cfg.Alerts,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.dlp == nil {
		e.dlp = policy.StaticDLP{Default: policy.DefaultDLPConfig()}
	}
	if e.scanner == nil {
		e.scanner = scan.New()
	}
	if e.malware == nil {
		e.malware = malware.NewSignatureScanner(e.clock)
	}
	if e.hasher == nil {
		e.hasher = fingerprint.Default()
	}
	if e.alerts == nil {
		e.alerts = alert.Nop{}
	}
	return e, nil
}

// resolve loads the session context and spends one unit of the channel's
// rate budget. A nil context with a deny decision means the caller must
// stop; the error is set only for infrastructure failures.
func (e *Engine) resolve(ctx context.Context, sessionID string, ev *evaluation) (*model.SessionSecurityContext, *model.AccessDecision, error) {
	sc, err := e.resolver.Context(ctx, sessionID)
	if err == nil {
		if e.limiter == nil {
			return sc, nil, nil
		}
		r := e.limiter.Allow(sessionID, ev.channel)
		if !r.Exceeded {
			return sc, nil, nil
		}
		metrics.RateLimited.WithLabelValues(string(ev.channel)).Inc()
		ev.sc = sc
		out, recErr := e.conclude(ctx, ev, outcome{decision: model.Deny(r.Rule(), r.Reason), logOnly: true})
		return nil, &out, recErr
	}

	var d model.AccessDecision
	var resolveErr error
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		d = model.Deny("session.not_found", "Session not found")
	case errors.Is(err, session.ErrPolicyNotFound):
		d = model.Deny("policy.not_found", "Security policy not found")
	default:
		d = model.Deny("session.resolve_failed", "Security context unavailable")
		resolveErr = fmt.Errorf("resolve session %q: %w", sessionID, err)
	}
	d.ViolationType = model.ViolationUnresolvedSession

	ev.sc = &model.SessionSecurityContext{SessionID: sessionID}
	out, recErr := e.conclude(ctx, ev, outcome{decision: d, logOnly: true})
	return nil, &out, errors.Join(resolveErr, recErr)
}
