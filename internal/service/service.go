// Package service assembles a containment engine and its collaborators
// from the service configuration. Both the gRPC server and the MCP server
// run on top of a Runtime.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/audit"
	"github.com/ppiankov/podguard/internal/cache"
	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/containment"
	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/fingerprint"
	"github.com/ppiankov/podguard/internal/malware"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/policy"
	"github.com/ppiankov/podguard/internal/ratelimit"
	"github.com/ppiankov/podguard/internal/scan"
	"github.com/ppiankov/podguard/internal/session"
	"github.com/ppiankov/podguard/internal/store"
	"github.com/ppiankov/podguard/internal/violation"
)

// Runtime owns a configured Engine and everything it needs.
type Runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock

	engine     *containment.Engine
	policies   *policy.Store
	denylist   *denylist.Denylist
	scanner    *scan.Scanner
	malware    *malware.SignatureScanner
	dispatcher *alert.Dispatcher

	reloadMu sync.Mutex
	closers  []io.Closer
}

// Option customizes New.
type Option func(*Runtime)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithClock sets the clock used by caches, approvals and timestamps.
func WithClock(c clock.Clock) Option { return func(r *Runtime) { r.clock = c } }

// New loads rule files, opens storage and publishers, and builds the
// engine. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	r := &Runtime{cfg: cfg, logger: zap.NewNop(), clock: clock.Real()}
	for _, o := range opts {
		o(r)
	}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if err := r.loadRules(); err != nil {
		return nil, err
	}

	hasher, err := fingerprint.New(cfg.Hash)
	if err != nil {
		return nil, err
	}

	pub, err := r.openPublishers()
	if err != nil {
		return nil, err
	}
	r.dispatcher = alert.NewDispatcher(pub, "alerts", cfg.Publishers.QueueSize, r.logger)

	var (
		sessions   session.Store
		violations violation.Sink
		auditStore audit.Store
	)
	if cfg.Storage.DatabasePath != "" {
		db, err := store.Open(ctx, cfg.Storage.DatabasePath,
			store.WithClock(r.clock),
			store.WithThresholds(cfg.Escalation),
			store.WithLogger(r.logger))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, db)
		sessions, violations, auditStore = db, db, db
	} else {
		r.logger.Warn("no database configured, containment records are kept in memory")
		sessions, violations, auditStore = session.NewRegistry(), violation.NewMemory(), audit.NewMemory()
	}

	if cfg.Storage.AuditLogPath != "" {
		log, err := audit.Open(cfg.Storage.AuditLogPath, audit.WithHasher(hasher), audit.WithLogClock(r.clock))
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		r.closers = append(r.closers, log)
		auditStore = audit.NewMirror(auditStore, log, r.policies.Hash)
	}

	dir := cfg.Storage.ApprovalDir
	if dir == "" {
		dir = approval.DefaultDir()
	}
	approvals, err := approval.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open approval store: %w", err)
	}
	workflow := approval.NewWorkflow(approvals, r.dispatcher,
		approval.WithClock(r.clock),
		approval.WithExpiry(cfg.Approvals.Expiry),
		approval.WithLogger(r.logger))

	resolver := session.NewResolver(sessions, r.policies, violations,
		cache.NewMemory[model.SessionSecurityContext]("session", r.clock),
		session.WithTTL(cfg.Cache.SessionTTL),
		session.WithClock(r.clock),
		session.WithLogger(r.logger))

	dlp := policy.NewCachedDLP(cfg.DLPSource(),
		cache.NewMemory[policy.DLPConfig]("dlp", r.clock), cfg.Cache.DLPTTL)

	r.engine, err = containment.New(containment.Config{
		Resolver:   resolver,
		Sessions:   sessions,
		Violations: violations,
		Audit:      auditStore,
		Approvals:  workflow,
		DLP:        dlp,
		Scanner:    r.scanner,
		Malware:    r.malware,
		Hasher:     hasher,
		Denylist:   r.denylist,
		Limiter:    ratelimit.New(cfg.RateLimits, r.clock),
		Alerts:     r.dispatcher,
		Clock:      r.clock,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Engine returns the containment engine.
func (r *Runtime) Engine() *containment.Engine { return r.engine }

// PolicyHash returns the hash of the loaded policies file.
func (r *Runtime) PolicyHash() string { return r.policies.Hash() }

// PolicyIDs returns the loaded policy ids.
func (r *Runtime) PolicyIDs() []string { return r.policies.IDs() }

// WatchPaths returns the rule files hot reload should follow.
func (r *Runtime) WatchPaths() []string {
	f := r.cfg.Files
	return []string{f.Policies, f.Denylist, f.Patterns, f.Signatures}
}

func (r *Runtime) loadRules() error {
	f := r.cfg.Files

	pc, hash, err := policy.LoadConfigWithHash(f.Policies)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	r.policies = policy.NewStore(pc, hash)

	r.denylist, err = denylist.Load(f.Denylist)
	if err != nil {
		return fmt.Errorf("load denylist: %w", err)
	}

	patterns, err := loadPatterns(f.Patterns)
	if err != nil {
		return err
	}
	r.scanner = scan.New(patterns...)

	sigs, err := loadSignatures(f.Signatures)
	if err != nil {
		return err
	}
	r.malware = malware.NewSignatureScanner(r.clock, sigs...)
	return nil
}

// Reload re-reads every rule file and swaps the results in. Nothing is
// swapped unless all files parse. Cached session contexts keep their old
// policy until the session TTL passes.
func (r *Runtime) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	f := r.cfg.Files

	pc, hash, err := policy.LoadConfigWithHash(f.Policies)
	if err != nil {
		return fmt.Errorf("reload policies: %w", err)
	}
	dl, err := denylist.Load(f.Denylist)
	if err != nil {
		return fmt.Errorf("reload denylist: %w", err)
	}
	patterns, err := loadPatterns(f.Patterns)
	if err != nil {
		return err
	}
	sigs, err := loadSignatures(f.Signatures)
	if err != nil {
		return err
	}

	r.policies.Replace(pc, hash)
	r.denylist.Replace(dl)
	r.scanner.Reload(patterns)
	r.malware.Reload(sigs)

	r.logger.Info("rules reloaded",
		zap.String("policy_hash", hash),
		zap.Strings("policies", r.policies.IDs()),
		zap.Int("extra_patterns", len(patterns)),
		zap.Int("extra_signatures", len(sigs)))
	return nil
}

// Close flushes queued notifications and closes storage and publishers.
func (r *Runtime) Close() error {
	if r.dispatcher != nil {
		r.dispatcher.Close()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) openPublishers() (alert.Publisher, error) {
	pc := r.cfg.Publishers
	var multi alert.Multi

	if len(pc.Webhooks) > 0 {
		multi = append(multi, alert.NewWebhook(pc.Webhooks))
	}
	if pc.Kafka != nil {
		k, err := alert.NewKafka(*pc.Kafka, r.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		r.closers = append(r.closers, k)
		multi = append(multi, k)
	}
	if pc.NATS != nil {
		n, err := alert.NewNATS(*pc.NATS)
		if err != nil {
			return nil, fmt.Errorf("nats publisher: %w", err)
		}
		r.closers = append(r.closers, n)
		multi = append(multi, n)
	}

	if len(multi) == 0 {
		return alert.Nop{}, nil
	}
	return multi, nil
}

func loadPatterns(path string) ([]scan.Pattern, error) {
	cfg, err := scan.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	patterns, err := scan.CompilePatterns(cfg)
	if err != nil {
		return nil, fmt.Errorf("scanner patterns: %w", err)
	}
	return patterns, nil
}

func loadSignatures(path string) ([]malware.Signature, error) {
	cfg, err := malware.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	sigs, err := malware.CompileSignatures(cfg)
	if err != nil {
		return nil, fmt.Errorf("malware signatures: %w", err)
	}
	return sigs, nil
}
