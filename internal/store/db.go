// Package store persists violations, containment events, transfer attempts
// and sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/violation"
)

const schema = `
CREATE TABLE IF NOT EXISTS violations (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	type        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	description TEXT NOT NULL,
	details     TEXT NOT NULL,
	source_ip   TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session_id);

CREATE TABLE IF NOT EXISTS events (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	ts             INTEGER NOT NULL,
	session_id     TEXT NOT NULL,
	tenant_id      TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	channel        TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	category       TEXT NOT NULL,
	allowed        INTEGER NOT NULL,
	action         TEXT NOT NULL,
	reason         TEXT NOT NULL,
	rule           TEXT NOT NULL DEFAULT '',
	violation_type TEXT NOT NULL DEFAULT '',
	source_ip      TEXT NOT NULL DEFAULT '',
	details        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

CREATE TABLE IF NOT EXISTS attempts (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	id                  TEXT NOT NULL UNIQUE,
	session_id          TEXT NOT NULL,
	tenant_id           TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	transfer_type       TEXT NOT NULL,
	direction           TEXT NOT NULL,
	action              TEXT NOT NULL,
	reason              TEXT NOT NULL,
	size                INTEGER NOT NULL,
	file_name           TEXT NOT NULL DEFAULT '',
	content_type        TEXT NOT NULL DEFAULT '',
	content_hash        TEXT NOT NULL DEFAULT '',
	sensitive_types     TEXT NOT NULL,
	source_application  TEXT NOT NULL DEFAULT '',
	target_application  TEXT NOT NULL DEFAULT '',
	approval_request_id TEXT NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id, created_at);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	pod_id     TEXT NOT NULL DEFAULT '',
	policy_id  TEXT NOT NULL DEFAULT '',
	source_ip  TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	ended_at   INTEGER NOT NULL DEFAULT 0
);
`

// DB is the SQLite-backed store. It implements violation.Sink, audit.Store
// and session.Store.
type DB struct {
	db         *sql.DB
	clock      clock.Clock
	thresholds violation.Thresholds
	logger     *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithClock sets the clock used for session end and expiry checks.
func WithClock(c clock.Clock) Option { return func(d *DB) { d.clock = c } }

// WithThresholds overrides the escalation ladder.
func WithThresholds(t violation.Thresholds) Option { return func(d *DB) { d.thresholds = t } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(d *DB) { d.logger = l } }

// DefaultPath returns the default database location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "podguard.db")
	}
	return filepath.Join(home, ".podguard", "podguard.db")
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &DB{
		db:         sqlDB,
		clock:      clock.Real(),
		thresholds: violation.DefaultThresholds(),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
