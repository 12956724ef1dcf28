package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/session"
)

// Register adds or replaces a session.
func (d *DB) Register(ctx context.Context, s *model.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("register session: id is required")
	}
	if s.TenantID == "" {
		return fmt.Errorf("register session %q: tenant_id is required", s.ID)
	}
	started := s.StartedAt
	if started.IsZero() {
		started = d.clock.Now()
	}
	const q = `INSERT INTO sessions (id, tenant_id, user_id, pod_id, policy_id, source_ip, started_at, expires_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, user_id = excluded.user_id, pod_id = excluded.pod_id,
			policy_id = excluded.policy_id, source_ip = excluded.source_ip,
			started_at = excluded.started_at, expires_at = excluded.expires_at, ended_at = 0`
	if _, err := d.db.ExecContext(ctx, q, s.ID, s.TenantID, s.UserID, s.PodID, s.PolicyID,
		s.SourceIP, toUnix(started), toUnix(s.ExpiresAt)); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// End marks a session as ended. Ended sessions no longer resolve.
func (d *DB) End(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at = 0`,
		toUnix(d.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", session.ErrSessionNotFound, id)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	const q = `SELECT id, tenant_id, user_id, pod_id, policy_id, source_ip, started_at, expires_at
		FROM sessions WHERE id = ? AND ended_at = 0`
	var s model.Session
	var started, expires int64
	err := d.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.TenantID, &s.UserID, &s.PodID,
		&s.PolicyID, &s.SourceIP, &started, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", session.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	s.StartedAt = fromUnix(started)
	s.ExpiresAt = fromUnix(expires)
	return &s, nil
}
