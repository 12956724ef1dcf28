package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/model"
)

func (d *DB) RecordViolation(ctx context.Context, v *model.SecurityViolation) error {
	details, err := json.Marshal(v.Details)
	if err != nil {
		return fmt.Errorf("marshal violation details: %w", err)
	}
	const q = `INSERT INTO violations (id, session_id, tenant_id, type, severity, description, details, source_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, q,
		v.ID, v.SessionID, v.TenantID, string(v.Type), string(v.Severity),
		v.Description, string(details), v.SourceIP, toUnix(v.CreatedAt)); err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}

	count, err := d.SessionViolationCount(ctx, v.SessionID)
	if err != nil {
		return err
	}
	if level := d.thresholds.Level(count); level != model.EscalationNone {
		d.logger.Warn("session violation escalation",
			zap.String("session_id", v.SessionID),
			zap.String("tenant_id", v.TenantID),
			zap.Int("violations", count),
			zap.String("escalation", string(level)))
	}
	return nil
}

func (d *DB) SessionViolationCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}

// Escalation returns the session's violation count and the escalation step
// it has reached.
func (d *DB) Escalation(ctx context.Context, sessionID string) (model.Escalation, int, error) {
	n, err := d.SessionViolationCount(ctx, sessionID)
	if err != nil {
		return model.EscalationNone, 0, err
	}
	return d.thresholds.Level(n), n, nil
}

// Violations returns a session's violations, oldest first.
func (d *DB) Violations(ctx context.Context, sessionID string) ([]model.SecurityViolation, error) {
	const q = `SELECT id, session_id, tenant_id, type, severity, description, details, source_ip, created_at
		FROM violations WHERE session_id = ? ORDER BY created_at, id`
	rows, err := d.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select violations: %w", err)
	}
	defer rows.Close()

	var out []model.SecurityViolation
	for rows.Next() {
		var v model.SecurityViolation
		var vtype, severity, details string
		var created int64
		if err := rows.Scan(&v.ID, &v.SessionID, &v.TenantID, &vtype, &severity,
			&v.Description, &details, &v.SourceIP, &created); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Type = model.ViolationType(vtype)
		v.Severity = model.Severity(severity)
		v.CreatedAt = fromUnix(created)
		if err := json.Unmarshal([]byte(details), &v.Details); err != nil {
			return nil, fmt.Errorf("decode violation details: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
