package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/podguard/internal/audit"
	"github.com/ppiankov/podguard/internal/model"
)

func (d *DB) AppendEvent(ctx context.Context, e *model.ContainmentEvent) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	const q = `INSERT INTO events (id, ts, session_id, tenant_id, user_id, channel, event_type, category,
		allowed, action, reason, rule, violation_type, source_ip, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, q,
		e.ID, toUnix(e.Timestamp), e.SessionID, e.TenantID, e.UserID, string(e.Channel),
		e.EventType, string(e.Category), e.Allowed, string(e.Action), e.Reason, e.Rule,
		string(e.ViolationType), e.SourceIP, string(details)); err != nil {
		return fmt.Errorf("insert containment event: %w", err)
	}
	return nil
}

// Events returns a session's containment events in insertion order.
func (d *DB) Events(ctx context.Context, sessionID string) ([]model.ContainmentEvent, error) {
	const q = `SELECT id, ts, session_id, tenant_id, user_id, channel, event_type, category,
		allowed, action, reason, rule, violation_type, source_ip, details
		FROM events WHERE session_id = ? ORDER BY seq`
	rows, err := d.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var out []model.ContainmentEvent
	for rows.Next() {
		var e model.ContainmentEvent
		var ts int64
		var channel, category, action, vtype, details string
		if err := rows.Scan(&e.ID, &ts, &e.SessionID, &e.TenantID, &e.UserID, &channel,
			&e.EventType, &category, &e.Allowed, &action, &e.Reason, &e.Rule, &vtype,
			&e.SourceIP, &details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = fromUnix(ts)
		e.Channel = model.Channel(channel)
		e.Category = model.EventCategory(category)
		e.Action = model.TransferAction(action)
		e.ViolationType = model.ViolationType(vtype)
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("decode event details: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) AppendAttempt(ctx context.Context, a *model.DataTransferAttempt) error {
	types, err := json.Marshal(a.SensitiveDataTypes)
	if err != nil {
		return fmt.Errorf("marshal sensitive data types: %w", err)
	}
	const q = `INSERT INTO attempts (id, session_id, tenant_id, user_id, transfer_type, direction, action,
		reason, size, file_name, content_type, content_hash, sensitive_types, source_application,
		target_application, approval_request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, q,
		a.ID, a.SessionID, a.TenantID, a.UserID, string(a.TransferType), string(a.Direction),
		string(a.Action), a.Reason, a.Size, a.FileName, a.ContentType, a.ContentHash,
		string(types), a.SourceApplication, a.TargetApplication, a.ApprovalRequestID,
		toUnix(a.CreatedAt)); err != nil {
		return fmt.Errorf("insert transfer attempt: %w", err)
	}
	return nil
}

func (d *DB) Attempts(ctx context.Context, sessionID string, f model.AttemptFilter) (model.AttemptPage, error) {
	f = audit.NormalizeFilter(f)

	where := []string{"session_id = ?"}
	args := []any{sessionID}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.TransferType != "" {
		where = append(where, "transfer_type = ?")
		args = append(args, string(f.TransferType))
	}
	cond := strings.Join(where, " AND ")

	page := model.AttemptPage{Attempts: []model.DataTransferAttempt{}, Limit: f.Limit, Offset: f.Offset}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return model.AttemptPage{}, fmt.Errorf("count transfer attempts: %w", err)
	}

	q := `SELECT id, session_id, tenant_id, user_id, transfer_type, direction, action, reason, size,
		file_name, content_type, content_hash, sensitive_types, source_application, target_application,
		approval_request_id, created_at
		FROM attempts WHERE ` + cond + ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	rows, err := d.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return model.AttemptPage{}, fmt.Errorf("select transfer attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.DataTransferAttempt
		var ttype, dir, action, types string
		var created int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.TenantID, &a.UserID, &ttype, &dir, &action,
			&a.Reason, &a.Size, &a.FileName, &a.ContentType, &a.ContentHash, &types,
			&a.SourceApplication, &a.TargetApplication, &a.ApprovalRequestID, &created); err != nil {
			return model.AttemptPage{}, fmt.Errorf("scan transfer attempt: %w", err)
		}
		a.TransferType = model.TransferType(ttype)
		a.Direction = model.Direction(dir)
		a.Action = model.TransferAction(action)
		a.CreatedAt = fromUnix(created)
		if err := json.Unmarshal([]byte(types), &a.SensitiveDataTypes); err != nil {
			return model.AttemptPage{}, fmt.Errorf("decode sensitive data types: %w", err)
		}
		page.Attempts = append(page.Attempts, a)
	}
	if err := rows.Err(); err != nil {
		return model.AttemptPage{}, err
	}
	return page, nil
}
