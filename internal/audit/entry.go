package audit

import (
	"github.com/ppiankov/podguard/internal/model"
)

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are scalars or string slices (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	Timestamp     string   `json:"ts"`
	EventID       string   `json:"event_id"`
	SessionID     string   `json:"session_id"`
	TenantID      string   `json:"tenant_id"`
	UserID        string   `json:"user_id,omitempty"`
	Channel       string   `json:"channel"`
	EventType     string   `json:"event_type"`
	Category      string   `json:"category"`
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"`
	Reason        string   `json:"reason"`
	Rule          string   `json:"rule,omitempty"`
	ViolationType string   `json:"violation_type,omitempty"`
	ContentHash   string   `json:"content_hash,omitempty"`
	DataTypes     []string `json:"data_types,omitempty"`
	SourceIP      string   `json:"source_ip,omitempty"`
	PolicyHash    string   `json:"policy_hash"`
	PrevHash      string   `json:"prev_hash"`
}

// EntryFromEvent flattens a containment event into a log entry.
func EntryFromEvent(e *model.ContainmentEvent, policyHash string) AuditEntry {
	entry := AuditEntry{
		EventID:       e.ID,
		SessionID:     e.SessionID,
		TenantID:      e.TenantID,
		UserID:        e.UserID,
		Channel:       string(e.Channel),
		EventType:     e.EventType,
		Category:      string(e.Category),
		Allowed:       e.Allowed,
		Action:        string(e.Action),
		Reason:        e.Reason,
		Rule:          e.Rule,
		ViolationType: string(e.ViolationType),
		DataTypes:     e.Details.SensitiveDataTypes,
		SourceIP:      e.SourceIP,
		PolicyHash:    policyHash,
	}
	if !e.Timestamp.IsZero() {
		entry.Timestamp = e.Timestamp.UTC().Format(TimestampFormat)
	}
	switch {
	case e.Details.File != nil:
		entry.ContentHash = e.Details.File.ContentHash
	case e.Details.Clipboard != nil:
		entry.ContentHash = e.Details.Clipboard.ContentHash
	}
	return entry
}
