// Package alert publishes approval notifications, security alerts and
// operational alerts to Kafka, NATS and webhooks.
package alert

import (
	"time"

	"github.com/ppiankov/podguard/internal/model"
)

// Topic is a logical notification channel.
type Topic string

const (
	TopicApprovals  Topic = "approvals"
	TopicSecurity   Topic = "security-alerts"
	TopicOperations Topic = "operations"
)

// Event types.
const (
	EventTransferRequested   = "file_transfer.requested"
	EventTransferApproved    = "file_transfer.approved"
	EventTransferRejected    = "file_transfer.rejected"
	EventTransferCancelled   = "file_transfer.cancelled"
	EventTransferCompleted   = "file_transfer.completed"
	EventTransferExpired     = "file_transfer.expired"
	EventDataTransferBlocked = "DATA_TRANSFER_BLOCKED"
	EventAuditWriteFailed    = "AUDIT_WRITE_FAILED"
)

// Event is the payload handed to every publisher.
type Event struct {
	ID        string            `json:"id"`
	Topic     Topic             `json:"topic"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	TenantID  string            `json:"tenant_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Severity  model.Severity    `json:"severity,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // event types or topics; empty matches all
	Headers map[string]string `yaml:"headers" json:"headers"`
}
