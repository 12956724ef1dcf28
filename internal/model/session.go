package model

import "time"

// Session is the session record resolved from the session source.
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	TenantID  string    `json:"tenant_id" yaml:"tenant_id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	PodID     string    `json:"pod_id,omitempty" yaml:"pod_id,omitempty"`
	PolicyID  string    `json:"policy_id" yaml:"policy_id"`
	SourceIP  string    `json:"source_ip,omitempty" yaml:"source_ip,omitempty"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// SessionSecurityContext binds a running session to its policy. It is a
// cached projection and is never persisted.
type SessionSecurityContext struct {
	SessionID      string             `json:"session_id"`
	TenantID       string             `json:"tenant_id"`
	UserID         string             `json:"user_id"`
	PodID          string             `json:"pod_id,omitempty"`
	Policy         *PodSecurityPolicy `json:"policy"`
	ViolationCount int                `json:"violation_count"`
	LastActivity   time.Time          `json:"last_activity"`
	SourceIP       string             `json:"source_ip,omitempty"`
}

// FileTransferStatus is the state of an approval-gated file transfer.
type FileTransferStatus string

const (
	TransferPending   FileTransferStatus = "PENDING"
	TransferApproved  FileTransferStatus = "APPROVED"
	TransferRejected  FileTransferStatus = "REJECTED"
	TransferExpired   FileTransferStatus = "EXPIRED"
	TransferCancelled FileTransferStatus = "CANCELLED"
	TransferCompleted FileTransferStatus = "COMPLETED"
)

// Terminal reports whether no further transition is possible.
func (s FileTransferStatus) Terminal() bool {
	switch s {
	case TransferRejected, TransferExpired, TransferCancelled, TransferCompleted:
		return true
	}
	return false
}

// FileTransferRequest is a transfer held for human approval.
type FileTransferRequest struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	TenantID        string             `json:"tenant_id"`
	UserID          string             `json:"user_id"`
	Direction       Direction          `json:"direction"`
	FileName        string             `json:"file_name"`
	FileType        string             `json:"file_type,omitempty"`
	Size            int64              `json:"size"`
	ContentHash     string             `json:"content_hash,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	Status          FileTransferStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	ApprovedBy      string             `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time         `json:"approved_at,omitempty"`
	ApprovalNote    string             `json:"approval_note,omitempty"`
	RejectedBy      string             `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time         `json:"rejected_at,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	CancelledBy     string             `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// SensitiveFinding is one catalog pattern that matched scanned content.
type SensitiveFinding struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
}

// ScanResult is the outcome of a sensitive-data scan.
type ScanResult struct {
	Found    bool               `json:"found"`
	Patterns []SensitiveFinding `json:"patterns"`
}

// HighestSeverity returns the most severe finding, LOW when none.
func (r ScanResult) HighestSeverity() Severity {
	best := SeverityLow
	for _, p := range r.Patterns {
		if SeverityRank[p.Severity] > SeverityRank[best] {
			best = p.Severity
		}
	}
	return best
}

// AtOrAbove returns findings whose severity is at least min.
func (r ScanResult) AtOrAbove(min Severity) []SensitiveFinding {
	var out []SensitiveFinding
	for _, p := range r.Patterns {
		if p.Severity.AtLeast(min) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories of the findings in order.
func (r ScanResult) Categories() []string {
	return categoriesOf(r.Patterns)
}

func categoriesOf(findings []SensitiveFinding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range findings {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}

// CategoriesOf returns the distinct categories of findings in order.
func CategoriesOf(findings []SensitiveFinding) []string {
	return categoriesOf(findings)
}

// MalwareScanResult is the outcome of a malware scan.
type MalwareScanResult struct {
	Clean      bool      `json:"clean"`
	ThreatName string    `json:"threat_name,omitempty"`
	ThreatType string    `json:"threat_type,omitempty"`
	Engine     string    `json:"engine"`
	ScannedAt  time.Time `json:"scanned_at"`
}
