package model

import "time"

// Severity ranks sensitive findings and violations.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityRank maps severity to a comparable integer.
var SeverityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return SeverityRank[s] >= SeverityRank[min]
}

// ViolationType identifies what a blocked action attempted.
type ViolationType string

const (
	ViolationClipboardCopy      ViolationType = "CLIPBOARD_COPY_ATTEMPT"
	ViolationClipboardPaste     ViolationType = "CLIPBOARD_PASTE_ATTEMPT"
	ViolationFileDownload       ViolationType = "FILE_DOWNLOAD_ATTEMPT"
	ViolationFileUpload         ViolationType = "FILE_UPLOAD_ATTEMPT"
	ViolationPrint              ViolationType = "PRINT_ATTEMPT"
	ViolationUSBDevice          ViolationType = "USB_DEVICE_ATTEMPT"
	ViolationWebcam             ViolationType = "WEBCAM_ACCESS_ATTEMPT"
	ViolationMicrophone         ViolationType = "MICROPHONE_ACCESS_ATTEMPT"
	ViolationScreenCapture      ViolationType = "SCREEN_CAPTURE_ATTEMPT"
	ViolationNetworkAccess      ViolationType = "NETWORK_ACCESS_ATTEMPT"
	ViolationSensitiveData      ViolationType = "SENSITIVE_DATA_DETECTED"
	ViolationMalware            ViolationType = "MALWARE_DETECTED"
	ViolationUnresolvedSession  ViolationType = "UNRESOLVED_SESSION"
	ViolationScannerUnavailable ViolationType = "SCANNER_FAILURE"
)

// ViolationSeverity is the default severity for each violation type.
var ViolationSeverity = map[ViolationType]Severity{
	ViolationClipboardCopy:      SeverityMedium,
	ViolationClipboardPaste:     SeverityLow,
	ViolationFileDownload:       SeverityHigh,
	ViolationFileUpload:         SeverityMedium,
	ViolationPrint:              SeverityMedium,
	ViolationUSBDevice:          SeverityHigh,
	ViolationWebcam:             SeverityLow,
	ViolationMicrophone:         SeverityLow,
	ViolationScreenCapture:      SeverityHigh,
	ViolationNetworkAccess:      SeverityMedium,
	ViolationSensitiveData:      SeverityCritical,
	ViolationMalware:            SeverityCritical,
	ViolationUnresolvedSession:  SeverityHigh,
	ViolationScannerUnavailable: SeverityMedium,
}

// SeverityFor returns the default severity of t, MEDIUM when unknown.
func SeverityFor(t ViolationType) Severity {
	if s, ok := ViolationSeverity[t]; ok {
		return s
	}
	return SeverityMedium
}

// DeviceDetails describes a peripheral involved in a violation.
type DeviceDetails struct {
	Kind        PeripheralKind `json:"kind"`
	DeviceID    string         `json:"device_id,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	VendorID    string         `json:"vendor_id,omitempty"`
	ProductID   string         `json:"product_id,omitempty"`
}

// NetworkDetails describes a network destination involved in a violation.
type NetworkDetails struct {
	URL      string `json:"url"`
	Hostname string `json:"hostname"`
}

// FileDetails describes a file involved in a violation.
type FileDetails struct {
	FileName    string    `json:"file_name"`
	FileType    string    `json:"file_type,omitempty"`
	Size        int64     `json:"size"`
	Direction   Direction `json:"direction"`
	ContentHash string    `json:"content_hash,omitempty"`
	ThreatName  string    `json:"threat_name,omitempty"`
}

// ClipboardDetails describes a clipboard sync involved in a violation.
type ClipboardDetails struct {
	Direction   Direction `json:"direction"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// ViolationDetails carries the structured context of a violation. At most one
// sub-object is normally set.
type ViolationDetails struct {
	Rule               string            `json:"rule,omitempty"`
	Device             *DeviceDetails    `json:"device,omitempty"`
	Network            *NetworkDetails   `json:"network,omitempty"`
	File               *FileDetails      `json:"file,omitempty"`
	Clipboard          *ClipboardDetails `json:"clipboard,omitempty"`
	SensitiveDataTypes []string          `json:"sensitive_data_types,omitempty"`
}

// SecurityViolation is a recorded denied action.
type SecurityViolation struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	TenantID    string           `json:"tenant_id"`
	Type        ViolationType    `json:"type"`
	Severity    Severity         `json:"severity"`
	Description string           `json:"description"`
	Details     ViolationDetails `json:"details"`
	SourceIP    string           `json:"source_ip,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Escalation is the enforcement step derived from a session's violation count.
type Escalation string

const (
	EscalationNone      Escalation = "NONE"
	EscalationWarn      Escalation = "WARN"
	EscalationBlock     Escalation = "BLOCK"
	EscalationTerminate Escalation = "TERMINATE_SESSION"
	EscalationSuspend   Escalation = "SUSPEND_USER"
)

// EventCategory groups containment audit events.
type EventCategory string

const (
	CategoryDataTransfer EventCategory = "DATA_TRANSFER"
	CategoryNetwork      EventCategory = "NETWORK"
	CategoryDevice       EventCategory = "DEVICE"
	CategoryScreen       EventCategory = "SCREEN"
	CategoryContent      EventCategory = "CONTENT"
	CategorySession      EventCategory = "SESSION"
)

// ContainmentEvent is one row in the containment audit log. Every decision,
// allowed or not, produces exactly one event.
type ContainmentEvent struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	SessionID     string           `json:"session_id"`
	TenantID      string           `json:"tenant_id"`
	UserID        string           `json:"user_id"`
	Channel       Channel          `json:"channel"`
	EventType     string           `json:"event_type"`
	Category      EventCategory    `json:"category"`
	Allowed       bool             `json:"allowed"`
	Action        TransferAction   `json:"action"`
	Reason        string           `json:"reason"`
	Rule          string           `json:"rule,omitempty"`
	ViolationType ViolationType    `json:"violation_type,omitempty"`
	SourceIP      string           `json:"source_ip,omitempty"`
	Details       ViolationDetails `json:"details"`
}
