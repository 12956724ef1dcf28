package model

import "time"

// Channel names a containment surface.
type Channel string

const (
	ChannelClipboard  Channel = "clipboard"
	ChannelFile       Channel = "file_transfer"
	ChannelNetwork    Channel = "network"
	ChannelPeripheral Channel = "peripheral"
	ChannelPrint      Channel = "print"
	ChannelScreen     Channel = "screen_capture"
)

// Direction is relative to the pod. Inbound data enters the pod from the
// user's device; outbound data leaves the pod.
type Direction string

const (
	Inbound  Direction = "INBOUND"
	Outbound Direction = "OUTBOUND"
)

// TransferType classifies a unified transfer request.
type TransferType string

const (
	TransferClipboardText  TransferType = "CLIPBOARD_TEXT"
	TransferClipboardImage TransferType = "CLIPBOARD_IMAGE"
	TransferClipboardFile  TransferType = "CLIPBOARD_FILE"
	TransferFileDownload   TransferType = "FILE_DOWNLOAD"
	TransferFileUpload     TransferType = "FILE_UPLOAD"
	TransferUSB            TransferType = "USB_TRANSFER"
	TransferPrint          TransferType = "PRINT"
	TransferScreenShare    TransferType = "SCREEN_SHARE"
)

// TransferAction is the recorded outcome of a transfer evaluation.
type TransferAction string

const (
	ActionAllowed          TransferAction = "ALLOWED"
	ActionBlocked          TransferAction = "BLOCKED"
	ActionLogged           TransferAction = "LOGGED"
	ActionQuarantined      TransferAction = "QUARANTINED"
	ActionOverrideApproved TransferAction = "OVERRIDE_APPROVED"
)

// AccessDecision is the result of one channel evaluation.
type AccessDecision struct {
	Allowed            bool           `json:"allowed"`
	Action             TransferAction `json:"action"`
	Reason             string         `json:"reason"`
	Rule               string         `json:"rule,omitempty"`
	RequiresApproval   bool           `json:"requires_approval,omitempty"`
	RequiresPrompt     bool           `json:"requires_prompt,omitempty"`
	RequestID          string         `json:"request_id,omitempty"`
	ViolationType      ViolationType  `json:"violation_type,omitempty"`
	SensitiveDataTypes []string       `json:"sensitive_data_types,omitempty"`
	ContentHash        string         `json:"content_hash,omitempty"`
}

// Deny builds a blocked decision.
func Deny(rule, reason string) AccessDecision {
	return AccessDecision{Allowed: false, Action: ActionBlocked, Rule: rule, Reason: reason}
}

// Allow builds an allowed decision.
func Allow(rule, reason string) AccessDecision {
	return AccessDecision{Allowed: true, Action: ActionAllowed, Rule: rule, Reason: reason}
}

// ClipboardRequest asks whether a clipboard sync may happen.
type ClipboardRequest struct {
	SessionID   string    `json:"session_id"`
	Direction   Direction `json:"direction"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Content     []byte    `json:"content,omitempty"`
}

// FileTransferCheck asks whether a file may cross the pod boundary.
type FileTransferCheck struct {
	SessionID string    `json:"session_id"`
	Direction Direction `json:"direction"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type,omitempty"`
	Size      int64     `json:"size"`
	Content   []byte    `json:"content,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// NetworkRequest asks whether the pod may reach a URL.
type NetworkRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Method    string `json:"method,omitempty"`
}

// PeripheralKind names a redirected device class.
type PeripheralKind string

const (
	PeripheralUSB        PeripheralKind = "usb"
	PeripheralWebcam     PeripheralKind = "webcam"
	PeripheralMicrophone PeripheralKind = "microphone"
	PeripheralPrinter    PeripheralKind = "printer"
)

// PeripheralRequest asks whether a local device may be redirected into the pod.
type PeripheralRequest struct {
	SessionID   string         `json:"session_id"`
	Kind        PeripheralKind `json:"kind"`
	DeviceID    string         `json:"device_id,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	VendorID    string         `json:"vendor_id,omitempty"`
	ProductID   string         `json:"product_id,omitempty"`
	DeviceName  string         `json:"device_name,omitempty"`
	// Printer fields, used when Kind is printer.
	LocalPrinter bool `json:"local_printer,omitempty"`
	PDFExport    bool `json:"pdf_export,omitempty"`
}

// PrintRequest asks whether a print job may leave the pod.
type PrintRequest struct {
	SessionID    string `json:"session_id"`
	DocumentName string `json:"document_name,omitempty"`
	Pages        int    `json:"pages,omitempty"`
	PrinterName  string `json:"printer_name,omitempty"`
	LocalPrinter bool   `json:"local_printer"`
	PDFExport    bool   `json:"pdf_export"`
}

// ScreenCaptureRequest asks whether the display may be captured.
type ScreenCaptureRequest struct {
	SessionID string `json:"session_id"`
	Method    string `json:"method,omitempty"`
}

// TransferRequest is the channel-agnostic request evaluated by the DLP layer.
type TransferRequest struct {
	SessionID         string       `json:"session_id"`
	UserID            string       `json:"user_id,omitempty"`
	TenantID          string       `json:"tenant_id,omitempty"`
	TransferType      TransferType `json:"transfer_type"`
	Direction         Direction    `json:"direction"`
	Content           []byte       `json:"content,omitempty"`
	Size              int64        `json:"size"`
	FileName          string       `json:"file_name,omitempty"`
	ContentType       string       `json:"content_type,omitempty"`
	SourceApplication string       `json:"source_application,omitempty"`
	TargetApplication string       `json:"target_application,omitempty"`
	// LocalPrinter marks a PRINT transfer bound for a printer on the user's
	// device.
	LocalPrinter bool `json:"local_printer,omitempty"`
	// ApprovalRequestID references a previously approved file transfer request.
	ApprovalRequestID string `json:"approval_request_id,omitempty"`
}

// TransferResult is returned by the unified evaluation entry point.
type TransferResult struct {
	Allowed            bool           `json:"allowed"`
	Action             TransferAction `json:"action"`
	Reason             string         `json:"reason"`
	ContentHash        string         `json:"content_hash,omitempty"`
	SensitiveDataTypes []string       `json:"sensitive_data_types,omitempty"`
	RequiresApproval   bool           `json:"requires_approval,omitempty"`
	RequestID          string         `json:"request_id,omitempty"`
	AttemptID          string         `json:"attempt_id,omitempty"`
}

// DataTransferAttempt is the durable audit record of one transfer evaluation.
type DataTransferAttempt struct {
	ID                 string         `json:"id"`
	SessionID          string         `json:"session_id"`
	TenantID           string         `json:"tenant_id"`
	UserID             string         `json:"user_id"`
	TransferType       TransferType   `json:"transfer_type"`
	Direction          Direction      `json:"direction"`
	Action             TransferAction `json:"action"`
	Reason             string         `json:"reason"`
	Size               int64          `json:"size"`
	FileName           string         `json:"file_name,omitempty"`
	ContentType        string         `json:"content_type,omitempty"`
	ContentHash        string         `json:"content_hash,omitempty"`
	SensitiveDataTypes []string       `json:"sensitive_data_types,omitempty"`
	SourceApplication  string         `json:"source_application,omitempty"`
	TargetApplication  string         `json:"target_application,omitempty"`
	ApprovalRequestID  string         `json:"approval_request_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// AttemptFilter narrows a paginated attempt query.
type AttemptFilter struct {
	Action       TransferAction `json:"action,omitempty"`
	TransferType TransferType   `json:"transfer_type,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// AttemptPage is one page of transfer attempts, newest first.
type AttemptPage struct {
	Attempts []DataTransferAttempt `json:"attempts"`
	Total    int                   `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// WatermarkConfig is the rendered watermark handed to the display pipeline.
type WatermarkConfig struct {
	Enabled  bool    `json:"enabled"`
	Text     string  `json:"text,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
	Position string  `json:"position,omitempty"`
	FontSize int     `json:"font_size,omitempty"`
	Color    string  `json:"color,omitempty"`
}
