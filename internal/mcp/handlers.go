package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/model"
)

const timeLayout = "2006-01-02T15:04:05Z"

// --- Input/Output types ---

// ClipboardInput defines parameters for podguard_check_clipboard.
type ClipboardInput struct {
	SessionID   string `json:"session_id" jsonschema:"session id"`
	Direction   string `json:"direction" jsonschema:"INBOUND (into the pod) or OUTBOUND (out of the pod)"`
	ContentType string `json:"content_type,omitempty" jsonschema:"MIME type, default text/plain"`
	Content     string `json:"content,omitempty" jsonschema:"clipboard text to inspect"`
}

// FileInput defines parameters for podguard_check_file.
type FileInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	Direction string `json:"direction" jsonschema:"INBOUND for upload, OUTBOUND for download"`
	FileName  string `json:"file_name" jsonschema:"file name"`
	FileType  string `json:"file_type,omitempty" jsonschema:"MIME type or extension"`
	Size      int64  `json:"size,omitempty" jsonschema:"size in bytes, defaults to the content length"`
	Content   string `json:"content,omitempty" jsonschema:"file content to inspect"`
	Reason    string `json:"reason,omitempty" jsonschema:"business reason, used if approval is required"`
}

// NetworkInput defines parameters for podguard_check_network.
type NetworkInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	URL       string `json:"url" jsonschema:"destination URL"`
}

// PeripheralInput defines parameters for podguard_check_peripheral.
type PeripheralInput struct {
	SessionID   string `json:"session_id" jsonschema:"session id"`
	Kind        string `json:"kind" jsonschema:"usb, webcam, microphone or printer"`
	DeviceClass string `json:"device_class,omitempty" jsonschema:"USB device class, e.g. mass_storage or hid"`
	VendorID    string `json:"vendor_id,omitempty" jsonschema:"USB vendor id"`
	ProductID   string `json:"product_id,omitempty" jsonschema:"USB product id"`
	DeviceName  string `json:"device_name,omitempty" jsonschema:"device display name"`
}

// PrintInput defines parameters for podguard_check_print.
type PrintInput struct {
	SessionID    string `json:"session_id" jsonschema:"session id"`
	DocumentName string `json:"document_name,omitempty" jsonschema:"document being printed"`
	LocalPrinter bool   `json:"local_printer,omitempty" jsonschema:"print to a printer on the user's device"`
	PDFExport    bool   `json:"pdf_export,omitempty" jsonschema:"export as PDF"`
}

// ScreenInput defines parameters for podguard_check_screen_capture.
type ScreenInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
	Method    string `json:"method,omitempty" jsonschema:"capture method"`
}

// EvaluateInput defines parameters for podguard_evaluate_transfer.
type EvaluateInput struct {
	SessionID         string `json:"session_id" jsonschema:"session id"`
	TransferType      string `json:"transfer_type" jsonschema:"CLIPBOARD_TEXT, CLIPBOARD_IMAGE, CLIPBOARD_FILE, FILE_DOWNLOAD, FILE_UPLOAD, USB_TRANSFER, PRINT or SCREEN_SHARE"`
	Direction         string `json:"direction,omitempty" jsonschema:"INBOUND or OUTBOUND"`
	Content           string `json:"content,omitempty" jsonschema:"content to inspect"`
	FileName          string `json:"file_name,omitempty" jsonschema:"file name"`
	ContentType       string `json:"content_type,omitempty" jsonschema:"MIME type"`
	LocalPrinter      bool   `json:"local_printer,omitempty" jsonschema:"PRINT only: printer on the user's device"`
	ApprovalRequestID string `json:"approval_request_id,omitempty" jsonschema:"approved file transfer request to apply"`
}

// ScanInput defines parameters for podguard_scan.
type ScanInput struct {
	Content  string `json:"content" jsonschema:"text to scan"`
	FileName string `json:"file_name,omitempty" jsonschema:"file name, used for extension checks"`
}

// ScanOutput contains both scan results and the content fingerprint.
type ScanOutput struct {
	ContentHash string                   `json:"content_hash"`
	Found       bool                     `json:"found"`
	Findings    []model.SensitiveFinding `json:"findings,omitempty"`
	Categories  []string                 `json:"categories,omitempty"`
	Clean       bool                     `json:"clean"`
	ThreatName  string                   `json:"threat_name,omitempty"`
}

// PendingInput optionally scopes the listing to a tenant.
type PendingInput struct {
	TenantID string `json:"tenant_id,omitempty" jsonschema:"tenant id, omit for all tenants"`
}

// PendingOutput lists pending file transfer requests.
type PendingOutput struct {
	Requests []PendingItem `json:"requests"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Direction string `json:"direction"`
	FileName  string `json:"file_name"`
	Size      int64  `json:"size"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// DecideInput defines parameters for podguard_approve and podguard_reject.
type DecideInput struct {
	ID       string `json:"id" jsonschema:"file transfer request id"`
	Approver string `json:"approver,omitempty" jsonschema:"who is deciding"`
	Note     string `json:"note,omitempty" jsonschema:"approval note, or the rejection reason"`
}

// DecideOutput confirms the new request state.
type DecideOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	By     string `json:"by"`
}

// SessionInput names a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
}

// AttemptsInput selects a page of transfer attempts.
type AttemptsInput struct {
	SessionID    string `json:"session_id" jsonschema:"session id"`
	Action       string `json:"action,omitempty" jsonschema:"filter by ALLOWED, BLOCKED, LOGGED, QUARANTINED or OVERRIDE_APPROVED"`
	TransferType string `json:"transfer_type,omitempty" jsonschema:"filter by transfer type"`
	Limit        int    `json:"limit,omitempty" jsonschema:"page size, default 50"`
	Offset       int    `json:"offset,omitempty" jsonschema:"number of attempts to skip"`
}

// AttemptsOutput is one page of transfer attempts.
type AttemptsOutput struct {
	Attempts []AttemptItem `json:"attempts"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// AttemptItem describes a single recorded transfer attempt.
type AttemptItem struct {
	ID                 string   `json:"id"`
	TransferType       string   `json:"transfer_type"`
	Direction          string   `json:"direction"`
	Action             string   `json:"action"`
	Reason             string   `json:"reason"`
	Size               int64    `json:"size"`
	FileName           string   `json:"file_name,omitempty"`
	ContentHash        string   `json:"content_hash,omitempty"`
	SensitiveDataTypes []string `json:"sensitive_data_types,omitempty"`
	CreatedAt          string   `json:"created_at"`
}

// --- Handlers ---

// decision turns a check result into a tool result. Denied checks are
// error results so agents see them as failures.
func (s *Server) decision(tool string, d model.AccessDecision, err error) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	if err != nil {
		s.logger.Warn("containment check completed with errors", zap.String("tool", tool), zap.Error(err))
	}
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, d, nil
	}
	return nil, d, nil
}

func (s *Server) handleCheckClipboard(ctx context.Context, req *mcpsdk.CallToolRequest, input ClipboardInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	ct := input.ContentType
	if ct == "" {
		ct = "text/plain"
	}
	d, err := s.engine.CheckClipboardAccess(ctx, model.ClipboardRequest{
		SessionID:   input.SessionID,
		Direction:   direction(input.Direction),
		ContentType: ct,
		Size:        int64(len(input.Content)),
		Content:     contentBytes(input.Content),
	})
	return s.decision("podguard_check_clipboard", d, err)
}

func (s *Server) handleCheckFile(ctx context.Context, req *mcpsdk.CallToolRequest, input FileInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	size := input.Size
	if size == 0 {
		size = int64(len(input.Content))
	}
	d, err := s.engine.CheckFileTransfer(ctx, model.FileTransferCheck{
		SessionID: input.SessionID,
		Direction: direction(input.Direction),
		FileName:  input.FileName,
		FileType:  input.FileType,
		Size:      size,
		Content:   contentBytes(input.Content),
		Reason:    input.Reason,
	})
	return s.decision("podguard_check_file", d, err)
}

func (s *Server) handleCheckNetwork(ctx context.Context, req *mcpsdk.CallToolRequest, input NetworkInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	d, err := s.engine.CheckNetworkAccess(ctx, model.NetworkRequest{SessionID: input.SessionID, URL: input.URL})
	return s.decision("podguard_check_network", d, err)
}

func (s *Server) handleCheckPeripheral(ctx context.Context, req *mcpsdk.CallToolRequest, input PeripheralInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	d, err := s.engine.CheckPeripheralAccess(ctx, model.PeripheralRequest{
		SessionID:   input.SessionID,
		Kind:        model.PeripheralKind(strings.ToLower(input.Kind)),
		DeviceClass: input.DeviceClass,
		VendorID:    input.VendorID,
		ProductID:   input.ProductID,
		DeviceName:  input.DeviceName,
	})
	return s.decision("podguard_check_peripheral", d, err)
}

func (s *Server) handleCheckPrint(ctx context.Context, req *mcpsdk.CallToolRequest, input PrintInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	d, err := s.engine.CheckPrintAccess(ctx, model.PrintRequest{
		SessionID:    input.SessionID,
		DocumentName: input.DocumentName,
		LocalPrinter: input.LocalPrinter,
		PDFExport:    input.PDFExport,
	})
	return s.decision("podguard_check_print", d, err)
}

func (s *Server) handleCheckScreen(ctx context.Context, req *mcpsdk.CallToolRequest, input ScreenInput) (*mcpsdk.CallToolResult, model.AccessDecision, error) {
	d, err := s.engine.CheckScreenCapture(ctx, model.ScreenCaptureRequest{SessionID: input.SessionID, Method: input.Method})
	return s.decision("podguard_check_screen_capture", d, err)
}

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, model.TransferResult, error) {
	res, err := s.engine.EvaluateTransfer(ctx, model.TransferRequest{
		SessionID:         input.SessionID,
		TransferType:      model.TransferType(strings.ToUpper(input.TransferType)),
		Direction:         direction(input.Direction),
		Content:           contentBytes(input.Content),
		Size:              int64(len(input.Content)),
		FileName:          input.FileName,
		ContentType:       input.ContentType,
		LocalPrinter:      input.LocalPrinter,
		ApprovalRequestID: input.ApprovalRequestID,
	})
	if err != nil {
		s.logger.Warn("transfer evaluation completed with errors", zap.Error(err))
	}
	if !res.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, res, nil
	}
	return nil, res, nil
}

func (s *Server) handleScan(ctx context.Context, req *mcpsdk.CallToolRequest, input ScanInput) (*mcpsdk.CallToolResult, ScanOutput, error) {
	data := []byte(input.Content)
	sensitive, err := s.engine.ScanForSensitiveData(ctx, data)
	if err != nil {
		return nil, ScanOutput{}, fmt.Errorf("sensitive data scan: %w", err)
	}
	mal, err := s.engine.ScanForMalware(ctx, data, input.FileName)
	if err != nil {
		return nil, ScanOutput{}, fmt.Errorf("malware scan: %w", err)
	}
	return nil, ScanOutput{
		ContentHash: s.engine.HashContent(data),
		Found:       sensitive.Found,
		Findings:    sensitive.Patterns,
		Categories:  sensitive.Categories(),
		Clean:       mal.Clean,
		ThreatName:  mal.ThreatName,
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.engine.PendingFileTransfers(ctx, input.TenantID)
	if err != nil {
		return nil, PendingOutput{}, fmt.Errorf("failed to list pending requests: %w", err)
	}

	items := make([]PendingItem, len(list))
	for i, r := range list {
		items[i] = PendingItem{
			ID:        r.ID,
			SessionID: r.SessionID,
			TenantID:  r.TenantID,
			UserID:    r.UserID,
			Direction: string(r.Direction),
			FileName:  r.FileName,
			Size:      r.Size,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt.UTC().Format(timeLayout),
			ExpiresAt: r.ExpiresAt.UTC().Format(timeLayout),
		}
	}
	return nil, PendingOutput{Requests: items}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input DecideInput) (*mcpsdk.CallToolResult, DecideOutput, error) {
	r, err := s.engine.ApproveFileTransfer(ctx, input.ID, s.approver(input.Approver), input.Note)
	if err != nil {
		return nil, DecideOutput{}, fmt.Errorf("approve %s: %w", input.ID, err)
	}
	return nil, DecideOutput{ID: r.ID, Status: string(r.Status), By: r.ApprovedBy}, nil
}

func (s *Server) handleReject(ctx context.Context, req *mcpsdk.CallToolRequest, input DecideInput) (*mcpsdk.CallToolResult, DecideOutput, error) {
	r, err := s.engine.RejectFileTransfer(ctx, input.ID, s.approver(input.Approver), input.Note)
	if err != nil {
		return nil, DecideOutput{}, fmt.Errorf("reject %s: %w", input.ID, err)
	}
	return nil, DecideOutput{ID: r.ID, Status: string(r.Status), By: r.RejectedBy}, nil
}

func (s *Server) handleWatermark(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, model.WatermarkConfig, error) {
	wm, err := s.engine.GenerateWatermarkConfig(ctx, input.SessionID)
	if err != nil {
		return nil, model.WatermarkConfig{}, err
	}
	return nil, wm, nil
}

func (s *Server) handleAttempts(ctx context.Context, req *mcpsdk.CallToolRequest, input AttemptsInput) (*mcpsdk.CallToolResult, AttemptsOutput, error) {
	page, err := s.engine.GetTransferAttempts(ctx, input.SessionID, model.AttemptFilter{
		Action:       model.TransferAction(strings.ToUpper(input.Action)),
		TransferType: model.TransferType(strings.ToUpper(input.TransferType)),
		Limit:        input.Limit,
		Offset:       input.Offset,
	})
	if err != nil {
		return nil, AttemptsOutput{}, err
	}

	items := make([]AttemptItem, len(page.Attempts))
	for i, a := range page.Attempts {
		items[i] = AttemptItem{
			ID:                 a.ID,
			TransferType:       string(a.TransferType),
			Direction:          string(a.Direction),
			Action:             string(a.Action),
			Reason:             a.Reason,
			Size:               a.Size,
			FileName:           a.FileName,
			ContentHash:        a.ContentHash,
			SensitiveDataTypes: a.SensitiveDataTypes,
			CreatedAt:          a.CreatedAt.UTC().Format(timeLayout),
		}
	}
	return nil, AttemptsOutput{Attempts: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *Server) approver(name string) string {
	if name != "" {
		return name
	}
	return s.actor
}

func direction(s string) model.Direction {
	return model.Direction(strings.ToUpper(strings.TrimSpace(s)))
}

func contentBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
