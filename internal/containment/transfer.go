package containment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
)

// EvaluateTransfer is the channel-agnostic entry point. It routes req to the
// matching channel evaluator, records a DataTransferAttempt and raises a
// DATA_TRANSFER_BLOCKED security alert whenever the transfer is not allowed.
// A file transfer carrying the id of an approved, unexpired FileTransferRequest
// for the same session, direction, file and content is allowed as
// OVERRIDE_APPROVED and completes that request.
func (e *Engine) EvaluateTransfer(ctx context.Context, req model.TransferRequest) (model.TransferResult, error) {
	hash := ""
	if len(req.Content) > 0 {
		hash = e.hasher.Sum(req.Content)
	}
	size := req.Size
	if n := int64(len(req.Content)); n > size {
		size = n
	}

	d, evalErr := e.routeTransfer(ctx, req, size, hash)
	if d.ContentHash == "" {
		d.ContentHash = hash
	}

	result := model.TransferResult{
		Allowed:            d.Allowed,
		Action:             d.Action,
		Reason:             d.Reason,
		ContentHash:        d.ContentHash,
		SensitiveDataTypes: d.SensitiveDataTypes,
		RequiresApproval:   d.RequiresApproval,
		RequestID:          d.RequestID,
		AttemptID:          uuid.NewString(),
	}

	attempt := &model.DataTransferAttempt{
		ID:                 result.AttemptID,
		SessionID:          req.SessionID,
		TenantID:           req.TenantID,
		UserID:             req.UserID,
		TransferType:       req.TransferType,
		Direction:          req.Direction,
		Action:             result.Action,
		Reason:             result.Reason,
		Size:               size,
		FileName:           req.FileName,
		ContentType:        req.ContentType,
		ContentHash:        result.ContentHash,
		SensitiveDataTypes: result.SensitiveDataTypes,
		SourceApplication:  req.SourceApplication,
		TargetApplication:  req.TargetApplication,
		ApprovalRequestID:  firstNonEmpty(result.RequestID, req.ApprovalRequestID),
		CreatedAt:          e.clock.Now(),
	}
	e.fillIdentity(ctx, attempt)

	var attemptErr error
	if err := e.audit.AppendAttempt(ctx, attempt); err != nil {
		metrics.AuditFailures.WithLabelValues("attempt").Inc()
		attemptErr = fmt.Errorf("append transfer attempt: %w", err)
		e.logger.Error("transfer attempt not recorded",
			zap.String("session_id", req.SessionID),
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
		sc := &model.SessionSecurityContext{SessionID: attempt.SessionID, TenantID: attempt.TenantID, UserID: attempt.UserID}
		e.operationalAlert(ctx, sc, channelFor(req.TransferType), d, attemptErr)
		if result.Allowed {
			result.Allowed = false
			result.Action = model.ActionBlocked
			result.Reason = "Audit logging unavailable"
		}
	}

	if !result.Allowed {
		e.publish(ctx, alert.Event{
			Topic:     alert.TopicSecurity,
			Type:      alert.EventDataTransferBlocked,
			TenantID:  attempt.TenantID,
			SessionID: attempt.SessionID,
			UserID:    attempt.UserID,
			Severity:  blockedSeverity(d),
			Reason:    result.Reason,
			RequestID: result.RequestID,
			Data: map[string]string{
				"attempt_id":           result.AttemptID,
				"transfer_type":        string(req.TransferType),
				"direction":            string(req.Direction),
				"action":               string(result.Action),
				"file_name":            req.FileName,
				"size":                 strconv.FormatInt(size, 10),
				"content_hash":         result.ContentHash,
				"sensitive_data_types": strings.Join(result.SensitiveDataTypes, ","),
			},
		})
	}

	return result, errors.Join(evalErr, attemptErr)
}

func (e *Engine) routeTransfer(ctx context.Context, req model.TransferRequest, size int64, hash string) (model.AccessDecision, error) {
	if req.ApprovalRequestID != "" {
		if d, ok, err := e.override(ctx, req, size, hash); ok || err != nil {
			return d, err
		}
	}

	switch req.TransferType {
	case model.TransferClipboardText, model.TransferClipboardImage, model.TransferClipboardFile:
		contentType := req.ContentType
		if contentType == "" {
			contentType = defaultClipboardType(req.TransferType)
		}
		return e.CheckClipboardAccess(ctx, model.ClipboardRequest{
			SessionID:   req.SessionID,
			Direction:   req.Direction,
			ContentType: contentType,
			Size:        size,
			Content:     req.Content,
		})
	case model.TransferFileDownload, model.TransferFileUpload:
		return e.CheckFileTransfer(ctx, model.FileTransferCheck{
			SessionID: req.SessionID,
			Direction: fileDirection(req.TransferType),
			FileName:  req.FileName,
			FileType:  req.ContentType,
			Size:      size,
			Content:   req.Content,
		})
	case model.TransferUSB:
		return e.CheckPeripheralAccess(ctx, model.PeripheralRequest{
			SessionID:   req.SessionID,
			Kind:        model.PeripheralUSB,
			DeviceClass: "mass_storage",
			DeviceName:  req.TargetApplication,
		})
	case model.TransferPrint:
		return e.CheckPrintAccess(ctx, model.PrintRequest{
			SessionID:    req.SessionID,
			DocumentName: req.FileName,
			PrinterName:  req.TargetApplication,
			LocalPrinter: req.LocalPrinter,
			PDFExport:    strings.EqualFold(req.ContentType, "application/pdf"),
		})
	case model.TransferScreenShare:
		return e.CheckScreenCapture(ctx, model.ScreenCaptureRequest{
			SessionID: req.SessionID,
			Method:    req.SourceApplication,
		})
	default:
		d := model.Deny("transfer.unknown_type", fmt.Sprintf("Unknown transfer type %q", req.TransferType))
		return d, nil
	}
}

// override allows a transfer that an approver already signed off. ok is
// false when the referenced request does not authorize this transfer, in
// which case normal evaluation applies.
func (e *Engine) override(ctx context.Context, req model.TransferRequest, size int64, hash string) (model.AccessDecision, bool, error) {
	r, err := e.approvals.Get(ctx, req.ApprovalRequestID)
	if err != nil {
		e.logger.Info("approval override rejected",
			zap.String("session_id", req.SessionID),
			zap.String("request_id", req.ApprovalRequestID),
			zap.Error(err))
		return model.AccessDecision{}, false, nil
	}
	if reason := approvalMismatch(r, req, size, hash, e.clock.Now()); reason != "" {
		e.logger.Info("approval override rejected",
			zap.String("session_id", req.SessionID),
			zap.String("request_id", r.ID),
			zap.String("status", string(r.Status)),
			zap.String("reason", reason))
		return model.AccessDecision{}, false, nil
	}

	ev := &evaluation{
		channel:   model.ChannelFile,
		eventType: fileEventType(r.Direction),
		category:  model.CategoryDataTransfer,
		details: model.ViolationDetails{File: &model.FileDetails{
			FileName:    r.FileName,
			FileType:    r.FileType,
			Size:        r.Size,
			Direction:   r.Direction,
			ContentHash: r.ContentHash,
		}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, true, err
	}
	ev.sc = sc

	if _, err := e.approvals.Complete(ctx, r.ID); err != nil {
		o := outcome{decision: model.Deny("approval.complete_failed", "Approved transfer could not be completed"), logOnly: true}
		d, recErr := e.conclude(ctx, ev, o)
		return d, true, errors.Join(fmt.Errorf("complete file transfer request %s: %w", r.ID, err), recErr)
	}

	d := model.Allow("approval.override", fmt.Sprintf("Transfer approved by %s", r.ApprovedBy))
	d.Action = model.ActionOverrideApproved
	d.RequestID = r.ID
	d, recErr := e.conclude(ctx, ev, outcome{decision: d})
	return d, true, recErr
}

// approvalMismatch returns why r does not cover the transfer in req, or ""
// when it does. An approval covers exactly one file in one direction for
// the session that asked for it.
func approvalMismatch(r *model.FileTransferRequest, req model.TransferRequest, size int64, hash string, now time.Time) string {
	switch {
	case r.Status != model.TransferApproved:
		return "not approved"
	case r.SessionID != req.SessionID:
		return "other session"
	case !now.Before(r.ExpiresAt):
		return "expired"
	case req.TransferType != model.TransferFileDownload && req.TransferType != model.TransferFileUpload:
		return "not a file transfer"
	case r.Direction != fileDirection(req.TransferType):
		return "direction differs"
	case req.Direction != "" && req.Direction != r.Direction:
		return "direction differs"
	case r.FileName != req.FileName:
		return "file name differs"
	case r.ContentHash != "" && r.ContentHash != hash:
		return "content differs"
	case r.ContentHash == "" && r.Size > 0 && r.Size != size:
		return "size differs"
	}
	return ""
}

// fillIdentity sets tenant and user ids from the resolved session. Caller
// supplied ids are kept only when the session cannot be resolved.
func (e *Engine) fillIdentity(ctx context.Context, a *model.DataTransferAttempt) {
	sc, err := e.resolver.Context(ctx, a.SessionID)
	if err != nil {
		return
	}
	if (a.TenantID != "" && a.TenantID != sc.TenantID) || (a.UserID != "" && a.UserID != sc.UserID) {
		e.logger.Warn("transfer identity differs from session",
			zap.String("session_id", a.SessionID),
			zap.String("tenant_id", a.TenantID),
			zap.String("session_tenant_id", sc.TenantID),
			zap.String("user_id", a.UserID),
			zap.String("session_user_id", sc.UserID))
	}
	a.TenantID = sc.TenantID
	a.UserID = sc.UserID
}

func fileDirection(t model.TransferType) model.Direction {
	if t == model.TransferFileUpload {
		return model.Inbound
	}
	return model.Outbound
}

func defaultClipboardType(t model.TransferType) string {
	switch t {
	case model.TransferClipboardImage:
		return "image/png"
	case model.TransferClipboardFile:
		return "application/octet-stream"
	default:
		return "text/plain"
	}
}

func channelFor(t model.TransferType) model.Channel {
	switch t {
	case model.TransferClipboardText, model.TransferClipboardImage, model.TransferClipboardFile:
		return model.ChannelClipboard
	case model.TransferUSB:
		return model.ChannelPeripheral
	case model.TransferPrint:
		return model.ChannelPrint
	case model.TransferScreenShare:
		return model.ChannelScreen
	default:
		return model.ChannelFile
	}
}

func blockedSeverity(d model.AccessDecision) model.Severity {
	if d.ViolationType == "" {
		return model.SeverityMedium
	}
	return model.SeverityFor(d.ViolationType)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
