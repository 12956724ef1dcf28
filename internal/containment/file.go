package containment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/model"
)

// CheckFileTransfer decides whether a file may cross the pod boundary.
// OUTBOUND is a download to the user's device, INBOUND an upload into the
// pod.
//
// Rule order:
//  1. direction policy (APPROVAL_REQUIRED opens a FileTransferRequest)
//  2. blocked file types
//  3. allowed file types
//  4. max file size
//  5. inspection: downloads for sensitive data, uploads for malware
func (e *Engine) CheckFileTransfer(ctx context.Context, req model.FileTransferCheck) (model.AccessDecision, error) {
	size := req.Size
	if n := int64(len(req.Content)); n > size {
		size = n
	}
	hash := ""
	if len(req.Content) > 0 {
		hash = e.hasher.Sum(req.Content)
	}

	ev := &evaluation{
		channel:   model.ChannelFile,
		eventType: fileEventType(req.Direction),
		category:  model.CategoryDataTransfer,
		details: model.ViolationDetails{File: &model.FileDetails{
			FileName:    req.FileName,
			FileType:    req.FileType,
			Size:        size,
			Direction:   req.Direction,
			ContentHash: hash,
		}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	o, err := e.filePipeline(ctx, ev, req, size, hash)
	o.decision.ContentHash = hash
	d, recErr := e.conclude(ctx, ev, o)
	return d, errors.Join(err, recErr)
}

func (e *Engine) filePipeline(ctx context.Context, ev *evaluation, req model.FileTransferCheck, size int64, hash string) (outcome, error) {
	sc := ev.sc
	p := sc.Policy

	var mode model.FileTransferPolicy
	var vt model.ViolationType
	var prefix string
	switch req.Direction {
	case model.Outbound:
		mode, vt, prefix = p.FileDownloadPolicy, model.ViolationFileDownload, "file.download"
	case model.Inbound:
		mode, vt, prefix = p.FileUploadPolicy, model.ViolationFileUpload, "file.upload"
	default:
		return unknownMode("file transfer direction", req.Direction), nil
	}

	action := model.ActionAllowed
	switch mode {
	case model.FileTransferBlocked:
		return deny(vt, prefix+".blocked", fmt.Sprintf("File %s is disabled by policy", directionNoun(req.Direction))), nil
	case model.FileTransferApprovalRequired:
		r, err := e.approvals.Create(ctx, approval.NewRequest{
			SessionID:   sc.SessionID,
			TenantID:    sc.TenantID,
			UserID:      sc.UserID,
			Direction:   req.Direction,
			FileName:    req.FileName,
			FileType:    req.FileType,
			Size:        size,
			ContentHash: hash,
			Reason:      req.Reason,
		})
		if err != nil {
			o := deny(vt, prefix+".approval_failed", "File transfer approval could not be requested")
			o.logOnly = true
			return o, fmt.Errorf("create file transfer request: %w", err)
		}
		o := needsApproval(prefix+".approval_required", "File transfer requires approval")
		o.decision.RequestID = r.ID
		return o, nil
	case model.FileTransferLoggedOnly:
		action = model.ActionLogged
	case model.FileTransferAllowed:
	default:
		return unknownMode(prefix+"_policy", mode), nil
	}

	if pattern, ok := denylist.MatchFileType(req.FileName, req.FileType, p.BlockedFileTypes); ok {
		return constraint(p, vt, prefix+".blocked_type",
			fmt.Sprintf("File type is blocked by policy (%s)", pattern)), nil
	}
	if len(p.AllowedFileTypes) > 0 {
		if _, ok := denylist.MatchFileType(req.FileName, req.FileType, p.AllowedFileTypes); !ok {
			return constraint(p, vt, prefix+".type_not_allowed", "File type is not in the allowed list"), nil
		}
	}
	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		return constraint(p, vt, prefix+".max_size",
			fmt.Sprintf("File exceeds maximum size of %d bytes", p.MaxFileSize)), nil
	}

	if len(req.Content) > 0 {
		var o *outcome
		var err error
		if req.Direction == model.Outbound {
			o, err = e.inspectSensitive(ctx, sc, prefix, req.Content, model.SeverityHigh)
		} else {
			o, err = e.inspectMalware(ctx, ev, prefix, req.Content, req.FileName)
		}
		if o != nil {
			return *o, err
		}
	}

	o := allow(prefix+".allowed", fmt.Sprintf("File %s allowed", directionNoun(req.Direction)))
	o.decision.Action = action
	return o, nil
}

func fileEventType(dir model.Direction) string {
	if dir == model.Inbound {
		return "FILE_UPLOAD"
	}
	return "FILE_DOWNLOAD"
}

func directionNoun(dir model.Direction) string {
	if dir == model.Inbound {
		return "upload"
	}
	return "download"
}
