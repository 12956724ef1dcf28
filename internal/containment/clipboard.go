package containment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/model"
)

// CheckClipboardAccess decides whether a clipboard sync may happen.
//
// Rule order:
//  1. clipboard mode
//  2. inbound/outbound flags
//  3. max size
//  4. allowed content types
//  5. outbound content scan, CRITICAL findings block
func (e *Engine) CheckClipboardAccess(ctx context.Context, req model.ClipboardRequest) (model.AccessDecision, error) {
	size := req.Size
	if n := int64(len(req.Content)); n > size {
		size = n
	}
	hash := ""
	if len(req.Content) > 0 {
		hash = e.hasher.Sum(req.Content)
	}

	ev := &evaluation{
		channel:   model.ChannelClipboard,
		eventType: "CLIPBOARD_" + string(req.Direction),
		category:  model.CategoryDataTransfer,
		details: model.ViolationDetails{Clipboard: &model.ClipboardDetails{
			Direction:   req.Direction,
			ContentType: req.ContentType,
			Size:        size,
			ContentHash: hash,
		}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	o, err := e.clipboardPipeline(ctx, sc, req, size)
	o.decision.ContentHash = hash
	d, recErr := e.conclude(ctx, ev, o)
	return d, errors.Join(err, recErr)
}

func (e *Engine) clipboardPipeline(ctx context.Context, sc *model.SessionSecurityContext, req model.ClipboardRequest, size int64) (outcome, error) {
	p := sc.Policy
	vt := clipboardViolation(req.Direction)

	if req.Direction != model.Inbound && req.Direction != model.Outbound {
		return unknownMode("clipboard direction", req.Direction), nil
	}

	switch p.ClipboardPolicy {
	case model.ClipboardBlocked:
		return deny(vt, "clipboard.blocked", "Clipboard access is disabled by policy"), nil
	case model.ClipboardReadOnly:
		if req.Direction == model.Outbound {
			return deny(vt, "clipboard.read_only", "Clipboard is read-only: copying out of the pod is not allowed"), nil
		}
	case model.ClipboardWriteOnly:
		if req.Direction == model.Inbound {
			return deny(vt, "clipboard.write_only", "Clipboard is write-only: pasting into the pod is not allowed"), nil
		}
	case model.ClipboardApprovalRequired:
		return needsApproval("clipboard.approval_required", "Clipboard access requires approval"), nil
	case model.ClipboardBidirectional:
	default:
		return unknownMode("clipboard_policy", p.ClipboardPolicy), nil
	}

	if req.Direction == model.Inbound && !p.ClipboardInbound {
		return deny(vt, "clipboard.inbound_disabled", "Inbound clipboard is disabled by policy"), nil
	}
	if req.Direction == model.Outbound && !p.ClipboardOutbound {
		return deny(vt, "clipboard.outbound_disabled", "Outbound clipboard is disabled by policy"), nil
	}

	if p.ClipboardMaxSize > 0 && size > p.ClipboardMaxSize {
		return constraint(p, vt, "clipboard.max_size",
			fmt.Sprintf("Clipboard content exceeds maximum size of %d bytes", p.ClipboardMaxSize)), nil
	}

	if len(p.ClipboardAllowedTypes) > 0 {
		if _, ok := denylist.MatchFileType("", req.ContentType, p.ClipboardAllowedTypes); !ok {
			return constraint(p, vt, "clipboard.content_type",
				fmt.Sprintf("Clipboard content type %q is not allowed", req.ContentType)), nil
		}
	}

	if req.Direction == model.Outbound && len(req.Content) > 0 {
		if o, err := e.inspectSensitive(ctx, sc, "clipboard", req.Content, model.SeverityCritical); o != nil {
			return *o, err
		}
	}

	return allow("clipboard.allowed", "Clipboard access allowed"), nil
}

func clipboardViolation(dir model.Direction) model.ViolationType {
	if dir == model.Inbound {
		return model.ViolationClipboardPaste
	}
	return model.ViolationClipboardCopy
}
