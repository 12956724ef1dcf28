// Package approval holds file transfers that a policy marks as
// approval-required until an approver decides on them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
)

// DefaultExpiry is how long a request stays PENDING.
const DefaultExpiry = 24 * time.Hour

var (
	ErrInvalidState     = errors.New("file transfer request is not in a valid state for this operation")
	ErrExpired          = errors.New("file transfer request has expired")
	ErrReasonRequired   = errors.New("rejection reason is required")
	ErrApproverRequired = errors.New("approver is required")
)

// NewRequest describes a transfer to hold for approval.
type NewRequest struct {
	SessionID   string          `json:"session_id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Direction   model.Direction `json:"direction"`
	FileName    string          `json:"file_name"`
	FileType    string          `json:"file_type,omitempty"`
	Size        int64           `json:"size"`
	ContentHash string          `json:"content_hash,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// Workflow drives FileTransferRequest through its lifecycle. Transitions
// are serialized so two approvers racing on one request see a single winner.
type Workflow struct {
	store  Store
	pub    alert.Publisher
	clock  clock.Clock
	expiry time.Duration
	logger *zap.Logger
	mu     sync.Mutex
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock sets the clock used for timestamps and expiry.
func WithClock(c clock.Clock) Option { return func(w *Workflow) { w.clock = c } }

// WithExpiry overrides DefaultExpiry.
func WithExpiry(d time.Duration) Option { return func(w *Workflow) { w.expiry = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(w *Workflow) { w.logger = l } }

// NewWorkflow creates a Workflow. A nil publisher discards notifications.
func NewWorkflow(store Store, pub alert.Publisher, opts ...Option) *Workflow {
	if pub == nil {
		pub = alert.Nop{}
	}
	w := &Workflow{
		store:  store,
		pub:    pub,
		clock:  clock.Real(),
		expiry: DefaultExpiry,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Create persists a PENDING request and notifies approvers.
func (w *Workflow) Create(ctx context.Context, nr NewRequest) (*model.FileTransferRequest, error) {
	if nr.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	now := w.clock.Now()
	r := &model.FileTransferRequest{
		ID:          uuid.NewString(),
		SessionID:   nr.SessionID,
		TenantID:    nr.TenantID,
		UserID:      nr.UserID,
		Direction:   nr.Direction,
		FileName:    nr.FileName,
		FileType:    nr.FileType,
		Size:        nr.Size,
		ContentHash: nr.ContentHash,
		Reason:      nr.Reason,
		Status:      model.TransferPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(w.expiry),
	}

	w.mu.Lock()
	err := w.store.Save(ctx, r)
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save file transfer request: %w", err)
	}

	w.transitioned(ctx, r, alert.EventTransferRequested, "")
	return r, nil
}

// Get returns a request, flipping an overdue PENDING or APPROVED request to
// EXPIRED.
func (w *Workflow) Get(ctx context.Context, id string) (*model.FileTransferRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load(ctx, id)
}

// Approve moves a PENDING request to APPROVED.
func (w *Workflow) Approve(ctx context.Context, id, approver, note string) (*model.FileTransferRequest, error) {
	if approver == "" {
		return nil, ErrApproverRequired
	}
	return w.transition(ctx, id, alert.EventTransferApproved, note, func(r *model.FileTransferRequest, now time.Time) error {
		if r.Status != model.TransferPending {
			return invalidState(r, "approve")
		}
		r.Status = model.TransferApproved
		r.ApprovedBy = approver
		r.ApprovedAt = &now
		r.ApprovalNote = note
		return nil
	})
}

// Reject moves a PENDING request to REJECTED. A reason is mandatory.
func (w *Workflow) Reject(ctx context.Context, id, approver, reason string) (*model.FileTransferRequest, error) {
	if approver == "" {
		return nil, ErrApproverRequired
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	return w.transition(ctx, id, alert.EventTransferRejected, reason, func(r *model.FileTransferRequest, now time.Time) error {
		if r.Status != model.TransferPending {
			return invalidState(r, "reject")
		}
		r.Status = model.TransferRejected
		r.RejectedBy = approver
		r.RejectedAt = &now
		r.RejectionReason = reason
		return nil
	})
}

// Cancel withdraws a PENDING request.
func (w *Workflow) Cancel(ctx context.Context, id, actor string) (*model.FileTransferRequest, error) {
	return w.transition(ctx, id, alert.EventTransferCancelled, "", func(r *model.FileTransferRequest, now time.Time) error {
		if r.Status != model.TransferPending {
			return invalidState(r, "cancel")
		}
		r.Status = model.TransferCancelled
		r.CancelledBy = actor
		r.CancelledAt = &now
		return nil
	})
}

// Complete marks an APPROVED request as used.
func (w *Workflow) Complete(ctx context.Context, id string) (*model.FileTransferRequest, error) {
	return w.transition(ctx, id, alert.EventTransferCompleted, "", func(r *model.FileTransferRequest, now time.Time) error {
		if r.Status != model.TransferApproved {
			return invalidState(r, "complete")
		}
		r.Status = model.TransferCompleted
		r.CompletedAt = &now
		return nil
	})
}

// Pending lists open requests for tenantID (all tenants when empty).
// Overdue requests are expired as a side effect and left out.
func (w *Workflow) Pending(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := w.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list file transfer requests: %w", err)
	}
	out := []model.FileTransferRequest{}
	for i := range all {
		r := &all[i]
		if r.Status != model.TransferPending {
			continue
		}
		expired, err := w.expireIfDue(ctx, r)
		if err != nil {
			return nil, err
		}
		if !expired {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (w *Workflow) transition(ctx context.Context, id, eventType, reason string, apply func(*model.FileTransferRequest, time.Time) error) (*model.FileTransferRequest, error) {
	w.mu.Lock()
	r, err := w.load(ctx, id)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if r.Status == model.TransferExpired {
		w.mu.Unlock()
		return r, fmt.Errorf("%w: %s", ErrExpired, id)
	}
	if err := apply(r, w.clock.Now()); err != nil {
		w.mu.Unlock()
		return r, err
	}
	err = w.store.Save(ctx, r)
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save file transfer request: %w", err)
	}

	w.transitioned(ctx, r, eventType, reason)
	return r, nil
}

// load must be called with w.mu held.
func (w *Workflow) load(ctx context.Context, id string) (*model.FileTransferRequest, error) {
	r, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := w.expireIfDue(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// expireIfDue must be called with w.mu held. An approval that was never
// used expires with the request.
func (w *Workflow) expireIfDue(ctx context.Context, r *model.FileTransferRequest) (bool, error) {
	if r.Status != model.TransferPending && r.Status != model.TransferApproved {
		return false, nil
	}
	if w.clock.Now().Before(r.ExpiresAt) {
		return false, nil
	}
	r.Status = model.TransferExpired
	if err := w.store.Save(ctx, r); err != nil {
		return false, fmt.Errorf("expire file transfer request: %w", err)
	}
	w.transitioned(ctx, r, alert.EventTransferExpired, "")
	return true, nil
}

func (w *Workflow) transitioned(ctx context.Context, r *model.FileTransferRequest, eventType, reason string) {
	metrics.ApprovalTransitions.WithLabelValues(string(r.Status)).Inc()
	w.logger.Info("file transfer request "+strings.ToLower(string(r.Status)),
		zap.String("request_id", r.ID),
		zap.String("session_id", r.SessionID),
		zap.String("tenant_id", r.TenantID),
		zap.String("file_name", r.FileName))

	e := alert.Event{
		ID:        uuid.NewString(),
		Topic:     alert.TopicApprovals,
		Type:      eventType,
		Timestamp: w.clock.Now(),
		TenantID:  r.TenantID,
		SessionID: r.SessionID,
		UserID:    r.UserID,
		Reason:    reason,
		RequestID: r.ID,
		Data: map[string]string{
			"status":    string(r.Status),
			"direction": string(r.Direction),
			"file_name": r.FileName,
			"size":      strconv.FormatInt(r.Size, 10),
		},
	}
	if err := w.pub.Publish(ctx, e); err != nil {
		w.logger.Warn("approval notification failed",
			zap.String("request_id", r.ID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func invalidState(r *model.FileTransferRequest, op string) error {
	return fmt.Errorf("%w: cannot %s request %s in status %s", ErrInvalidState, op, r.ID, r.Status)
}
