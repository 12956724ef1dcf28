package containment

import (
	"context"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/model"
)

// CreateFileTransferRequest opens an approval request outside of a
// CheckFileTransfer call, e.g. when a user asks ahead of time.
func (e *Engine) CreateFileTransferRequest(ctx context.Context, nr approval.NewRequest) (*model.FileTransferRequest, error) {
	if nr.TenantID == "" || nr.UserID == "" {
		sc, err := e.resolver.Context(ctx, nr.SessionID)
		if err != nil {
			return nil, err
		}
		if nr.TenantID == "" {
			nr.TenantID = sc.TenantID
		}
		if nr.UserID == "" {
			nr.UserID = sc.UserID
		}
	}
	return e.approvals.Create(ctx, nr)
}

// ApproveFileTransfer approves a PENDING request.
func (e *Engine) ApproveFileTransfer(ctx context.Context, id, approver, note string) (*model.FileTransferRequest, error) {
	return e.approvals.Approve(ctx, id, approver, note)
}

// RejectFileTransfer rejects a PENDING request. reason is required.
func (e *Engine) RejectFileTransfer(ctx context.Context, id, approver, reason string) (*model.FileTransferRequest, error) {
	return e.approvals.Reject(ctx, id, approver, reason)
}

// CancelFileTransfer withdraws a PENDING request.
func (e *Engine) CancelFileTransfer(ctx context.Context, id, actor string) (*model.FileTransferRequest, error) {
	return e.approvals.Cancel(ctx, id, actor)
}

// GetFileTransferRequest returns a request, expiring it if overdue.
func (e *Engine) GetFileTransferRequest(ctx context.Context, id string) (*model.FileTransferRequest, error) {
	return e.approvals.Get(ctx, id)
}

// PendingFileTransfers lists open requests for a tenant, or all tenants
// when tenantID is empty.
func (e *Engine) PendingFileTransfers(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	return e.approvals.Pending(ctx, tenantID)
}
