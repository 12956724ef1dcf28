// Package client talks to a podguard ContainmentService over gRPC.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/rpc"
)

// DefaultTimeout bounds every call that is made without a deadline.
const DefaultTimeout = 5 * time.Second

// Client connects to a podguard gRPC server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// New creates a gRPC client connected to the given address.
// Fail-closed: if the server cannot be reached, checks return a deny.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containment server: %w", err)
	}
	return &Client{conn: conn, timeout: DefaultTimeout}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func call[Resp any](ctx context.Context, c *Client, method string, req any) (Resp, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return rpc.Call[Resp](ctx, c.conn, method, req)
}

// unreachable is the decision returned when the server did not answer.
func unreachable(err error) model.AccessDecision {
	return model.Deny("failclosed.unreachable", fmt.Sprintf("containment server unreachable: %v", err))
}

// check runs a channel check. Fail-closed: any RPC error becomes a deny.
func check(ctx context.Context, c *Client, method string, req any) model.AccessDecision {
	d, err := call[model.AccessDecision](ctx, c, method, req)
	if err != nil {
		return unreachable(err)
	}
	return d
}

// CheckClipboardAccess asks whether a clipboard sync may happen.
func (c *Client) CheckClipboardAccess(ctx context.Context, req model.ClipboardRequest) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckClipboard, req)
}

// CheckFileTransfer asks whether a file may cross the pod boundary.
func (c *Client) CheckFileTransfer(ctx context.Context, req model.FileTransferCheck) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckFile, req)
}

// CheckNetworkAccess asks whether the pod may reach a URL.
func (c *Client) CheckNetworkAccess(ctx context.Context, req model.NetworkRequest) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckNetwork, req)
}

// CheckPeripheralAccess asks whether a device may be redirected.
func (c *Client) CheckPeripheralAccess(ctx context.Context, req model.PeripheralRequest) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckPeripheral, req)
}

// CheckPrintAccess asks whether a print job may leave the pod.
func (c *Client) CheckPrintAccess(ctx context.Context, req model.PrintRequest) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckPrint, req)
}

// CheckScreenCapture asks whether the display may be captured.
func (c *Client) CheckScreenCapture(ctx context.Context, req model.ScreenCaptureRequest) model.AccessDecision {
	return check(ctx, c, rpc.MethodCheckScreen, req)
}

// EvaluateTransfer runs the unified transfer evaluation.
// Fail-closed: any RPC error becomes a BLOCKED result.
func (c *Client) EvaluateTransfer(ctx context.Context, req model.TransferRequest) model.TransferResult {
	res, err := call[model.TransferResult](ctx, c, rpc.MethodEvaluateTransfer, req)
	if err != nil {
		d := unreachable(err)
		return model.TransferResult{Allowed: false, Action: d.Action, Reason: d.Reason}
	}
	return res
}

// CreateFileTransferRequest opens an approval request.
func (c *Client) CreateFileTransferRequest(ctx context.Context, nr approval.NewRequest) (*model.FileTransferRequest, error) {
	return call[*model.FileTransferRequest](ctx, c, rpc.MethodCreateRequest, nr)
}

// Approve approves a pending file transfer request.
func (c *Client) Approve(ctx context.Context, id, approver, note string) (*model.FileTransferRequest, error) {
	return call[*model.FileTransferRequest](ctx, c, rpc.MethodApproveRequest, rpc.RequestAction{ID: id, Actor: approver, Note: note})
}

// Reject rejects a pending file transfer request.
func (c *Client) Reject(ctx context.Context, id, approver, reason string) (*model.FileTransferRequest, error) {
	return call[*model.FileTransferRequest](ctx, c, rpc.MethodRejectRequest, rpc.RequestAction{ID: id, Actor: approver, Note: reason})
}

// Cancel withdraws a pending file transfer request.
func (c *Client) Cancel(ctx context.Context, id, actor string) (*model.FileTransferRequest, error) {
	return call[*model.FileTransferRequest](ctx, c, rpc.MethodCancelRequest, rpc.RequestAction{ID: id, Actor: actor})
}

// Get returns one file transfer request.
func (c *Client) Get(ctx context.Context, id string) (*model.FileTransferRequest, error) {
	return call[*model.FileTransferRequest](ctx, c, rpc.MethodGetRequest, rpc.RequestRef{ID: id})
}

// ListPending returns pending requests, optionally for one tenant.
func (c *Client) ListPending(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	resp, err := call[rpc.PendingList](ctx, c, rpc.MethodListPending, rpc.TenantRef{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// Watermark returns the rendered watermark for a session.
func (c *Client) Watermark(ctx context.Context, sessionID string) (model.WatermarkConfig, error) {
	return call[model.WatermarkConfig](ctx, c, rpc.MethodWatermark, rpc.SessionRef{SessionID: sessionID})
}

// TransferAttempts returns one page of a session's transfer attempts.
func (c *Client) TransferAttempts(ctx context.Context, sessionID string, f model.AttemptFilter) (model.AttemptPage, error) {
	return call[model.AttemptPage](ctx, c, rpc.MethodTransferAttempts, rpc.AttemptsQuery{SessionID: sessionID, Filter: f})
}

// Scan inspects content for sensitive data and malware.
func (c *Client) Scan(ctx context.Context, content []byte, fileName string) (rpc.ScanReport, error) {
	return call[rpc.ScanReport](ctx, c, rpc.MethodScanContent, rpc.ScanRequest{Content: content, FileName: fileName})
}

// RegisterSession records a session started by the gateway.
func (c *Client) RegisterSession(ctx context.Context, s model.Session) error {
	_, err := call[rpc.Empty](ctx, c, rpc.MethodRegisterSession, s)
	return err
}

// EndSession ends a session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	_, err := call[rpc.Empty](ctx, c, rpc.MethodEndSession, rpc.SessionRef{SessionID: sessionID})
	return err
}
