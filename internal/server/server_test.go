package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/rpc"
	"github.com/ppiankov/podguard/internal/service"
)

const testPolicies = `
default_policy_id: std
policies:
  - id: std
    tenant_id: acme
    clipboard_policy: READ_ONLY
    file_download_policy: APPROVAL_REQUIRED
    network_policy: MONITORED
`

// testServer spins up an in-process gRPC server on a random port and
// returns a client connection with session s1 registered.
func testServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Files.Policies = filepath.Join(dir, "policies.yaml")
	cfg.Storage.ApprovalDir = filepath.Join(dir, "approvals")
	if err := os.WriteFile(cfg.Files.Policies, []byte(testPolicies), 0644); err != nil {
		t.Fatalf("write policies: %v", err)
	}

	rt, err := service.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}

	srv := New(rt.Engine(), 0, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		rt.Close()
	})

	_, err = rpc.Call[rpc.Empty](context.Background(), conn, rpc.MethodRegisterSession, model.Session{
		ID: "s1", TenantID: "acme", UserID: "alice", PolicyID: "std", SourceIP: "198.51.100.4",
	})
	if err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	return conn
}

func TestCheckClipboardOverGRPC(t *testing.T) {
	conn := testServer(t)
	ctx := context.Background()

	in, err := rpc.Call[model.AccessDecision](ctx, conn, rpc.MethodCheckClipboard, model.ClipboardRequest{
		SessionID: "s1", Direction: model.Inbound, ContentType: "text/plain", Size: 5,
	})
	if err != nil {
		t.Fatalf("CheckClipboardAccess inbound: %v", err)
	}
	if !in.Allowed {
		t.Errorf("expected inbound clipboard allowed, got %s: %s", in.Rule, in.Reason)
	}

	out, err := rpc.Call[model.AccessDecision](ctx, conn, rpc.MethodCheckClipboard, model.ClipboardRequest{
		SessionID: "s1", Direction: model.Outbound, ContentType: "text/plain", Size: 5,
	})
	if err != nil {
		t.Fatalf("CheckClipboardAccess outbound: %v", err)
	}
	if out.Allowed {
		t.Error("expected outbound clipboard denied under READ_ONLY")
	}
	if out.Action != model.ActionBlocked {
		t.Errorf("expected action BLOCKED, got %s", out.Action)
	}
}

func TestUnknownSessionIsDeniedNotErrored(t *testing.T) {
	conn := testServer(t)

	d, err := rpc.Call[model.AccessDecision](context.Background(), conn, rpc.MethodCheckNetwork, model.NetworkRequest{
		SessionID: "ghost", URL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("CheckNetworkAccess: %v", err)
	}
	if d.Allowed {
		t.Error("expected deny for unknown session")
	}
}

func TestEvaluateTransferCarriesContent(t *testing.T) {
	conn := testServer(t)
	ctx := context.Background()

	res, err := rpc.Call[model.TransferResult](ctx, conn, rpc.MethodEvaluateTransfer, model.TransferRequest{
		SessionID:    "s1",
		TransferType: model.TransferClipboardText,
		Direction:    model.Inbound,
		Content:      []byte("ssn 123-45-6789"),
	})
	if err != nil {
		t.Fatalf("EvaluateTransfer: %v", err)
	}
	if res.ContentHash == "" {
		t.Error("expected content hash")
	}
	if res.AttemptID == "" {
		t.Error("expected attempt id")
	}

	page, err := rpc.Call[model.AttemptPage](ctx, conn, rpc.MethodTransferAttempts, rpc.AttemptsQuery{SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetTransferAttempts: %v", err)
	}
	if page.Total != 1 || len(page.Attempts) != 1 {
		t.Fatalf("expected 1 attempt, got total=%d len=%d", page.Total, len(page.Attempts))
	}
	if page.Attempts[0].ContentHash != res.ContentHash {
		t.Errorf("attempt hash %q != result hash %q", page.Attempts[0].ContentHash, res.ContentHash)
	}
}

func TestApprovalFlowOverGRPC(t *testing.T) {
	conn := testServer(t)
	ctx := context.Background()

	d, err := rpc.Call[model.AccessDecision](ctx, conn, rpc.MethodCheckFile, model.FileTransferCheck{
		SessionID: "s1", Direction: model.Outbound, FileName: "report.pdf", Size: 1024,
	})
	if err != nil {
		t.Fatalf("CheckFileTransfer: %v", err)
	}
	if d.Allowed || !d.RequiresApproval || d.RequestID == "" {
		t.Fatalf("expected pending approval, got %+v", d)
	}

	pending, err := rpc.Call[rpc.PendingList](ctx, conn, rpc.MethodListPending, rpc.TenantRef{TenantID: "acme"})
	if err != nil {
		t.Fatalf("ListPendingFileTransfers: %v", err)
	}
	if len(pending.Requests) != 1 || pending.Requests[0].ID != d.RequestID {
		t.Fatalf("expected request %s pending, got %+v", d.RequestID, pending.Requests)
	}

	approved, err := rpc.Call[model.FileTransferRequest](ctx, conn, rpc.MethodApproveRequest, rpc.RequestAction{
		ID: d.RequestID, Actor: "secops", Note: "quarterly report",
	})
	if err != nil {
		t.Fatalf("ApproveFileTransfer: %v", err)
	}
	if approved.Status != model.TransferApproved || approved.ApprovedBy != "secops" {
		t.Errorf("unexpected approved request: %+v", approved)
	}

	res, err := rpc.Call[model.TransferResult](ctx, conn, rpc.MethodEvaluateTransfer, model.TransferRequest{
		SessionID:         "s1",
		TransferType:      model.TransferFileDownload,
		Direction:         model.Outbound,
		FileName:          "report.pdf",
		Size:              1024,
		ApprovalRequestID: d.RequestID,
	})
	if err != nil {
		t.Fatalf("EvaluateTransfer: %v", err)
	}
	if !res.Allowed || res.Action != model.ActionOverrideApproved {
		t.Errorf("expected override approval, got %+v", res)
	}

	// approving again is a state error
	_, err = rpc.Call[model.FileTransferRequest](ctx, conn, rpc.MethodApproveRequest, rpc.RequestAction{
		ID: d.RequestID, Actor: "secops",
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition, got %v", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	conn := testServer(t)
	ctx := context.Background()

	req, err := rpc.Call[model.FileTransferRequest](ctx, conn, rpc.MethodCreateRequest, approval.NewRequest{
		SessionID: "s1", Direction: model.Outbound, FileName: "data.csv", Size: 10, Reason: "audit",
	})
	if err != nil {
		t.Fatalf("CreateFileTransferRequest: %v", err)
	}
	if req.TenantID != "acme" || req.UserID != "alice" {
		t.Errorf("expected identity filled from session, got tenant=%q user=%q", req.TenantID, req.UserID)
	}

	_, err = rpc.Call[model.FileTransferRequest](ctx, conn, rpc.MethodRejectRequest, rpc.RequestAction{ID: req.ID, Actor: "secops"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument without reason, got %v", err)
	}

	rejected, err := rpc.Call[model.FileTransferRequest](ctx, conn, rpc.MethodRejectRequest, rpc.RequestAction{
		ID: req.ID, Actor: "secops", Note: "not needed",
	})
	if err != nil {
		t.Fatalf("RejectFileTransfer: %v", err)
	}
	if rejected.Status != model.TransferRejected || rejected.RejectionReason != "not needed" {
		t.Errorf("unexpected rejected request: %+v", rejected)
	}
}

func TestGetUnknownRequestIsNotFound(t *testing.T) {
	conn := testServer(t)

	_, err := rpc.Call[model.FileTransferRequest](context.Background(), conn, rpc.MethodGetRequest, rpc.RequestRef{ID: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestScanContentOverGRPC(t *testing.T) {
	conn := testServer(t)

	report, err := rpc.Call[rpc.ScanReport](context.Background(), conn, rpc.MethodScanContent, rpc.ScanRequest{
		Content: []byte("card 4111 1111 1111 1111"),
	})
	if err != nil {
		t.Fatalf("ScanContent: %v", err)
	}
	if !report.Sensitive.Found {
		t.Error("expected sensitive data")
	}
	if !report.Malware.Clean {
		t.Error("expected clean malware result")
	}
	if report.ContentHash == "" {
		t.Error("expected content hash")
	}
}

func TestWatermarkAndEndSession(t *testing.T) {
	conn := testServer(t)
	ctx := context.Background()

	wm, err := rpc.Call[model.WatermarkConfig](ctx, conn, rpc.MethodWatermark, rpc.SessionRef{SessionID: "s1"})
	if err != nil {
		t.Fatalf("GenerateWatermarkConfig: %v", err)
	}
	if !wm.Enabled || wm.Text == "" {
		t.Errorf("expected enabled watermark, got %+v", wm)
	}

	if _, err := rpc.Call[rpc.Empty](ctx, conn, rpc.MethodEndSession, rpc.SessionRef{SessionID: "s1"}); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	d, err := rpc.Call[model.AccessDecision](ctx, conn, rpc.MethodCheckScreen, model.ScreenCaptureRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("CheckScreenCapture: %v", err)
	}
	if d.Allowed {
		t.Error("expected deny after session ended")
	}
}

func TestRegisterSessionValidates(t *testing.T) {
	conn := testServer(t)

	_, err := rpc.Call[rpc.Empty](context.Background(), conn, rpc.MethodRegisterSession, model.Session{ID: "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestConcurrentChecks(t *testing.T) {
	conn := testServer(t)

	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rpc.Call[model.AccessDecision](context.Background(), conn, rpc.MethodCheckNetwork, model.NetworkRequest{
				SessionID: "s1", URL: "https://example.com/",
			})
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent check error: %v", err)
	}
}

type countingReloader struct{ n atomic.Int32 }

func (c *countingReloader) Reload() error {
	c.n.Add(1)
	return nil
}

func TestReloaderTriggersOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	target := &countingReloader{}
	r, err := NewReloader(target, []string{path, "", filepath.Join(t.TempDir(), "absent.yaml")}, nil)
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	if len(r.Paths()) != 1 {
		t.Fatalf("expected 1 watched path, got %v", r.Paths())
	}
	r.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Burst of writes collapses into one reload
	for i := 0; i < 3; i++ {
		os.WriteFile(path, []byte("policies: []\n# touch\n"), 0644)
	}

	deadline := time.Now().Add(2 * time.Second)
	for target.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if target.n.Load() == 0 {
		t.Fatal("expected reload after write")
	}
}
