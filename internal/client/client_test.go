package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"

	"github.com/ppiankov/podguard/internal/approval"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/server"
	"github.com/ppiankov/podguard/internal/service"
)

const testPolicies = `
default_policy_id: std
policies:
  - id: std
    tenant_id: acme
    file_upload_policy: APPROVAL_REQUIRED
    network_policy: RESTRICTED
    allowed_domains: ["*.corp.example"]
`

// startTestServer creates a server and returns its address.
func startTestServer(t *testing.T) string {
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
	srv := server.New(rt.Engine(), 0, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	t.Cleanup(func() {
		srv.GracefulStop()
		rt.Close()
	})
	return lis.Addr().String()
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientNetworkChecks(t *testing.T) {
	c := newClient(t, startTestServer(t))
	ctx := context.Background()

	if err := c.RegisterSession(ctx, model.Session{ID: "s1", TenantID: "acme", UserID: "bob", PolicyID: "std"}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}

	d := c.CheckNetworkAccess(ctx, model.NetworkRequest{SessionID: "s1", URL: "https://git.corp.example/repo"})
	if !d.Allowed {
		t.Errorf("expected allowed for corp domain, got %s: %s", d.Rule, d.Reason)
	}

	d = c.CheckNetworkAccess(ctx, model.NetworkRequest{SessionID: "s1", URL: "https://example.org/"})
	if d.Allowed {
		t.Error("expected deny outside allowed domains")
	}
	if d.Rule != "network.domain_not_allowed" {
		t.Errorf("expected network.domain_not_allowed, got %q", d.Rule)
	}
}

func TestClientFailClosed(t *testing.T) {
	// Connect to a port that doesn't have a server
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	c := newClient(t, addr)
	ctx := context.Background()

	d := c.CheckClipboardAccess(ctx, model.ClipboardRequest{SessionID: "s1", Direction: model.Inbound, Size: 1})
	if d.Allowed {
		t.Error("expected deny (fail-closed)")
	}
	if d.Rule != "failclosed.unreachable" {
		t.Errorf("expected failclosed.unreachable rule, got %q", d.Rule)
	}

	res := c.EvaluateTransfer(ctx, model.TransferRequest{SessionID: "s1", TransferType: model.TransferPrint})
	if res.Allowed || res.Action != model.ActionBlocked {
		t.Errorf("expected blocked transfer (fail-closed), got %+v", res)
	}

	if _, err := c.ListPending(ctx, ""); err == nil {
		t.Error("expected error from ListPending without server")
	}
}

func TestClientApproveFlow(t *testing.T) {
	c := newClient(t, startTestServer(t))
	ctx := context.Background()

	if err := c.RegisterSession(ctx, model.Session{ID: "s1", TenantID: "acme", UserID: "bob", PolicyID: "std"}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}

	d := c.CheckFileTransfer(ctx, model.FileTransferCheck{
		SessionID: "s1", Direction: model.Inbound, FileName: "notes.txt", Size: 12,
	})
	if !d.RequiresApproval || d.RequestID == "" {
		t.Fatalf("expected approval required, got %+v", d)
	}

	list, err := c.ListPending(ctx, "acme")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(list))
	}

	r, err := c.Approve(ctx, d.RequestID, "lead", "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if r.Status != model.TransferApproved {
		t.Errorf("expected APPROVED, got %s", r.Status)
	}

	got, err := c.Get(ctx, d.RequestID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ApprovedBy != "lead" {
		t.Errorf("expected approved_by lead, got %q", got.ApprovedBy)
	}

	list, err = c.ListPending(ctx, "acme")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no pending requests after approval, got %d", len(list))
	}
}

func TestClientCancel(t *testing.T) {
	c := newClient(t, startTestServer(t))
	ctx := context.Background()

	r, err := c.CreateFileTransferRequest(ctx, approval.NewRequest{
		SessionID: "s9", TenantID: "acme", UserID: "carol", Direction: model.Outbound, FileName: "x.bin", Size: 1,
	})
	if err != nil {
		t.Fatalf("CreateFileTransferRequest: %v", err)
	}

	r, err = c.Cancel(ctx, r.ID, "carol")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if r.Status != model.TransferCancelled || r.CancelledBy != "carol" {
		t.Errorf("unexpected cancelled request: %+v", r)
	}
}

func TestClientAgainstBareServer(t *testing.T) {
	// A server without the containment service answers Unimplemented
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	go gs.Serve(lis)
	defer gs.GracefulStop()

	c := newClient(t, lis.Addr().String())
	d := c.CheckScreenCapture(context.Background(), model.ScreenCaptureRequest{SessionID: "s1"})
	if d.Allowed {
		t.Error("expected deny (unimplemented = fail-closed)")
	}
}
