package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/service"
)

const testPolicies = `
default_policy_id: std
policies:
  - id: std
    tenant_id: acme
    clipboard_policy: BIDIRECTIONAL
    file_download_policy: APPROVAL_REQUIRED
    usb_policy: STORAGE_BLOCKED
`

func newTestServer(t *testing.T) *Server {
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
		t.Fatalf("failed to create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })

	err = rt.Engine().RegisterSession(context.Background(), &model.Session{
		ID: "s1", TenantID: "acme", UserID: "dana", PolicyID: "std",
	})
	if err != nil {
		t.Fatalf("register session: %v", err)
	}
	return New(rt.Engine(), Config{Version: "test"}, nil)
}

func TestCheckClipboardAllowed(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleCheckClipboard(context.Background(), &mcpsdk.CallToolRequest{}, ClipboardInput{
		SessionID: "s1",
		Direction: "outbound",
		Content:   "meeting at 3pm",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got error result: %s", out.Reason)
	}
	if !out.Allowed {
		t.Fatalf("expected allowed, got %s", out.Rule)
	}
}

func TestCheckClipboardBlocksCard(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleCheckClipboard(context.Background(), &mcpsdk.CallToolRequest{}, ClipboardInput{
		SessionID: "s1",
		Direction: "OUTBOUND",
		Content:   "card 4111 1111 1111 1111",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for sensitive clipboard content")
	}
	if out.Allowed {
		t.Fatal("expected deny")
	}
	if len(out.SensitiveDataTypes) == 0 {
		t.Error("expected sensitive data types on the decision")
	}
}

func TestCheckPeripheralUSBStorage(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleCheckPeripheral(context.Background(), &mcpsdk.CallToolRequest{}, PeripheralInput{
		SessionID:   "s1",
		Kind:        "USB",
		DeviceClass: "mass_storage",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError || out.Allowed {
		t.Fatalf("expected USB storage blocked, got %+v", out)
	}
}

func TestScanTool(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleScan(context.Background(), &mcpsdk.CallToolRequest{}, ScanInput{
		Content: "ssn 123-45-6789",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Found {
		t.Fatal("expected sensitive data found")
	}
	if !out.Clean {
		t.Error("expected no malware")
	}
	if out.ContentHash == "" {
		t.Error("expected content hash")
	}

	found := false
	for _, c := range out.Categories {
		if c == "pii" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected pii category, got %v", out.Categories)
	}
}

func TestApprovalTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, d, err := s.handleCheckFile(ctx, &mcpsdk.CallToolRequest{}, FileInput{
		SessionID: "s1",
		Direction: "OUTBOUND",
		FileName:  "plan.docx",
		Size:      2048,
		Reason:    "share with vendor",
	})
	if err != nil {
		t.Fatalf("check file: %v", err)
	}
	if !d.RequiresApproval || d.RequestID == "" {
		t.Fatalf("expected approval required, got %+v", d)
	}

	_, pending, err := s.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{})
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending.Requests) != 1 || pending.Requests[0].ID != d.RequestID {
		t.Fatalf("expected request %s pending, got %+v", d.RequestID, pending.Requests)
	}
	if pending.Requests[0].Reason != "share with vendor" {
		t.Errorf("expected reason carried, got %q", pending.Requests[0].Reason)
	}

	if _, _, err := s.handleReject(ctx, &mcpsdk.CallToolRequest{}, DecideInput{ID: d.RequestID}); err == nil {
		t.Error("expected reject without reason to fail")
	}

	_, out, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, DecideInput{ID: d.RequestID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != string(model.TransferApproved) {
		t.Errorf("expected APPROVED, got %s", out.Status)
	}
	if out.By != "mcp" {
		t.Errorf("expected default actor mcp, got %q", out.By)
	}

	result, res, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, EvaluateInput{
		SessionID:         "s1",
		TransferType:      "file_download",
		FileName:          "plan.docx",
		ApprovalRequestID: d.RequestID,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected override allowed, got %s", res.Reason)
	}
	if res.Action != model.ActionOverrideApproved {
		t.Errorf("expected OVERRIDE_APPROVED, got %s", res.Action)
	}

	_, page, err := s.handleAttempts(ctx, &mcpsdk.CallToolRequest{}, AttemptsInput{SessionID: "s1"})
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if page.Total != 1 || page.Attempts[0].Action != string(model.ActionOverrideApproved) {
		t.Errorf("unexpected attempts page: %+v", page)
	}
}

func TestWatermarkTool(t *testing.T) {
	s := newTestServer(t)

	_, wm, err := s.handleWatermark(context.Background(), &mcpsdk.CallToolRequest{}, SessionInput{SessionID: "s1"})
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !wm.Enabled {
		t.Fatal("expected watermark enabled by default")
	}

	if _, _, err := s.handleWatermark(context.Background(), &mcpsdk.CallToolRequest{}, SessionInput{SessionID: "ghost"}); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestUnknownSessionDenied(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleCheckNetwork(context.Background(), &mcpsdk.CallToolRequest{}, NetworkInput{
		SessionID: "ghost",
		URL:       "https://example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError || out.Allowed {
		t.Fatal("expected deny for unknown session")
	}
}
