package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/podguard/internal/audit"
	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/model"
)

const strictPolicies = `
default_policy_id: strict
policies:
  - id: strict
    tenant_id: acme
    clipboard_policy: BLOCKED
    network_policy: MONITORED
`

const openPolicies = `
default_policy_id: strict
policies:
  - id: strict
    tenant_id: acme
    clipboard_policy: BIDIRECTIONAL
    network_policy: MONITORED
`

// testConfig lays out every file the runtime reads under one temp dir.
func testConfig(t *testing.T, withDB bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Files = config.FilesConfig{
		Policies:   filepath.Join(dir, "policies.yaml"),
		Denylist:   filepath.Join(dir, "denylist.yaml"),
		Patterns:   filepath.Join(dir, "patterns.yaml"),
		Signatures: filepath.Join(dir, "signatures.yaml"),
	}
	cfg.Storage.ApprovalDir = filepath.Join(dir, "approvals")
	cfg.Storage.AuditLogPath = filepath.Join(dir, "audit.jsonl")
	if withDB {
		cfg.Storage.DatabasePath = filepath.Join(dir, "podguard.db")
	}
	require.NoError(t, os.WriteFile(cfg.Files.Policies, []byte(strictPolicies), 0o600))
	return cfg
}

func newRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func register(t *testing.T, rt *Runtime) {
	t.Helper()
	require.NoError(t, rt.Engine().RegisterSession(context.Background(), &model.Session{
		ID: "s1", TenantID: "acme", UserID: "alice", PolicyID: "strict",
	}))
}

func TestRuntimeWithDatabase(t *testing.T) {
	cfg := testConfig(t, true)
	rt := newRuntime(t, cfg)
	register(t, rt)
	ctx := context.Background()

	d, err := rt.Engine().CheckClipboardAccess(ctx, model.ClipboardRequest{SessionID: "s1", Direction: model.Outbound, Size: 3})
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	res, err := rt.Engine().EvaluateTransfer(ctx, model.TransferRequest{
		SessionID: "s1", TransferType: model.TransferClipboardText, Direction: model.Outbound, Content: []byte("abc"),
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	page, err := rt.Engine().GetTransferAttempts(ctx, "s1", model.AttemptFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, rt.Close())
	vr := audit.Verify(cfg.Storage.AuditLogPath)
	assert.True(t, vr.Valid, vr.Error)
	assert.GreaterOrEqual(t, vr.Lines, 2)
}

func TestRuntimeInMemory(t *testing.T) {
	rt := newRuntime(t, testConfig(t, false))
	register(t, rt)

	d, err := rt.Engine().CheckNetworkAccess(context.Background(), model.NetworkRequest{SessionID: "s1", URL: "https://pastebin.com/x"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "network.denylist", d.Rule)
}

func TestReloadSwapsRules(t *testing.T) {
	cfg := testConfig(t, false)
	rt := newRuntime(t, cfg)
	before := rt.PolicyHash()

	require.NoError(t, os.WriteFile(cfg.Files.Policies, []byte(openPolicies), 0o600))
	require.NoError(t, os.WriteFile(cfg.Files.Denylist, []byte("domains:\n  - \"*.exfil.example\"\n"), 0o600))
	require.NoError(t, rt.Reload())

	assert.NotEqual(t, before, rt.PolicyHash())
	register(t, rt)

	ctx := context.Background()
	d, err := rt.Engine().CheckClipboardAccess(ctx, model.ClipboardRequest{SessionID: "s1", Direction: model.Outbound, Size: 3})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = rt.Engine().CheckNetworkAccess(ctx, model.NetworkRequest{SessionID: "s1", URL: "https://up.exfil.example/"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = rt.Engine().CheckNetworkAccess(ctx, model.NetworkRequest{SessionID: "s1", URL: "https://pastebin.com/"})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "reloaded denylist replaces the defaults")
}

func TestReloadKeepsRulesOnError(t *testing.T) {
	cfg := testConfig(t, false)
	rt := newRuntime(t, cfg)
	before := rt.PolicyHash()

	require.NoError(t, os.WriteFile(cfg.Files.Patterns, []byte("extra_patterns:\n  - name: bad\n    regex: \"(\"\n"), 0o600))
	require.Error(t, rt.Reload())
	assert.Equal(t, before, rt.PolicyHash())
}

func TestNewRejectsBadPolicies(t *testing.T) {
	cfg := testConfig(t, false)
	require.NoError(t, os.WriteFile(cfg.Files.Policies, []byte("policies:\n  - id: x\n    usb_policy: SOMETIMES\n"), 0o600))

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usb_policy")
}
