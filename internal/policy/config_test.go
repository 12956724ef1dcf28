package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/podguard/internal/cache"
	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/model"
)

const policiesYAML = `default_policy_id: standard
policies:
  - id: standard
    tenant_id: acme
    name: Standard
    clipboard_policy: BIDIRECTIONAL
    network_policy: RESTRICTED
    allowed_domains: ["*.internal-tool.com"]
  - id: lockdown
    tenant_id: acme
    name: Lockdown
    clipboard_policy: BLOCKED
    file_download_policy: BLOCKED
    file_upload_policy: BLOCKED
    printing_policy: BLOCKED
    usb_policy: BLOCKED
    webcam_policy: BLOCKED
    microphone_policy: BLOCKED
    network_policy: BLOCKED
    watermark:
      text: CONFIDENTIAL
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigWithHash(t *testing.T) {
	path := writeFile(t, policiesYAML)

	cfg, hash, err := LoadConfigWithHash(path)
	require.NoError(t, err)
	require.Len(t, cfg.Policies, 2)
	assert.Equal(t, "standard", cfg.DefaultPolicyID)
	assert.True(t, strings.HasPrefix(hash, "sha256:"))

	std := cfg.Policies[0]
	assert.Equal(t, model.ClipboardBidirectional, std.ClipboardPolicy)
	assert.Equal(t, model.NetworkRestricted, std.NetworkPolicy)
	// Unspecified fields keep the baseline.
	assert.Equal(t, model.USBStorageBlocked, std.USBPolicy)
	assert.Equal(t, model.FileTransferLoggedOnly, std.FileUploadPolicy)

	lock := cfg.Policies[1]
	assert.Equal(t, "CONFIDENTIAL", lock.Watermark.Text)
	assert.True(t, lock.Watermark.Enabled, "nested fields merge over the baseline")

	_, hash2, err := LoadConfigWithHash(path)
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, hash, err := LoadConfigWithHash(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, "default", cfg.DefaultPolicyID)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := writeFile(t, `policies:
  - id: p1
    clipboard_policy: SOMETIMES
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clipboard_policy")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "policies:\n  - name: x\n", "id is required"},
		{"duplicate id", "policies:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"bad default", "default_policy_id: zzz\npolicies:\n  - id: a\n", "does not name a policy"},
		{"bad yaml", "policies: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreGetPolicy(t *testing.T) {
	cfg, err := Parse([]byte(policiesYAML))
	require.NoError(t, err)
	s := NewStore(cfg, "sha256:x")
	ctx := context.Background()

	p, err := s.GetPolicy(ctx, "lockdown")
	require.NoError(t, err)
	assert.Equal(t, model.ClipboardBlocked, p.ClipboardPolicy)

	p.ClipboardPolicy = model.ClipboardBidirectional
	again, err := s.GetPolicy(ctx, "lockdown")
	require.NoError(t, err)
	assert.Equal(t, model.ClipboardBlocked, again.ClipboardPolicy, "callers get a copy")

	def, err := s.GetPolicy(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "standard", def.ID)

	_, err = s.GetPolicy(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, "sha256:x", s.Hash())
	assert.ElementsMatch(t, []string{"standard", "lockdown"}, s.IDs())
}

func TestStoreReplace(t *testing.T) {
	s := NewStore(nil, "")
	_, err := s.GetPolicy(context.Background(), "default")
	require.NoError(t, err)

	cfg, err := Parse([]byte(policiesYAML))
	require.NoError(t, err)
	s.Replace(cfg, "sha256:new")

	_, err = s.GetPolicy(context.Background(), "default")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "sha256:new", s.Hash())
}

type countingDLP struct {
	calls int
	cfg   DLPConfig
}

func (c *countingDLP) DLPConfig(context.Context, string) (DLPConfig, error) {
	c.calls++
	return c.cfg, nil
}

func TestStaticDLP(t *testing.T) {
	s := StaticDLP{
		Default: DefaultDLPConfig(),
		Tenants: map[string]DLPConfig{
			"acme": {MaxFileSizeForScanning: 1024, BlockUnscannable: true},
		},
	}

	c, err := s.DLPConfig(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), c.MaxFileSizeForScanning)
	assert.True(t, c.BlockUnscannable)
	assert.Equal(t, 5*time.Second, c.ScanTimeout, "zero timeout inherits the default")

	c, err = s.DLPConfig(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, DefaultDLPConfig(), c)
}

func TestCachedDLPExpires(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src := &countingDLP{cfg: DefaultDLPConfig()}
	c := NewCachedDLP(src, cache.NewMemory[DLPConfig]("dlp", clk), 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.DLPConfig(ctx, "acme")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls)

	clk.Advance(DLPConfigTTL)
	_, err := c.DLPConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestDefaultConfigYAMLRoundTrips(t *testing.T) {
	data, err := DefaultConfigYAML()
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, model.DefaultPolicy(), cfg.Policies[0])
	assert.Equal(t, "default", cfg.DefaultPolicyID)
}
