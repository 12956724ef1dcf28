package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/podguard/internal/fingerprint"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
dlp:
  default:
    scan_timeout: 2s
    max_file_size_for_scanning: 1048576
  tenants:
    acme:
      block_unscannable: true
hash_algorithm: blake3
publishers:
  kafka:
    brokers: ["kafka:9092"]
    topic_prefix: podguard.
  webhooks:
    - url: https://hooks.example.com/x
      format: slack
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.DLP.Default.ScanTimeout)
	assert.Equal(t, int64(1<<20), cfg.DLP.Default.MaxFileSizeForScanning)
	assert.True(t, cfg.DLP.Tenants["acme"].BlockUnscannable)
	assert.Equal(t, fingerprint.BLAKE3, cfg.Hash)
	require.NotNil(t, cfg.Publishers.Kafka)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Publishers.Kafka.Brokers)
	require.Len(t, cfg.Publishers.Webhooks, 1)

	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Cache.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Approvals.Expiry)
	assert.Equal(t, 3, cfg.Escalation.Block)
}

func TestTenantOverrideInheritsTimeout(t *testing.T) {
	path := writeConfig(t, `
dlp:
  tenants:
    acme:
      max_file_size_for_scanning: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	got, err := cfg.DLPSource().DLPConfig(t.Context(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.MaxFileSizeForScanning)
	assert.Equal(t, cfg.DLP.Default.ScanTimeout, got.ScanTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "server: [", "parse config"},
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"hash", "hash_algorithm: md5\n", "unknown hash algorithm"},
		{"kafka brokers", "publishers:\n  kafka:\n    topic_prefix: x\n", "brokers"},
		{"nats url", "publishers:\n  nats:\n    subject_prefix: x\n", "nats.url"},
		{"webhook url", "publishers:\n  webhooks:\n    - format: slack\n", "webhooks[0].url"},
		{"timeout", "dlp:\n  default:\n    scan_timeout: 0s\n", "scan_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
