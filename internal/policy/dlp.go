package policy

import (
	"context"
	"time"

	"github.com/ppiankov/podguard/internal/cache"
)

// DLPConfigTTL bounds how stale a tenant's DLP settings may be.
const DLPConfigTTL = 5 * time.Minute

// DLPConfig bounds content inspection cost for a tenant.
type DLPConfig struct {
	// MaxFileSizeForScanning skips inspection of larger payloads. Zero means
	// no limit.
	MaxFileSizeForScanning int64 `yaml:"max_file_size_for_scanning" json:"max_file_size_for_scanning"`
	// ScanTimeout bounds one scan. A scan that runs longer is a deny.
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout"`
	// BlockUnscannable denies payloads above MaxFileSizeForScanning instead
	// of letting them through uninspected.
	BlockUnscannable bool `yaml:"block_unscannable" json:"block_unscannable"`
}

// DefaultDLPConfig returns the built-in inspection limits.
func DefaultDLPConfig() DLPConfig {
	return DLPConfig{
		MaxFileSizeForScanning: 50 << 20,
		ScanTimeout:            5 * time.Second,
	}
}

// DLPSource resolves a tenant's DLP settings.
type DLPSource interface {
	DLPConfig(ctx context.Context, tenantID string) (DLPConfig, error)
}

// StaticDLP serves defaults with per-tenant overrides.
type StaticDLP struct {
	Default DLPConfig
	Tenants map[string]DLPConfig
}

// DLPConfig returns the override for tenantID or the default.
func (s StaticDLP) DLPConfig(_ context.Context, tenantID string) (DLPConfig, error) {
	if c, ok := s.Tenants[tenantID]; ok {
		if c.ScanTimeout <= 0 {
			c.ScanTimeout = s.Default.ScanTimeout
		}
		return c, nil
	}
	return s.Default, nil
}

// CachedDLP fronts a DLPSource with a TTL cache keyed by tenant.
type CachedDLP struct {
	src   DLPSource
	cache cache.Cache[DLPConfig]
	ttl   time.Duration
}

// NewCachedDLP wraps src. A zero ttl uses DLPConfigTTL.
func NewCachedDLP(src DLPSource, c cache.Cache[DLPConfig], ttl time.Duration) *CachedDLP {
	if ttl <= 0 {
		ttl = DLPConfigTTL
	}
	return &CachedDLP{src: src, cache: c, ttl: ttl}
}

// DLPConfig returns the cached settings, loading them on a miss.
func (c *CachedDLP) DLPConfig(ctx context.Context, tenantID string) (DLPConfig, error) {
	return cache.GetOrLoad(ctx, c.cache, "dlp:"+tenantID, c.ttl, func(ctx context.Context) (DLPConfig, error) {
		return c.src.DLPConfig(ctx, tenantID)
	})
}
