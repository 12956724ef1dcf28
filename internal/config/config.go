// Package config loads the podguard service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/fingerprint"
	"github.com/ppiankov/podguard/internal/policy"
	"github.com/ppiankov/podguard/internal/ratelimit"
	"github.com/ppiankov/podguard/internal/violation"
)

// DefaultPort is the gRPC listen port when none is configured.
const DefaultPort = 9460

// Config is the service configuration file.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Storage    StorageConfig         `yaml:"storage"`
	Files      FilesConfig           `yaml:"files"`
	Cache      CacheConfig           `yaml:"cache"`
	DLP        DLPSettings           `yaml:"dlp"`
	Approvals  ApprovalConfig        `yaml:"approvals"`
	Escalation violation.Thresholds  `yaml:"escalation"`
	RateLimits ratelimit.Config      `yaml:"rate_limits,omitempty"`
	Hash       fingerprint.Algorithm `yaml:"hash_algorithm"`
	Publishers PublisherConfig       `yaml:"publishers"`
}

// ServerConfig controls the listeners.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// StorageConfig locates durable state. An empty DatabasePath keeps
// violations, events and attempts in memory.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	AuditLogPath string `yaml:"audit_log_path"`
	ApprovalDir  string `yaml:"approval_dir"`
}

// FilesConfig lists the hot-reloaded rule files.
type FilesConfig struct {
	Policies   string `yaml:"policies"`
	Denylist   string `yaml:"denylist"`
	Patterns   string `yaml:"patterns"`
	Signatures string `yaml:"signatures"`
}

// CacheConfig bounds cache staleness.
type CacheConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
	DLPTTL     time.Duration `yaml:"dlp_ttl"`
}

// DLPSettings holds default inspection limits and per-tenant overrides.
type DLPSettings struct {
	Default policy.DLPConfig            `yaml:"default"`
	Tenants map[string]policy.DLPConfig `yaml:"tenants"`
}

// ApprovalConfig controls the file transfer approval workflow.
type ApprovalConfig struct {
	Expiry time.Duration `yaml:"expiry"`
}

// PublisherConfig lists notification backends. Every configured backend
// receives every event.
type PublisherConfig struct {
	QueueSize int                 `yaml:"queue_size"`
	Kafka     *alert.KafkaConfig  `yaml:"kafka,omitempty"`
	NATS      *alert.NATSConfig   `yaml:"nats,omitempty"`
	Webhooks  []alert.AlertConfig `yaml:"webhooks,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort},
		Cache: CacheConfig{
			SessionTTL: 5 * time.Minute,
			DLPTTL:     policy.DLPConfigTTL,
		},
		DLP:        DLPSettings{Default: policy.DefaultDLPConfig()},
		Approvals:  ApprovalConfig{Expiry: 24 * time.Hour},
		Escalation: violation.DefaultThresholds(),
		Hash:       fingerprint.SHA256,
		Publishers: PublisherConfig{QueueSize: 1024},
	}
}

// DefaultPath returns ~/.podguard/config.yaml, or "" when there is no home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".podguard", "config.yaml")
}

// Load reads the config at path over the defaults. Empty path falls back
// to DefaultPath. A missing file returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.SessionTTL <= 0 {
		return fmt.Errorf("cache.session_ttl must be positive")
	}
	if c.Cache.DLPTTL <= 0 {
		return fmt.Errorf("cache.dlp_ttl must be positive")
	}
	if c.DLP.Default.ScanTimeout <= 0 {
		return fmt.Errorf("dlp.default.scan_timeout must be positive")
	}
	if c.Approvals.Expiry <= 0 {
		return fmt.Errorf("approvals.expiry must be positive")
	}
	if _, err := fingerprint.New(c.Hash); err != nil {
		return err
	}
	if err := c.RateLimits.Validate(); err != nil {
		return err
	}
	if k := c.Publishers.Kafka; k != nil && len(k.Brokers) == 0 {
		return fmt.Errorf("publishers.kafka.brokers is required")
	}
	if n := c.Publishers.NATS; n != nil && n.URL == "" {
		return fmt.Errorf("publishers.nats.url is required")
	}
	for i, w := range c.Publishers.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("publishers.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// DLPSource returns the static DLP settings as a policy.DLPSource.
func (c *Config) DLPSource() policy.StaticDLP {
	return policy.StaticDLP{Default: c.DLP.Default, Tenants: c.DLP.Tenants}
}
