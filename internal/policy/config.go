package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/podguard/internal/model"
)

// PolicyConfig is the policies file: a set of pod security policies, one of
// which may be marked as the fallback for sessions that name no policy.
type PolicyConfig struct {
	DefaultPolicyID string                     `yaml:"default_policy_id"`
	Policies        []*model.PodSecurityPolicy `yaml:"-"`
}

type rawPolicyConfig struct {
	DefaultPolicyID string      `yaml:"default_policy_id"`
	Policies        []yaml.Node `yaml:"policies"`
}

// DefaultConfig returns a config holding only the built-in baseline policy.
func DefaultConfig() *PolicyConfig {
	p := model.DefaultPolicy()
	return &PolicyConfig{
		DefaultPolicyID: p.ID,
		Policies:        []*model.PodSecurityPolicy{p},
	}
}

// LoadConfig loads policies from a YAML file.
// Empty path falls back to ~/.podguard/policies.yaml.
// Missing file returns defaults. Invalid YAML or an invalid policy returns an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policies and returns the SHA-256 hash of the raw
// YAML bytes on disk. When no file exists (defaults used), the hash is the
// SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), hashOf(nil), nil
		}
		path = filepath.Join(home, ".podguard", "policies.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

// Parse decodes a policies document. Each policy starts from the built-in
// baseline, so YAML overwrites only the fields it specifies.
func Parse(data []byte) (*PolicyConfig, error) {
	var raw rawPolicyConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}

	cfg := &PolicyConfig{DefaultPolicyID: raw.DefaultPolicyID}
	seen := make(map[string]bool)
	for i := range raw.Policies {
		p := model.DefaultPolicy()
		p.ID = ""
		p.Name = ""
		if err := raw.Policies[i].Decode(p); err != nil {
			return nil, fmt.Errorf("failed to parse policies[%d]: %w", i, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("policies[%d]: id is required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("policies[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return nil, err
		}
		cfg.Policies = append(cfg.Policies, p)
	}

	if len(cfg.Policies) == 0 {
		return DefaultConfig(), nil
	}
	if cfg.DefaultPolicyID != "" && !seen[cfg.DefaultPolicyID] {
		return nil, fmt.Errorf("default_policy_id %q does not name a policy", cfg.DefaultPolicyID)
	}
	return cfg, nil
}

// DefaultConfigYAML renders DefaultConfig as a policies document.
func DefaultConfigYAML() ([]byte, error) {
	cfg := DefaultConfig()
	doc := struct {
		DefaultPolicyID string                     `yaml:"default_policy_id"`
		Policies        []*model.PodSecurityPolicy `yaml:"policies"`
	}{cfg.DefaultPolicyID, cfg.Policies}
	return yaml.Marshal(doc)
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
