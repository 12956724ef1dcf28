package denylist

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw pattern strings organized by category.
type Patterns struct {
	Domains []string `yaml:"domains"`
}

// Denylist holds the global set of destinations no policy may reach, such as
// paste sites and anonymous file drops. Safe for concurrent use.
type Denylist struct {
	mu      sync.RWMutex
	domains []string // exact host or *.suffix, lowercased
	raw     Patterns
}

// New creates a Denylist from raw patterns.
func New(p Patterns) *Denylist {
	d := &Denylist{raw: p}
	for _, dom := range p.Domains {
		if n := normalizeDomain(dom); n != "" {
			d.domains = append(d.domains, n)
		}
	}
	return d
}

// Replace swaps in the patterns of other. Used by hot reload so holders of
// d see the new list without being rewired.
func (d *Denylist) Replace(other *Denylist) {
	other.mu.RLock()
	domains := append([]string(nil), other.domains...)
	raw := Patterns{Domains: append([]string(nil), other.raw.Domains...)}
	other.mu.RUnlock()

	d.mu.Lock()
	d.domains = domains
	d.raw = raw
	d.mu.Unlock()
}

// NewDefault creates a Denylist with the hardcoded default patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// Load reads a denylist from a YAML file. Falls back to defaults if file doesn't exist.
func Load(path string) (*Denylist, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".podguard", "denylist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}

	return New(p), nil
}

// IsBlocked checks whether host is on the denylist.
// Returns (blocked, reason).
func (d *Denylist) IsBlocked(host string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, pattern := range d.domains {
		if MatchDomain(host, pattern) {
			return true, "domain on global denylist: " + pattern
		}
	}
	return false, ""
}

// AddPattern adds a pattern to the denylist at runtime.
func (d *Denylist) AddPattern(category, pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch category {
	case "domains":
		d.raw.Domains = append(d.raw.Domains, pattern)
		if n := normalizeDomain(pattern); n != "" {
			d.domains = append(d.domains, n)
		}
	}
}

// ToMap returns the raw patterns as a map for serialization.
func (d *Denylist) ToMap() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]any{
		"domains": append([]string(nil), d.raw.Domains...),
	}
}

// MatchDomain reports whether host matches pattern. A "*.suffix" pattern
// matches the suffix itself and any subdomain of it, but not hosts that
// merely end in the same characters. "*" matches every host.
func MatchDomain(host, pattern string) bool {
	host = normalizeDomain(host)
	pattern = normalizeDomain(pattern)
	if host == "" || pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}

// MatchAny returns the first pattern host matches.
func MatchAny(host string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if MatchDomain(host, p) {
			return p, true
		}
	}
	return "", false
}

// HostFromURL extracts the lowercased hostname of raw. Scheme-less input
// such as "example.com/path" is accepted.
func HostFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	host := normalizeDomain(u.Hostname())
	if host == "" || strings.ContainsAny(host, " /\\") {
		return "", fmt.Errorf("invalid url %q: no hostname", raw)
	}
	return host, nil
}

// IsPrivate reports whether host is a private-network destination: RFC 1918
// and RFC 4193 ranges, loopback, link-local, localhost, *.local and
// *.internal names.
func IsPrivate(host string) bool {
	host = normalizeDomain(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

func normalizeDomain(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}
