// Package fingerprint computes content fingerprints for audit correlation.
// Fingerprints are never used for authorization.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Hasher produces "<algorithm>:<hex>" fingerprints.
type Hasher struct {
	alg Algorithm
}

// New returns a Hasher for alg. An empty alg selects SHA256.
func New(alg Algorithm) (*Hasher, error) {
	switch alg {
	case "":
		alg = SHA256
	case SHA256, BLAKE3:
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", alg)
	}
	return &Hasher{alg: alg}, nil
}

// Default returns a SHA256 Hasher.
func Default() *Hasher {
	return &Hasher{alg: SHA256}
}

// Algorithm returns the digest in use.
func (h *Hasher) Algorithm() Algorithm {
	return h.alg
}

// Sum fingerprints data.
func (h *Hasher) Sum(data []byte) string {
	var sum [32]byte
	switch h.alg {
	case BLAKE3:
		sum = blake3.Sum256(data)
	default:
		sum = sha256.Sum256(data)
	}
	return string(h.alg) + ":" + hex.EncodeToString(sum[:])
}

// SumString fingerprints the UTF-8 bytes of s.
func (h *Hasher) SumString(s string) string {
	return h.Sum([]byte(s))
}

// Zero returns the all-zero fingerprint for the algorithm.
func (h *Hasher) Zero() string {
	return string(h.alg) + ":" + strings.Repeat("0", 64)
}

// Parse splits a fingerprint into its algorithm and hex digest.
func Parse(fp string) (Algorithm, string, error) {
	alg, digest, ok := strings.Cut(fp, ":")
	if !ok {
		return "", "", fmt.Errorf("fingerprint %q has no algorithm prefix", fp)
	}
	if _, err := New(Algorithm(alg)); err != nil || alg == "" {
		return "", "", fmt.Errorf("fingerprint %q: unknown algorithm %q", fp, alg)
	}
	if len(digest) != 64 {
		return "", "", fmt.Errorf("fingerprint %q: digest is %d chars, want 64", fp, len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", fmt.Errorf("fingerprint %q: %w", fp, err)
	}
	return Algorithm(alg), digest, nil
}
