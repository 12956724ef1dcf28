package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/podguard/internal/fingerprint"
)

// VerifyResult is the outcome of walking a log's hash chain.
type VerifyResult struct {
	Valid     bool                  `json:"valid"`
	Lines     int                   `json:"lines"`
	Algorithm fingerprint.Algorithm `json:"algorithm,omitempty"`
	Head      string                `json:"head,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorLine int                   `json:"error_line,omitempty"`
}

// Verify walks the log at path. The first entry's prev_hash selects the
// chain algorithm and must be its genesis value; every later prev_hash
// must equal the fingerprint of the line before it. Verification stops
// at the first broken link.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		hasher *fingerprint.Hasher
		want   string
		n      int
	)
	fail := func(format string, args ...any) VerifyResult {
		r := VerifyResult{Lines: n - 1, Error: fmt.Sprintf(format, args...), ErrorLine: n}
		if hasher != nil {
			r.Algorithm = hasher.Algorithm()
		}
		return r
	}

	for scanner.Scan() {
		n++
		line := scanner.Bytes()

		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fail("parse error: %v", err)
		}

		if hasher == nil {
			alg, _, err := fingerprint.Parse(entry.PrevHash)
			if err != nil {
				return fail("first entry: %v", err)
			}
			hasher, _ = fingerprint.New(alg)
			want = hasher.Zero()
			if entry.PrevHash != want {
				return fail("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
			}
		} else if entry.PrevHash != want {
			return fail("hash mismatch: expected %s, got %s", want, entry.PrevHash)
		}

		want = hasher.Sum(line)
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: n, Error: fmt.Sprintf("scan: %v", err)}
	}

	r := VerifyResult{Valid: true, Lines: n}
	if hasher != nil {
		r.Algorithm = hasher.Algorithm()
		r.Head = want
	}
	return r
}
