package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/fingerprint"
)

var algorithms = []fingerprint.Algorithm{fingerprint.SHA256, fingerprint.BLAKE3}

func openLog(t *testing.T, alg fingerprint.Algorithm, opts ...LogOption) (*Log, string) {
	t.Helper()
	h, err := fingerprint.New(alg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path, append([]LogOption{WithHasher(h)}, opts...)...)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	return l, path
}

func decision(i int, allowed bool) AuditEntry {
	action := "BLOCKED"
	if allowed {
		action = "ALLOWED"
	}
	return AuditEntry{
		Timestamp:  time.Date(2026, 2, 3, 10, 0, i, 0, time.UTC).Format(TimestampFormat),
		EventID:    fmt.Sprintf("ev-%03d", i),
		SessionID:  "sess-42",
		TenantID:   "acme",
		Channel:    "clipboard",
		EventType:  "CLIPBOARD_OUTBOUND",
		Category:   "DATA_TRANSFER",
		Allowed:    allowed,
		Action:     action,
		Reason:     "test",
		PolicyHash: "sha256:abc123",
	}
}

func record(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.Record(decision(i, true)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestChainVerifiesPerAlgorithm(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			l, path := openLog(t, alg)
			record(t, l, 5)
			head := l.Head()
			l.Close()

			r := Verify(path)
			if !r.Valid {
				t.Fatalf("line %d: %s", r.ErrorLine, r.Error)
			}
			if r.Lines != 5 || r.Algorithm != alg {
				t.Fatalf("got lines=%d alg=%s", r.Lines, r.Algorithm)
			}
			if r.Head != head {
				t.Errorf("verified head %s, log head %s", r.Head, head)
			}
		})
	}
}

func TestFirstEntryLinksToGenesis(t *testing.T) {
	for _, alg := range algorithms {
		l, path := openLog(t, alg)
		record(t, l, 1)
		l.Close()

		var entry AuditEntry
		if err := json.Unmarshal([]byte(readLines(t, path)[0]), &entry); err != nil {
			t.Fatal(err)
		}
		want := string(alg) + ":" + strings.Repeat("0", 64)
		if entry.PrevHash != want {
			t.Errorf("%s: prev_hash %s, want %s", alg, entry.PrevHash, want)
		}
	}
	if GenesisHash != "sha256:"+strings.Repeat("0", 64) {
		t.Errorf("unexpected GenesisHash %s", GenesisHash)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func([]string) []string
		wantLine int
	}{
		{"edited decision", func(ls []string) []string {
			ls[1] = strings.Replace(ls[1], `"allowed":true`, `"allowed":false`, 1)
			return ls
		}, 3},
		{"deleted entry", func(ls []string) []string {
			return []string{ls[0], ls[2], ls[3]}
		}, 2},
		{"inserted entry", func(ls []string) []string {
			fake := decision(99, false)
			fake.PrevHash = HashLine([]byte(ls[0]))
			b, _ := json.Marshal(fake)
			return []string{ls[0], string(b), ls[1], ls[2], ls[3]}
		}, 3},
		{"reordered entries", func(ls []string) []string {
			ls[1], ls[2] = ls[2], ls[1]
			return ls
		}, 2},
		{"truncated head", func(ls []string) []string {
			return ls[1:]
		}, 1},
		{"garbage line", func(ls []string) []string {
			ls[2] = "{not json"
			return ls
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, path := openLog(t, fingerprint.SHA256)
			record(t, l, 4)
			l.Close()

			writeLines(t, path, tt.mutate(readLines(t, path)))

			r := Verify(path)
			if r.Valid {
				t.Fatal("expected broken chain")
			}
			if r.ErrorLine != tt.wantLine {
				t.Errorf("error at line %d (%s), want %d", r.ErrorLine, r.Error, tt.wantLine)
			}
		})
	}
}

func TestVerifyEmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if r := Verify(path); !r.Valid || r.Lines != 0 {
		t.Fatalf("empty log: %+v", r)
	}
	if r := Verify(filepath.Join(t.TempDir(), "nope.jsonl")); r.Valid {
		t.Fatal("missing log should not verify")
	}
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := openLog(t, fingerprint.BLAKE3)
	record(t, l, 3)
	head := l.Head()
	l.Close()

	h, _ := fingerprint.New(fingerprint.BLAKE3)
	l2, err := Open(path, WithHasher(h))
	if err != nil {
		t.Fatal(err)
	}
	if l2.Head() != head || l2.Entries() != 3 {
		t.Fatalf("recovered head=%s entries=%d", l2.Head(), l2.Entries())
	}
	record(t, l2, 2)
	l2.Close()

	if r := Verify(path); !r.Valid || r.Lines != 5 {
		t.Fatalf("after reopen: %+v", r)
	}
}

func TestReopenRejectsOtherAlgorithm(t *testing.T) {
	l, path := openLog(t, fingerprint.SHA256)
	record(t, l, 1)
	l.Close()

	h, _ := fingerprint.New(fingerprint.BLAKE3)
	if _, err := Open(path, WithHasher(h)); err == nil || !strings.Contains(err.Error(), "chained with sha256") {
		t.Fatalf("expected algorithm mismatch, got %v", err)
	}
}

func TestRecordStampsMissingTimestamp(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 4, 1, 8, 15, 0, 0, time.UTC))
	l, path := openLog(t, fingerprint.SHA256, WithLogClock(clk))
	e := decision(0, true)
	e.Timestamp = ""
	if err := l.Record(e); err != nil {
		t.Fatal(err)
	}
	l.Close()

	var got AuditEntry
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got.Timestamp != "2026-04-01T08:15:00.000Z" {
		t.Errorf("timestamp %q", got.Timestamp)
	}
}

func TestConcurrentRecordsSerialize(t *testing.T) {
	l, path := openLog(t, fingerprint.SHA256)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Record(decision(i%60, i%2 == 0)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	l.Close()

	r := Verify(path)
	if !r.Valid || r.Lines != 100 {
		t.Fatalf("after concurrent writes: %+v", r)
	}
}

func TestVerifyLargeLog(t *testing.T) {
	l, path := openLog(t, fingerprint.BLAKE3)
	e := decision(0, true)
	for i := 0; i < 5000; i++ {
		if err := l.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	start := time.Now()
	r := Verify(path)
	if !r.Valid || r.Lines != 5000 {
		t.Fatalf("large log: %+v", r)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("verification took %v", elapsed)
	}
}
