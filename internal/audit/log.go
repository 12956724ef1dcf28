package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/fingerprint"
)

// maxLine bounds a single audit line when reading a log back.
const maxLine = 1 << 20

// GenesisHash is the prev_hash for the first entry of a SHA-256 chained log.
var GenesisHash = fingerprint.Default().Zero()

// Log is an append-only JSONL audit log. Each entry's prev_hash is the
// fingerprint of the previous line; the first entry points at the
// algorithm's all-zero genesis value, which also records which algorithm
// the chain uses.
type Log struct {
	path   string
	hasher *fingerprint.Hasher
	clock  clock.Clock

	mu      sync.Mutex
	file    *os.File
	head    string
	entries int
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithHasher chains entries with h instead of SHA-256.
func WithHasher(h *fingerprint.Hasher) LogOption { return func(l *Log) { l.hasher = h } }

// WithLogClock stamps entries that carry no timestamp.
func WithLogClock(c clock.Clock) LogOption { return func(l *Log) { l.clock = c } }

// Open opens or creates the log at path. An existing log is read to
// recover the chain head; its algorithm must match the configured one.
func Open(path string, opts ...LogOption) (*Log, error) {
	l := &Log{path: path, hasher: fingerprint.Default(), clock: clock.Real()}
	for _, o := range opts {
		o(l)
	}
	l.head = l.hasher.Zero()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	if err := l.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	l.file = f
	return l, nil
}

func (l *Log) recover() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	var last []byte
	for scanner.Scan() {
		if l.entries == 0 {
			var first AuditEntry
			if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
				return fmt.Errorf("audit: %s line 1: %w", l.path, err)
			}
			alg, _, err := fingerprint.Parse(first.PrevHash)
			if err != nil {
				return fmt.Errorf("audit: %s line 1: %w", l.path, err)
			}
			if alg != l.hasher.Algorithm() {
				return fmt.Errorf("audit: %s is chained with %s, configured %s", l.path, alg, l.hasher.Algorithm())
			}
		}
		last = append(last[:0], scanner.Bytes()...)
		l.entries++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("audit: scan existing log: %w", err)
	}
	if len(last) > 0 {
		l.head = l.hasher.Sum(last)
	}
	return nil
}

// Record appends entry, linking it to the current head, and syncs the file.
// An entry without a timestamp is stamped with the log's clock.
func (l *Log) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = l.clock.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.head

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.head = l.hasher.Sum(line)
	l.entries++
	return nil
}

// Head returns the fingerprint the next entry will link to.
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Entries returns the number of lines in the log.
func (l *Log) Entries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns the SHA-256 fingerprint of line.
func HashLine(line []byte) string {
	return fingerprint.Default().Sum(line)
}
