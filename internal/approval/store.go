package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/podguard/internal/model"
)

// ErrNotFound is returned when no request exists for an id.
var ErrNotFound = errors.New("file transfer request not found")

// Store persists file transfer requests.
type Store interface {
	Save(ctx context.Context, r *model.FileTransferRequest) error
	Get(ctx context.Context, id string) (*model.FileTransferRequest, error)
	// List returns every request for tenantID, or all requests when
	// tenantID is empty, oldest first.
	List(ctx context.Context, tenantID string) ([]model.FileTransferRequest, error)
}

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// FileStore keeps one JSON file per request in a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore backed by the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns the default approval store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "podguard-approvals")
	}
	return filepath.Join(home, ".podguard", "approvals")
}

func (s *FileStore) Save(_ context.Context, r *model.FileTransferRequest) error {
	if err := validateKey(r.ID); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(s.path(r.ID), r)
}

func (s *FileStore) Get(_ context.Context, id string) (*model.FileTransferRequest, error) {
	if err := validateKey(id); err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read request %s: %w", id, err)
	}
	return r, nil
}

func (s *FileStore) List(_ context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []model.FileTransferRequest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if tenantID != "" && r.TenantID != tenantID {
			continue
		}
		out = append(out, *r)
	}
	sortByCreated(out)
	return out, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) read(key string) (*model.FileTransferRequest, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var r model.FileTransferRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *FileStore) writeAtomic(path string, r *model.FileTransferRequest) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	requests map[string]model.FileTransferRequest
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{requests: make(map[string]model.FileTransferRequest)}
}

func (m *Memory) Save(_ context.Context, r *model.FileTransferRequest) error {
	if r.ID == "" {
		return fmt.Errorf("request id must not be empty")
	}
	m.mu.Lock()
	m.requests[r.ID] = *r
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.FileTransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &r, nil
}

func (m *Memory) List(_ context.Context, tenantID string) ([]model.FileTransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.FileTransferRequest
	for _, r := range m.requests {
		if tenantID == "" || r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(rs []model.FileTransferRequest) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
