package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/podguard/internal/model"
)

// Page size bounds for attempt queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Store is the durable, append-only record of containment decisions.
type Store interface {
	AppendEvent(ctx context.Context, e *model.ContainmentEvent) error
	AppendAttempt(ctx context.Context, a *model.DataTransferAttempt) error
	// Attempts returns a session's transfer attempts, newest first.
	Attempts(ctx context.Context, sessionID string, f model.AttemptFilter) (model.AttemptPage, error)
}

// NormalizeFilter clamps the page window.
func NormalizeFilter(f model.AttemptFilter) model.AttemptFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	events   []model.ContainmentEvent
	attempts []model.DataTransferAttempt
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AppendEvent(_ context.Context, e *model.ContainmentEvent) error {
	m.mu.Lock()
	m.events = append(m.events, *e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendAttempt(_ context.Context, a *model.DataTransferAttempt) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, *a)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Attempts(_ context.Context, sessionID string, f model.AttemptFilter) (model.AttemptPage, error) {
	f = NormalizeFilter(f)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.DataTransferAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.SessionID != sessionID {
			continue
		}
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if f.TransferType != "" && a.TransferType != f.TransferType {
			continue
		}
		matched = append(matched, a)
	}

	page := model.AttemptPage{Total: len(matched), Limit: f.Limit, Offset: f.Offset, Attempts: []model.DataTransferAttempt{}}
	if f.Offset < len(matched) {
		end := min(f.Offset+f.Limit, len(matched))
		page.Attempts = append(page.Attempts, matched[f.Offset:end]...)
	}
	return page, nil
}

// Events returns the events recorded for a session, oldest first. An empty
// sessionID returns every event.
func (m *Memory) Events(sessionID string) []model.ContainmentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ContainmentEvent
	for _, e := range m.events {
		if sessionID == "" || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// Mirror writes events to a Store and then appends them to a hash-chained
// Log. An event is only reported as written when both succeed.
type Mirror struct {
	Store
	log        *Log
	policyHash func() string
}

// NewMirror wraps s. policyHash, if set, stamps each log entry with the hash
// of the policies in force.
func NewMirror(s Store, l *Log, policyHash func() string) *Mirror {
	return &Mirror{Store: s, log: l, policyHash: policyHash}
}

// AppendEvent writes e to the store and the chained log.
func (m *Mirror) AppendEvent(ctx context.Context, e *model.ContainmentEvent) error {
	if err := m.Store.AppendEvent(ctx, e); err != nil {
		return err
	}
	hash := ""
	if m.policyHash != nil {
		hash = m.policyHash()
	}
	if err := m.log.Record(EntryFromEvent(e, hash)); err != nil {
		return fmt.Errorf("mirror event %s: %w", e.ID, err)
	}
	return nil
}
