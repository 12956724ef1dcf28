// Package violation defines where denied actions are recorded and how a
// session's violation history maps to an escalation step.
package violation

import (
	"context"
	"sync"

	"github.com/ppiankov/podguard/internal/model"
)

// Sink records violations and reports per-session counts.
type Sink interface {
	RecordViolation(ctx context.Context, v *model.SecurityViolation) error
	SessionViolationCount(ctx context.Context, sessionID string) (int, error)
}

// Thresholds are the violation counts at which each escalation applies.
type Thresholds struct {
	Warn      int `yaml:"warn" json:"warn"`
	Block     int `yaml:"block" json:"block"`
	Terminate int `yaml:"terminate" json:"terminate"`
	Suspend   int `yaml:"suspend" json:"suspend"`
}

// DefaultThresholds returns the built-in escalation ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 1, Block: 3, Terminate: 5, Suspend: 10}
}

// Level maps a violation count to an escalation step. A zero threshold
// disables that step.
func (t Thresholds) Level(count int) model.Escalation {
	switch {
	case t.Suspend > 0 && count >= t.Suspend:
		return model.EscalationSuspend
	case t.Terminate > 0 && count >= t.Terminate:
		return model.EscalationTerminate
	case t.Block > 0 && count >= t.Block:
		return model.EscalationBlock
	case t.Warn > 0 && count >= t.Warn:
		return model.EscalationWarn
	default:
		return model.EscalationNone
	}
}

// Memory is an in-process Sink.
type Memory struct {
	mu         sync.RWMutex
	violations []model.SecurityViolation
}

// NewMemory creates an empty sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RecordViolation(_ context.Context, v *model.SecurityViolation) error {
	m.mu.Lock()
	m.violations = append(m.violations, *v)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SessionViolationCount(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, v := range m.violations {
		if v.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// List returns recorded violations for a session, oldest first. An empty
// sessionID returns all of them.
func (m *Memory) List(sessionID string) []model.SecurityViolation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SecurityViolation
	for _, v := range m.violations {
		if sessionID == "" || v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out
}
