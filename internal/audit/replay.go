package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/podguard/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// ReplayFilter holds filtering criteria for session replay.
type ReplayFilter struct {
	SessionID  string
	Channel    string
	DeniedOnly bool
	From       time.Time // zero value = no lower bound
	To         time.Time // zero value = no upper bound
}

func (f ReplayFilter) match(e AuditEntry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Channel != "" && e.Channel != f.Channel {
		return false
	}
	if f.DeniedOnly && e.Allowed {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// ReplaySummary holds decision counts and metadata for a replayed session.
type ReplaySummary struct {
	Total            int    `json:"total"`
	AllowedCount     int    `json:"allowed_count"`
	BlockedCount     int    `json:"blocked_count"`
	LoggedCount      int    `json:"logged_count"`
	QuarantinedCount int    `json:"quarantined_count"`
	OverrideCount    int    `json:"override_count"`
	ViolationCount   int    `json:"violation_count"`
	FirstTimestamp   string `json:"first_timestamp"`
	LastTimestamp    string `json:"last_timestamp"`
	// ByChannel counts entries per containment channel.
	ByChannel map[string]int `json:"by_channel,omitempty"`
}

// ReplayResult holds filtered entries and summary for a session replay.
type ReplayResult struct {
	SessionID string        `json:"session_id"`
	Entries   []AuditEntry  `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		SessionID: filter.SessionID,
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if !filter.match(entry) {
			continue
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++

	switch model.TransferAction(entry.Action) {
	case model.ActionAllowed:
		s.AllowedCount++
	case model.ActionBlocked:
		s.BlockedCount++
	case model.ActionLogged:
		s.LoggedCount++
	case model.ActionQuarantined:
		s.QuarantinedCount++
	case model.ActionOverrideApproved:
		s.OverrideCount++
	}

	if entry.ViolationType != "" {
		s.ViolationCount++
	}
	if entry.Channel != "" {
		if s.ByChannel == nil {
			s.ByChannel = make(map[string]int)
		}
		s.ByChannel[entry.Channel]++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
