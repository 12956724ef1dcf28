package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", result.SessionID)
	}

	var b strings.Builder

	// Header
	first := result.Summary.FirstTimestamp
	last := result.Summary.LastTimestamp
	b.WriteString(fmt.Sprintf("Session: %s | %s–%s UTC\n", result.SessionID, formatDateRange(first), formatTimeOnly(last)))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		tag := ""
		if e.ViolationType != "" {
			tag = "  [" + e.ViolationType + "]"
		}
		b.WriteString(fmt.Sprintf("%-10s %-17s %-14s %-40s%s\n",
			formatTimeOnly(e.Timestamp),
			e.Action,
			truncate(e.Channel, 14),
			truncate(e.Reason, 40),
			tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.AllowedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allowed", s.AllowedCount))
	}
	if s.LoggedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d logged", s.LoggedCount))
	}
	if s.BlockedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", s.BlockedCount))
	}
	if s.QuarantinedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d quarantined", s.QuarantinedCount))
	}
	if s.OverrideCount > 0 {
		parts = append(parts, fmt.Sprintf("%d override", s.OverrideCount))
	}
	out := fmt.Sprintf("Summary: %s | Violations: %d\n", strings.Join(parts, ", "), s.ViolationCount)
	if len(s.ByChannel) > 0 {
		channels := make([]string, 0, len(s.ByChannel))
		for ch := range s.ByChannel {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for i, ch := range channels {
			channels[i] = fmt.Sprintf("%s %d", ch, s.ByChannel[ch])
		}
		out += "Channels: " + strings.Join(channels, ", ") + "\n"
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
