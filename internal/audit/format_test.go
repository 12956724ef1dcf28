package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatTimelineHeaderAndSummary(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	if !strings.Contains(out, "Session: s-aaa") {
		t.Error("expected header to contain session ID")
	}
	if !strings.Contains(out, "1 allowed") {
		t.Errorf("expected '1 allowed' in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "1 blocked") {
		t.Errorf("expected '1 blocked' in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "Violations: 2") {
		t.Errorf("expected violation count in summary, got:\n%s", out)
	}
}

func TestFormatTimelineEntryColumns(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	for _, want := range []string{"14:00:06", "BLOCKED", "QUARANTINED", "file_transfer", "[CLIPBOARD_COPY_ATTEMPT]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in timeline, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Clipboard access is disabled by policy") {
		t.Errorf("expected reason column, got:\n%s", out)
	}
}

func TestFormatJSONValid(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	jsonStr, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}

	var parsed ReplayResult
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		t.Fatalf("JSON output not valid: %v", err)
	}
	if parsed.SessionID != "s-aaa" {
		t.Errorf("expected session ID s-aaa, got %s", parsed.SessionID)
	}
	if parsed.Summary.Total != 5 {
		t.Errorf("expected total 5 in JSON summary, got %d", parsed.Summary.Total)
	}
}

func TestFormatTimelineEmptyEntries(t *testing.T) {
	out := FormatTimeline(&ReplayResult{SessionID: "s-empty"})
	if !strings.Contains(out, "No entries found") {
		t.Errorf("expected 'No entries found' message, got:\n%s", out)
	}
}
