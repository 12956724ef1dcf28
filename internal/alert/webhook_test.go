package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/podguard/internal/model"
)

func blockedEvent() Event {
	return Event{
		ID:        "evt-1",
		Topic:     TopicSecurity,
		Type:      EventDataTransferBlocked,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		UserID:    "alice",
		Severity:  model.SeverityCritical,
		Reason:    "Sensitive data detected: financial",
	}
}

func TestWebhookMatchesEventType(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventDataTransferBlocked}},
	})
	if err := w.Publish(context.Background(), blockedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestWebhookMatchesTopic(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook([]AlertConfig{
		{URL: srv.URL, Events: []string{string(TopicSecurity)}},
	})
	if err := w.Publish(context.Background(), blockedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestWebhookSkipsNonMatching(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook([]AlertConfig{
		{URL: srv.URL, Events: []string{EventTransferRequested}},
	})
	if err := w.Publish(context.Background(), blockedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestWebhookEmptyEventsMatchesAll(t *testing.T) {
	var called atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	w := NewWebhook([]AlertConfig{{URL: srv1.URL}, {URL: srv2.URL}})
	if err := w.Publish(context.Background(), blockedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", called.Load())
	}
}

func TestNewWebhookEmpty(t *testing.T) {
	if w := NewWebhook(nil); w != nil {
		t.Error("expected nil webhook for empty config")
	}
}

func TestSendRetriesOn5xx(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = old }()

	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(context.Background(), AlertConfig{URL: srv.URL}, blockedEvent()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if called.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", called.Load())
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = old }()

	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := Send(context.Background(), AlertConfig{URL: srv.URL}, blockedEvent()); err == nil {
		t.Fatal("expected error")
	}
	if called.Load() != maxRetries {
		t.Errorf("expected %d attempts, got %d", maxRetries, called.Load())
	}
}

func TestSendNoRetryOn4xx(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := Send(context.Background(), AlertConfig{URL: srv.URL}, blockedEvent()); err == nil {
		t.Fatal("expected error on 400")
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", called.Load())
	}
}

func TestSendHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	if err := Send(context.Background(), cfg, blockedEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "Bearer x" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestGenericPayload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(context.Background(), AlertConfig{URL: srv.URL, Format: "generic"}, blockedEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}
	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventDataTransferBlocked || got.SessionID != "sess-1" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestSlackPayload(t *testing.T) {
	body, err := FormatPayload("slack", blockedEvent())
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %v", payload["blocks"])
	}
	header := blocks[0].(map[string]any)["text"].(map[string]any)["text"]
	if header != "podguard: DATA_TRANSFER_BLOCKED" {
		t.Errorf("header = %v", header)
	}
}

func TestPagerDutyPayload(t *testing.T) {
	body, err := FormatPayload("pagerduty", blockedEvent())
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["event_action"] != "trigger" {
		t.Errorf("event_action = %v", payload["event_action"])
	}
	inner := payload["payload"].(map[string]any)
	if inner["severity"] != "critical" {
		t.Errorf("severity = %v, want critical", inner["severity"])
	}
}

func TestPagerDutySeverityMapping(t *testing.T) {
	tests := []struct {
		in   model.Severity
		want string
	}{
		{model.SeverityCritical, "critical"},
		{model.SeverityHigh, "error"},
		{model.SeverityMedium, "warning"},
		{model.SeverityLow, "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		if got := pagerDutySeverity(tt.in); got != tt.want {
			t.Errorf("pagerDutySeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
