package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/actiongate/internal/model"
)

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func heldEvent() model.AuditEvent {
	return model.NewAuditEvent(model.EventInput{
		Actor:            model.Actor{Type: model.EditorCLI, Name: "cursor"},
		Action:           model.WriteFile,
		Target:           model.Resource{Kind: model.KindFile, Path: ".github/workflows/ci.yml"},
		Mode:             model.Hold,
		Reason:           "protected path — only privileged agent may modify",
		RiskFlags:        []model.RiskFlag{model.RiskProtectedPath, model.RiskCIPipeline},
		ConstitutionHash: "sha256:abc",
	})
}

func TestDispatchMatchesMode(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"hold"}},
	}, nil)

	if err := d.Write(context.Background(), heldEvent()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	d.Close()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	}, nil)

	d.Write(context.Background(), heldEvent())
	d.Close()

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchMatchesRiskFlag(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "slack", Events: []string{"CI_PIPELINE"}},
		{URL: srv.URL, Format: "pagerduty", Events: []string{"deny", "PROTECTED_PATH"}},
	}, nil)

	d.Write(context.Background(), heldEvent())
	d.Close()

	if called.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called.Load())
	}
}

func TestDispatchSurvivesCancelledCaller(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{"hold"}}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Write(ctx, heldEvent())
	cancel()
	d.Close()

	if called.Load() != 1 {
		t.Errorf("alert must be delivered after the caller returns, got %d calls", called.Load())
	}
}

func TestWriteAfterCloseRefused(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{"hold"}}}, nil)
	d.Close()

	if err := d.Write(context.Background(), heldEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if called.Load() != 0 {
		t.Errorf("closed dispatcher sent %d alerts", called.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	retryBackoff = 10 * time.Millisecond
	t.Cleanup(func() { retryBackoff = time.Second })

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Mode: "deny"})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	srv, attempts := countingServer(t, http.StatusBadRequest)

	err := Send(context.Background(), AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Mode: "deny"})
	if err == nil {
		t.Error("expected error on 400, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestSendSetsHeaders(t *testing.T) {
	var got string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Token")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}}
	if err := Send(context.Background(), cfg, FromAudit(heldEvent())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "secret" {
		t.Errorf("expected header to be forwarded, got %q", got)
	}

	var parsed AlertEvent
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("generic body is not JSON: %v", err)
	}
	if parsed.Mode != "hold" || parsed.Target != ".github/workflows/ci.yml" {
		t.Errorf("unexpected payload %+v", parsed)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	data, err := FormatPayload("slack", FromAudit(heldEvent()))
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("slack format is not valid JSON: %v", err)
	}
	blocks, ok := parsed["blocks"].([]any)
	if !ok || len(blocks) < 2 {
		t.Fatalf("expected at least 2 blocks, got %v", parsed["blocks"])
	}
	header, _ := blocks[0].(map[string]any)
	if header["type"] != "header" {
		t.Errorf("expected header block, got %s", header["type"])
	}
	section, _ := blocks[1].(map[string]any)
	fields, ok := section["fields"].([]any)
	if !ok || len(fields) < 5 {
		t.Errorf("expected at least 5 fields in section, got %v", fields)
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  string
	}{
		{AlertEvent{Mode: "hold"}, "warning"},
		{AlertEvent{Mode: "deny"}, "error"},
		{AlertEvent{Mode: "deny", RiskFlags: []string{"CONSTITUTIONAL_VIOLATION"}}, "critical"},
		{AlertEvent{Mode: "allow"}, "info"},
	}
	for _, tt := range tests {
		data, err := FormatPayload("pagerduty", tt.event)
		if err != nil {
			t.Fatal(err)
		}
		var parsed map[string]any
		json.Unmarshal(data, &parsed)
		if parsed["event_action"] != "trigger" {
			t.Errorf("expected event_action trigger, got %v", parsed["event_action"])
		}
		payload, _ := parsed["payload"].(map[string]any)
		if payload["severity"] != tt.want {
			t.Errorf("mode %s flags %v: expected severity %s, got %v", tt.event.Mode, tt.event.RiskFlags, tt.want, payload["severity"])
		}
		if payload["source"] != "actiongate" {
			t.Errorf("expected source actiongate, got %v", payload["source"])
		}
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	if d := NewDispatcher(nil, nil); d != nil {
		t.Error("expected nil dispatcher for empty configs")
	}
	if d := NewDispatcher([]AlertConfig{}, nil); d != nil {
		t.Error("expected nil dispatcher for zero-length configs")
	}
}

func TestFromAuditMasksContextSecrets(t *testing.T) {
	e := heldEvent()
	e.Context = map[string]string{"branch": "main", "deploy_token": "t-123"}

	got := FromAudit(e).Context
	if got["branch"] != "main" {
		t.Errorf("branch = %q, want main", got["branch"])
	}
	if got["deploy_token"] != "***" {
		t.Errorf("deploy_token = %q, want masked", got["deploy_token"])
	}
	if e.Context["deploy_token"] != "t-123" {
		t.Error("FromAudit must not modify the audit event")
	}
}
