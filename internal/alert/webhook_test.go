package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func countingServer(t *testing.T, called *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDispatcherNilWithoutConfigs(t *testing.T) {
	if d := NewDispatcher(nil, nil); d != nil {
		t.Error("expected nil dispatcher for empty config")
	}
}

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := countingServer(t, &called)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"reject"}},
	}, slog.New(slog.DiscardHandler))

	d.Dispatch(AlertEvent{Decision: "reject", Type: "io.typegate.gadget.Probe", Kind: "not_allowed"})
	d.Dispatch(AlertEvent{Decision: "admit", Type: "io.typegate.safe.SafeClass"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	srv1 := countingServer(t, &called)
	srv2 := countingServer(t, &called)

	d := NewDispatcher([]AlertConfig{
		{URL: srv1.URL, Events: []string{"reject"}},
		{URL: srv2.URL, Events: []string{"reject", "error"}},
	}, slog.New(slog.DiscardHandler))

	d.Dispatch(AlertEvent{Decision: "reject", Type: "pkg.Evil"})
	d.Dispatch(AlertEvent{Decision: "error", Reason: "malformed payload"})
	d.Wait()

	if called.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", called.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = time.Second }()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{Decision: "reject"}); err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{Decision: "reject"}); err == nil {
		t.Error("expected error on 400, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestDeliveryIDStableAcrossRetries(t *testing.T) {
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = time.Second }()

	var mu sync.Mutex
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(DeliveryHeader))
		n := len(ids)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{Decision: "reject"}); err != nil {
		t.Fatalf("expected 429 to be retried, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("expected one delivery ID on both attempts, got %v", ids)
	}
	if _, err := uuid.Parse(ids[0]); err != nil {
		t.Errorf("delivery ID %q is not a UUID: %v", ids[0], err)
	}
}

func TestSendContextStopsRetrying(t *testing.T) {
	retryBackoff = time.Hour
	defer func() { retryBackoff = time.Second }()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := SendContext(ctx, AlertConfig{URL: srv.URL}, AlertEvent{Decision: "reject"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("send kept waiting after the context ended")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts.Load())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		ok        bool
		permanent bool
	}{
		{http.StatusOK, true, false},
		{http.StatusAccepted, true, false},
		{http.StatusBadRequest, false, true},
		{http.StatusUnauthorized, false, true},
		{http.StatusRequestTimeout, false, false},
		{http.StatusTooManyRequests, false, false},
		{http.StatusServiceUnavailable, false, false},
		{http.StatusMovedPermanently, false, true},
	}
	for _, tt := range tests {
		err := classify(tt.status)
		if (err == nil) != tt.ok {
			t.Errorf("classify(%d) = %v, want ok=%v", tt.status, err, tt.ok)
			continue
		}
		if got := errors.Is(err, errPermanent); got != tt.permanent {
			t.Errorf("classify(%d) permanent=%v, want %v", tt.status, got, tt.permanent)
		}
	}
}

func TestSendHeaders(t *testing.T) {
	var got http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}}
	if err := Send(cfg, AlertEvent{Decision: "reject", Type: "pkg.Evil"}); err != nil {
		t.Fatal(err)
	}
	if got.Get("Authorization") != "Bearer t" || got.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected headers %v", got)
	}
	var event AlertEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type != "pkg.Evil" {
		t.Errorf("unexpected body %s: %v", body, err)
	}
}

func TestFormatSlack(t *testing.T) {
	data, err := FormatPayload("slack", AlertEvent{Decision: "reject", Type: "pkg.Evil", Source: "http", Format: "json", Mode: "secure"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected 2 slack blocks, got %v", payload)
	}
}

func TestPagerDutySeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  string
	}{
		{AlertEvent{Decision: "reject", Kind: "denied"}, "critical"},
		{AlertEvent{Decision: "reject", Kind: "not_allowed"}, "error"},
		{AlertEvent{Decision: "reject", Kind: "malformed_type_identifier"}, "warning"},
		{AlertEvent{Decision: "error"}, "warning"},
		{AlertEvent{Decision: "admit"}, "info"},
	}
	for _, tt := range tests {
		data, err := FormatPayload("pagerduty", tt.event)
		if err != nil {
			t.Fatal(err)
		}
		var payload struct {
			Payload struct {
				Severity string `json:"severity"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Payload.Severity != tt.want {
			t.Errorf("%+v: severity %s, want %s", tt.event, payload.Payload.Severity, tt.want)
		}
	}
}
