package judge_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ojclient/internal/gateway"
	"ojclient/internal/judge"
	"ojclient/internal/session"
	"ojclient/pkg/errors"
)

type step struct {
	body string
	err  error
}

// scriptedDoer replays steps in order and repeats the last one.
type scriptedDoer struct {
	mu    sync.Mutex
	steps []step
	paths []string
}

func (d *scriptedDoer) Do(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, req.Path)
	idx := len(d.paths) - 1
	if idx >= len(d.steps) {
		idx = len(d.steps) - 1
	}
	s := d.steps[idx]
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.Response{StatusCode: http.StatusOK, Body: []byte(s.body)}, nil
}

func (d *scriptedDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.paths)
}

func statusBody(id int) string {
	return fmt.Sprintf(`{"token":"t1","status_id":%d,"stdout":"ok\n","time":"0.012","memory":2048}`, id)
}

func fastConfig() judge.Config {
	return judge.Config{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Timeout: time.Second}
}

func TestPollStopsAtFirstTerminalStatus(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{body: statusBody(1)}, {body: statusBody(3)}, {body: statusBody(4)}, {body: statusBody(5)}}}
	p := judge.NewPoller(doer, fastConfig(), nil)

	details, err := p.Poll(context.Background(), "t1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if details.StatusID != judge.StatusAccepted {
		t.Fatalf("expected accepted, got %d", details.StatusID)
	}
	time.Sleep(10 * time.Millisecond)
	if got := doer.calls(); got != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", got)
	}
	if doer.paths[0] != "/submissions/t1" {
		t.Fatalf("unexpected poll path %q", doer.paths[0])
	}
	if ms := details.ExecutionTimeMs(); ms == nil || *ms != 12 {
		t.Fatalf("expected 12ms, got %v", ms)
	}
	if details.MemoryKB == nil || *details.MemoryKB != 2048 {
		t.Fatalf("expected 2048KB, got %v", details.MemoryKB)
	}
}

func TestPollStopsOnTransportError(t *testing.T) {
	doer := &scriptedDoer{steps: []step{
		{body: statusBody(1)},
		{err: errors.TransportFailure(fmt.Errorf("connection reset"))},
		{body: statusBody(4)},
	}}
	p := judge.NewPoller(doer, fastConfig(), nil)

	_, err := p.Poll(context.Background(), "t1")
	if !errors.Is(err, errors.TransportError) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if got := doer.calls(); got != 2 {
		t.Fatalf("expected polling to stop after the failure, got %d calls", got)
	}
}

func TestPollTimesOut(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{body: statusBody(2)}}}
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := judge.NewPoller(doer, cfg, nil)

	_, err := p.Poll(context.Background(), "t1")
	if !errors.Is(err, errors.JudgeTimeout) {
		t.Fatalf("expected JudgeTimeout, got %v", err)
	}
}

func TestPollHonoursCallerCancellation(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{body: statusBody(1)}}}
	p := judge.NewPoller(doer, fastConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Poll(ctx, "t1"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPollUsesJudgeBaseURL(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{body: statusBody(4)}}}
	cfg := fastConfig()
	cfg.BaseURL = "http://judge.local:2358/"
	p := judge.NewPoller(doer, cfg, nil)

	if _, err := p.Poll(context.Background(), "t 1"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if doer.paths[0] != "http://judge.local:2358/submissions/t%201" {
		t.Fatalf("unexpected path %q", doer.paths[0])
	}
}

func TestParseDetailsNestedStatus(t *testing.T) {
	body := `{"token":"x","status":{"id":6,"description":"Compilation Error"},"stdout":null,"stderr":null,"compile_output":"main.c:1: error","time":null,"memory":null}`
	d, err := judge.ParseDetails([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.StatusID != judge.StatusCompilationError || d.Description != "Compilation Error" {
		t.Fatalf("unexpected status %d %q", d.StatusID, d.Description)
	}
	if out := d.ErrorOutput(); out == nil || !strings.Contains(*out, "error") {
		t.Fatalf("expected compile output as error output, got %v", out)
	}
	if d.ExecutionTimeMs() != nil || d.MemoryKB != nil {
		t.Fatalf("expected null time and memory")
	}
}

func TestParseDetailsRejectsMissingStatus(t *testing.T) {
	if _, err := judge.ParseDetails([]byte(`{"token":"x"}`)); !errors.Is(err, errors.ProtocolError) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if _, err := judge.ParseDetails([]byte(`{"status_id":4,"time":"fast"}`)); !errors.Is(err, errors.ProtocolError) {
		t.Fatalf("expected ProtocolError for bad time, got %v", err)
	}
}

func TestParseNumber(t *testing.T) {
	valid := map[string]float64{
		`12`:       12,
		`"0.012"`:  0.012,
		`" 2048 "`: 2048,
		`-1.5e2`:   -150,
	}
	for raw, want := range valid {
		v, err := judge.ParseNumber(json.RawMessage(raw))
		if err != nil || v == nil || *v != want {
			t.Fatalf("%s: got %v err=%v", raw, v, err)
		}
	}
	for _, raw := range []string{`null`, `""`, ``} {
		if v, err := judge.ParseNumber(json.RawMessage(raw)); v != nil || err != nil {
			t.Fatalf("%q: expected absent number, got %v err=%v", raw, v, err)
		}
	}
	for _, raw := range []string{`"NaN"`, `"Inf"`, `"+Inf"`, `"0x10"`, `"1_000"`, `"+1"`, `1e999`, `true`, `[1]`} {
		if _, err := judge.ParseNumber(json.RawMessage(raw)); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
	if _, err := judge.ParseDetails([]byte(`{"status_id":4,"time":"NaN"}`)); !errors.Is(err, errors.ProtocolError) {
		t.Fatalf("expected ProtocolError for NaN time, got %v", err)
	}
}

func TestStatusVocabulary(t *testing.T) {
	tests := []struct {
		id       judge.StatusID
		terminal bool
		verdict  string
	}{
		{judge.StatusQueued, false, "pending"},
		{judge.StatusCompiling, false, "judging"},
		{judge.StatusRunning, false, "judging"},
		{judge.StatusAccepted, true, "accepted"},
		{judge.StatusWrongAnswer, true, "wrong_answer"},
		{judge.StatusCompilationError, true, "compilation_error"},
		{judge.StatusRuntimeError, true, "runtime_error"},
		{judge.StatusTimeLimitExceeded, true, "time_limit_exceeded"},
		{judge.StatusMemoryLimitExceeded, true, "memory_limit_exceeded"},
		{judge.StatusID(13), true, "internal_error"},
	}
	for _, tt := range tests {
		if tt.id.Terminal() != tt.terminal {
			t.Fatalf("status %d: terminal=%v", tt.id, tt.id.Terminal())
		}
		if tt.id.Verdict() != tt.verdict {
			t.Fatalf("status %d: verdict=%q want %q", tt.id, tt.id.Verdict(), tt.verdict)
		}
	}
}

func TestComputeBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 350 * time.Millisecond
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for attempt, w := range want {
		if got := judge.ComputeBackoff(attempt, base, max); got != w {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, w)
		}
	}
}

func TestLanguageID(t *testing.T) {
	if id, ok := judge.LanguageID("Python3"); !ok || id != 71 {
		t.Fatalf("expected python id 71, got %d %v", id, ok)
	}
	if id, ok := judge.LanguageID("c++"); !ok || id != 54 {
		t.Fatalf("expected cpp id 54, got %d %v", id, ok)
	}
	if _, ok := judge.LanguageID("cobol"); ok {
		t.Fatalf("expected unknown language")
	}
	if got := len(judge.Languages()); got != 9 {
		t.Fatalf("expected 9 languages, got %d", got)
	}
}

func TestPollSeparateJudgeHostKeepsSessionCredential(t *testing.T) {
	var refreshes atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshes.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	var bearerSeen atomic.Bool
	judgeHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			bearerSeen.Store(true)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Auth-Token") != "judge-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Authentication failed"}`))
			return
		}
		_, _ = w.Write([]byte(statusBody(4)))
	}))
	t.Cleanup(judgeHost.Close)

	ctx := context.Background()
	store := session.NewMemoryStore()
	if err := store.Save(ctx, "s1", session.Credentials{Access: "platform", Refresh: "r1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	client := gateway.New(gateway.NewTransport(api.URL, 5*time.Second), store).Bind("s1")

	cfg := fastConfig()
	cfg.BaseURL = judgeHost.URL
	cfg.AuthToken = "judge-key"
	details, err := judge.NewPoller(client, cfg, nil).Poll(ctx, "t1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if details.StatusID != judge.StatusAccepted {
		t.Fatalf("unexpected status %d", details.StatusID)
	}

	cfg.AuthToken = "wrong"
	if _, err := judge.NewPoller(client, cfg, nil).Poll(ctx, "t1"); !errors.Is(err, errors.Unauthorized) {
		t.Fatalf("expected Unauthorized from the judge host, got %v", err)
	}

	if bearerSeen.Load() {
		t.Fatalf("session token was sent to the judge host")
	}
	if refreshes.Load() != 0 {
		t.Fatalf("judge host rejection triggered a platform refresh")
	}
	creds, err := store.Load(ctx, "s1")
	if err != nil || creds.Access != "platform" {
		t.Fatalf("session should survive, got %+v err=%v", creds, err)
	}
}
