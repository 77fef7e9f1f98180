package repl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ojclient/internal/cli/command"
	"ojclient/internal/cli/repl"
	"ojclient/internal/draft"
	"ojclient/internal/gateway"
	"ojclient/internal/session"
	"ojclient/internal/settlement"
	"ojclient/internal/submission"
	"ojclient/pkg/errors"
)

type scriptedReader struct {
	lines   []string
	answers []string
	prompts []string
	secrets []bool
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) Prompt(label string, secret bool) (string, error) {
	r.prompts = append(r.prompts, label)
	r.secrets = append(r.secrets, secret)
	if len(r.answers) == 0 {
		return "", io.EOF
	}
	a := r.answers[0]
	r.answers = r.answers[1:]
	return a, nil
}

func (r *scriptedReader) Close() error { return nil }

// backend is a minimal in-test API.
type backend struct {
	mu         sync.Mutex
	submitted  []map[string]any
	drafts     []draft.Draft
	markSolved int
	failNext   int
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access":"a1","refresh":"r1"}`))
	})
	mux.HandleFunc("POST /submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		if b.failNext > 0 {
			b.failNext--
			b.mu.Unlock()
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"detail":"judge unavailable"}`))
			return
		}
		b.submitted = append(b.submitted, in)
		b.mu.Unlock()
		if _, ok := in["problem_id"]; ok {
			_, _ = w.Write([]byte(`{"id":11,"status":"accepted","execution_time":12,"memory_used":256,"output":"ok","error":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"stdout":"1\n","stderr":""}`))
	})
	mux.HandleFunc("POST /problems/7/mark_as_solved", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.markSolved++
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"problem":7,"solved":true,"solved_at":"2026-10-18T10:00:00Z"}`))
	})
	mux.HandleFunc("POST /drafts/save_draft", func(w http.ResponseWriter, r *http.Request) {
		var d draft.Draft
		_ = json.NewDecoder(r.Body).Decode(&d)
		b.mu.Lock()
		b.drafts = append(b.drafts, d)
		id := len(b.drafts)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(draft.Record{ID: int64(id), ProblemID: d.ProblemID, Code: d.Code, Language: d.Language, SaveType: d.SaveType, CreatedAt: time.Now()})
	})
	mux.HandleFunc("GET /drafts/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
	})
	return mux
}

func syncRun(fn func()) { fn() }

func newEnv(t *testing.T, b *backend) *command.Env {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	gw := gateway.New(gateway.NewTransport(srv.URL, 5*time.Second), session.NewMemoryStore())
	client := gw.Bind(session.DefaultID)
	recorder := draft.NewRecorder(draft.NewClient(client), nil, nil)
	dispatcher := submission.NewDispatcher(client, submission.WithRecorder(recorder), submission.WithAsync(syncRun))
	reconciler := settlement.NewReconciler(client, settlement.WithAsync(syncRun))
	return &command.Env{
		Gateway:    gw,
		Client:     client,
		Dispatcher: dispatcher,
		Runs:       submission.NewSlot(dispatcher, nil),
		Submits:    submission.NewSlot(dispatcher, nil, reconciler),
		Recorder:   recorder,
		Drafts:     draft.NewClient(client),
		Debounce:   time.Hour,
	}
}

func TestSessionSubmitsOpenDraft(t *testing.T) {
	b := &backend{}
	env := newEnv(t, b)
	reader := &scriptedReader{
		lines: []string{
			"login username=demo",
			`run lang=py code="print(1)"`,
			"draft open problem=7 lang=python",
			`draft edit code="print(2)"`,
			"submit problem=7 lang=python",
			"exit",
			"never reached",
		},
		answers: []string{"secret"},
	}
	var out bytes.Buffer
	s := repl.New(env, command.Registry(), reader, &out, false)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reader.lines) != 1 {
		t.Fatalf("expected exit to stop the loop, %d lines left", len(reader.lines))
	}
	if len(reader.prompts) != 1 || reader.prompts[0] != "password" || !reader.secrets[0] {
		t.Fatalf("expected one secret password prompt, got %v %v", reader.prompts, reader.secrets)
	}

	text := out.String()
	if strings.Contains(text, "error") {
		t.Fatalf("unexpected error output:\n%s", text)
	}
	if !strings.Contains(text, `"status":"completed"`) || !strings.Contains(text, `"status":"accepted"`) {
		t.Fatalf("missing outputs:\n%s", text)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.submitted) != 2 || b.submitted[1]["code"] != "print(2)" {
		t.Fatalf("unexpected submissions %v", b.submitted)
	}
	if b.markSolved != 1 {
		t.Fatalf("expected one mark-solved, got %d", b.markSolved)
	}
	var types []draft.SaveType
	for _, d := range b.drafts {
		types = append(types, d.SaveType)
	}
	if len(types) != 2 || types[0] != draft.SaveAuto || types[1] != draft.SaveSubmission {
		t.Fatalf("unexpected draft saves %v", types)
	}
	if b.drafts[1].Code != "print(2)" || b.drafts[1].SubmissionID == nil || *b.drafts[1].SubmissionID != 11 {
		t.Fatalf("unexpected submission draft %+v", b.drafts[1])
	}
}

func TestExecuteReportsErrors(t *testing.T) {
	env := newEnv(t, &backend{})
	var out bytes.Buffer
	s := repl.New(env, command.Registry(), &scriptedReader{}, &out, true)

	if err := s.Execute(context.Background(), "frobnicate now"); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if err := s.Execute(context.Background(), "run lang=python oops"); err == nil {
		t.Fatalf("expected invalid param error")
	}
	if err := s.Execute(context.Background(), `run lang=python code="x`); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Execute(context.Background(), `submit problem=7 lang=python code=x`); err == nil {
		t.Fatalf("expected submit without login to fail")
	}
	if err := s.Execute(context.Background(), "draft save"); err == nil {
		t.Fatalf("expected draft save without an open draft to fail")
	}
}

func TestLoginFailureIsReported(t *testing.T) {
	env := newEnv(t, &backend{})
	var out bytes.Buffer
	reader := &scriptedReader{lines: []string{"login username=demo password=wrong"}}
	s := repl.New(env, command.Registry(), reader, &out, false)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "error [11003]") {
		t.Fatalf("expected LoginFailed, got %q", out.String())
	}
}

func TestFailedSubmissionOffersResubmit(t *testing.T) {
	b := &backend{failNext: 1}
	env := newEnv(t, b)
	reader := &scriptedReader{lines: []string{
		"resubmit",
		"login username=demo password=secret",
		"submit problem=7 lang=python code=print(3)",
		"show result",
		"resubmit",
		"show result",
		"logout",
		"show result",
	}}
	var out bytes.Buffer
	s := repl.New(env, command.Registry(), reader, &out, false)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 output lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "no submission to repeat") {
		t.Fatalf("expected nothing to repeat, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "error [") || !strings.Contains(lines[2], "judge unavailable (retry with: resubmit)") {
		t.Fatalf("expected inline failure with retry hint, got %q", lines[2])
	}
	if !strings.Contains(lines[3], `"pending":false`) || !strings.Contains(lines[3], `"retry":"resubmit"`) {
		t.Fatalf("expected failed latest submission, got %q", lines[3])
	}
	if !strings.Contains(lines[4], `"status":"accepted"`) {
		t.Fatalf("expected resubmit to be judged, got %q", lines[4])
	}
	if !strings.Contains(lines[5], `"status":"accepted"`) || strings.Contains(lines[5], `"retry"`) {
		t.Fatalf("expected accepted latest submission, got %q", lines[5])
	}
	if strings.Contains(lines[7], "dispatch_id") {
		t.Fatalf("logout should forget results, got %q", lines[7])
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.submitted) != 1 || b.submitted[0]["code"] != "print(3)" {
		t.Fatalf("expected the failed request to be repeated, got %v", b.submitted)
	}
	if b.markSolved != 1 {
		t.Fatalf("expected one mark-solved, got %d", b.markSolved)
	}
}

func TestExpiredSessionHintsLogin(t *testing.T) {
	env := newEnv(t, &backend{})
	var out bytes.Buffer
	s := repl.New(env, command.Registry(), &scriptedReader{}, &out, false)

	err := s.Execute(context.Background(), "run lang=python code=print(1)")
	if err == nil {
		t.Fatalf("expected run without login to fail")
	}
	if !errors.Is(err, errors.AuthExpired) {
		t.Fatalf("expected AuthExpired, got %v", err)
	}
	if !strings.HasSuffix(err.Error(), "(log in, then rerun)") {
		t.Fatalf("expected a login hint, got %q", err.Error())
	}
}

func TestDraftDiscardClosesWithoutSaving(t *testing.T) {
	b := &backend{}
	env := newEnv(t, b)
	ctx := context.Background()
	var out bytes.Buffer
	s := repl.New(env, command.Registry(), &scriptedReader{}, &out, false)

	for _, line := range []string{
		"login username=demo password=secret",
		"draft open problem=7 lang=python",
		`draft edit code="print(9)"`,
		"draft discard",
	} {
		if err := s.Execute(ctx, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if env.Editor() != nil {
		t.Fatalf("expected no open draft after discard")
	}
	if err := s.Execute(ctx, "draft show"); err == nil {
		t.Fatalf("expected draft show to fail after discard")
	}
	if err := s.Execute(ctx, "draft discard"); err == nil {
		t.Fatalf("expected discard without an open draft to fail")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.drafts) != 0 {
		t.Fatalf("discarded buffer must not be saved, got %v", b.drafts)
	}
}
