package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ojclient/internal/draft"
	"ojclient/internal/gateway"
	"ojclient/internal/judge"
	"ojclient/internal/submission"
)

// Env is everything command handlers act on. One Env serves one REPL session.
type Env struct {
	Gateway    *gateway.Gateway
	Client     *gateway.Client
	Dispatcher *submission.Dispatcher
	// Runs and Submits are separate call sites so a scratch run never
	// supersedes a pending judged submission.
	Runs     *submission.Slot
	Submits  *submission.Slot
	Poller   *judge.Poller
	Recorder *draft.Recorder
	Drafts   draft.Store
	Debounce time.Duration
	Info     map[string]any

	mu     sync.Mutex
	editor *draft.Coordinator
}

// Editor returns the open draft buffer, if any.
func (e *Env) Editor() *draft.Coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editor
}

// OpenEditor replaces the open buffer, flushing the previous one.
func (e *Env) OpenEditor(ctx context.Context, problemID int64, language string) (*draft.Coordinator, error) {
	if e.Recorder == nil {
		return nil, fmt.Errorf("drafts are not configured")
	}
	e.mu.Lock()
	prev := e.editor
	e.editor = draft.NewCoordinator(e.Recorder, problemID, language, e.Debounce)
	next := e.editor
	e.mu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			return next, fmt.Errorf("flush previous draft: %w", err)
		}
	}
	return next, nil
}

// Close flushes the open buffer.
func (e *Env) Close(ctx context.Context) error {
	e.mu.Lock()
	ed := e.editor
	e.editor = nil
	e.mu.Unlock()
	if ed == nil {
		return nil
	}
	return ed.Close(ctx)
}

// DiscardEditor drops the open buffer without flushing it.
func (e *Env) DiscardEditor(ctx context.Context) error {
	e.mu.Lock()
	ed := e.editor
	e.editor = nil
	e.mu.Unlock()
	if ed == nil {
		return nil
	}
	return ed.Discard(ctx)
}
