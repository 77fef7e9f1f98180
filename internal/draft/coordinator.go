package draft

import (
	"context"
	"sync"
	"time"

	"ojclient/pkg/errors"
	"ojclient/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before an
// autosave is written.
const DefaultDebounce = 5 * time.Second

// Coordinator tracks the editor buffer of one problem and language.
type Coordinator struct {
	rec       *Recorder
	problemID int64
	language  string
	debounce  time.Duration

	mu        sync.Mutex
	code      string
	version   uint64
	dirty     bool
	timer     *time.Timer
	closed    bool
	lastSaved time.Time
}

func NewCoordinator(rec *Recorder, problemID int64, language string, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		rec:       rec,
		problemID: problemID,
		language:  language,
		debounce:  debounce,
	}
}

func (c *Coordinator) ProblemID() int64 { return c.problemID }

func (c *Coordinator) Language() string { return c.language }

// Code returns the current buffer.
func (c *Coordinator) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Dirty reports unsaved changes.
func (c *Coordinator) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// LastSaved is the time of the last successful buffer save.
func (c *Coordinator) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// Change records new buffer content and restarts the debounce window.
func (c *Coordinator) Change(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || code == c.code {
		return
	}
	c.code = code
	c.version++
	c.dirty = true
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.debounce, c.autosave)
}

func (c *Coordinator) autosave() {
	ctx := context.Background()
	if err := c.SaveAuto(ctx); err != nil {
		logger.Warn(ctx, "autosave failed", zap.Int64("problem_id", c.problemID), zap.Error(err))
	}
}

// SaveAuto writes the buffer as an auto_save if it has unsaved changes.
func (c *Coordinator) SaveAuto(ctx context.Context) error {
	_, err := c.checkpoint(ctx, SaveAuto, false)
	return err
}

// SaveManual writes the buffer as a manual_save even if nothing changed.
func (c *Coordinator) SaveManual(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
	_, err := c.checkpoint(ctx, SaveManual, true)
	return err
}

// Snapshot flushes a pending autosave and returns the exact code to dispatch.
// A failed flush is logged; the local copy still holds the buffer.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, errors.New(errors.InvalidParams).WithMessage("draft coordinator is closed")
	}
	c.stopTimerLocked()
	c.mu.Unlock()

	code, err := c.checkpoint(ctx, SaveAuto, false)
	if err != nil {
		logger.Warn(ctx, "checkpoint before dispatch failed", zap.Int64("problem_id", c.problemID), zap.Error(err))
	}
	return Snapshot{
		ProblemID: c.problemID,
		Language:  c.language,
		Code:      code,
		TakenAt:   c.rec.now(),
	}, nil
}

// checkpoint persists the buffer as captured at call time and returns it.
func (c *Coordinator) checkpoint(ctx context.Context, t SaveType, force bool) (string, error) {
	c.mu.Lock()
	code, version, dirty := c.code, c.version, c.dirty
	c.mu.Unlock()

	if !dirty && !force {
		return code, nil
	}

	_, err := c.rec.persist(ctx, Draft{
		ProblemID: c.problemID,
		Code:      code,
		Language:  c.language,
		SaveType:  t,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return code, err
	}
	c.lastSaved = c.rec.now()
	// Edits made while the save was in flight keep the buffer dirty.
	if c.version == version {
		c.dirty = false
	}
	return code, nil
}

// Restore loads the newest of the server's latest draft and the local copy
// into the buffer. Unsaved edits are never overwritten. It returns the
// buffer and where it came from ("server", "local", "buffer" or "").
func (c *Coordinator) Restore(ctx context.Context) (string, string, error) {
	var (
		serverRec   Record
		haveServer  bool
		localEntry  LocalEntry
		haveLocal   bool
		firstFailed error
	)

	rec, err := c.rec.store.Latest(ctx, c.problemID)
	switch {
	case err == nil:
		if rec.Language == "" || rec.Language == c.language {
			serverRec, haveServer = rec, true
		}
	case errors.Is(err, errors.DraftNotFound):
	default:
		firstFailed = err
		logger.Warn(ctx, "load latest draft failed", zap.Int64("problem_id", c.problemID), zap.Error(err))
	}

	if c.rec.local != nil {
		entry, ok, err := c.rec.local.Get(ctx, c.problemID, c.language)
		if err != nil {
			logger.Warn(ctx, "load local draft failed", zap.Int64("problem_id", c.problemID), zap.Error(err))
		} else if ok {
			localEntry, haveLocal = entry, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty {
		return c.code, "buffer", nil
	}

	switch {
	case haveServer && haveLocal:
		if localEntry.SavedAt.After(serverRec.CreatedAt) {
			c.code = localEntry.Code
			return c.code, "local", nil
		}
		c.code = serverRec.Code
		return c.code, "server", nil
	case haveServer:
		c.code = serverRec.Code
		return c.code, "server", nil
	case haveLocal:
		c.code = localEntry.Code
		return c.code, "local", nil
	}
	return c.code, "", firstFailed
}

// Close stops the debounce timer and flushes unsaved changes.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	return c.SaveAuto(ctx)
}

// Discard drops unsaved edits and the local copy, then closes the buffer.
// Drafts already on the server are kept.
func (c *Coordinator) Discard(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.dirty = false
	c.stopTimerLocked()
	c.mu.Unlock()
	return c.rec.discardLocal(ctx, c.problemID, c.language)
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
