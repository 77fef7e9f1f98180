// Package settlement marks problems solved after an accepted judgement.
package settlement

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/internal/gateway"
	"ojclient/internal/submission"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
)

const (
	markSolvedPathFormat = "/problems/%d/mark_as_solved"
	defaultCallTimeout   = 10 * time.Second
)

// ProblemProgress is the server's answer to mark-solved.
type ProblemProgress struct {
	Problem  int64      `json:"problem"`
	Solved   bool       `json:"solved"`
	SolvedAt *time.Time `json:"solved_at"`
}

type markSolvedRequest struct {
	Solved bool `json:"solved"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithAsync replaces the runner used to launch mark-solved calls.
func WithAsync(run func(func())) Option {
	return func(r *Reconciler) {
		if run != nil {
			r.async = run
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = metrics.OrNoop(m) }
}

func WithCallTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithOnSettled registers a callback for successful mark-solved replies.
func WithOnSettled(fn func(ctx context.Context, p ProblemProgress)) Option {
	return func(r *Reconciler) { r.onSettled = fn }
}

// Reconciler fires mark-solved once for each result that transitions a
// problem into the accepted state. It implements submission.Observer.
type Reconciler struct {
	doer      gateway.Doer
	metrics   metrics.Metrics
	async     func(func())
	timeout   time.Duration
	onSettled func(ctx context.Context, p ProblemProgress)

	mu      sync.Mutex
	lastKey string
}

func NewReconciler(doer gateway.Doer, opts ...Option) *Reconciler {
	r := &Reconciler{
		doer:    doer,
		metrics: metrics.Noop{},
		async:   threading.GoSafe,
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ submission.Observer = (*Reconciler)(nil)

// Observe inspects an applied result. It returns immediately; the mark-solved
// call runs in the background.
func (r *Reconciler) Observe(ctx context.Context, res submission.Result) {
	if res.Failed() || !res.Output.Accepted() || res.Request.ProblemID == nil {
		return
	}
	problemID := *res.Request.ProblemID
	key := settlementKey(res.DispatchID, problemID)

	r.mu.Lock()
	if key == r.lastKey {
		r.mu.Unlock()
		return
	}
	r.lastKey = key
	r.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	r.async(func() {
		cctx, cancel := context.WithTimeout(bg, r.timeout)
		defer cancel()
		r.markSolved(cctx, problemID)
	})
}

// LastKey returns the settlement key of the last fired mark-solved.
func (r *Reconciler) LastKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastKey
}

func (r *Reconciler) markSolved(ctx context.Context, problemID int64) {
	req, err := gateway.JSONRequest(http.MethodPost, fmt.Sprintf(markSolvedPathFormat, problemID), markSolvedRequest{Solved: true})
	if err != nil {
		r.fail(ctx, problemID, err)
		return
	}
	var progress ProblemProgress
	if _, err := gateway.Call(ctx, r.doer, req, &progress); err != nil {
		r.fail(ctx, problemID, err)
		return
	}
	if progress.Problem == 0 {
		progress.Problem = problemID
	}
	r.metrics.IncMarkSolved("ok")
	logger.Info(ctx, "problem marked solved", zap.Int64("problem_id", problemID))
	if r.onSettled != nil {
		r.onSettled(ctx, progress)
	}
}

func (r *Reconciler) fail(ctx context.Context, problemID int64, err error) {
	r.metrics.IncMarkSolved("error")
	logger.Warn(ctx, "mark solved failed",
		zap.Int64("problem_id", problemID),
		zap.Int("code", int(errors.MarkSolvedFailed)),
		zap.Int("cause_code", int(errors.GetCode(err))),
		zap.Error(err),
	)
}

func settlementKey(dispatchID string, problemID int64) string {
	return fmt.Sprintf("%s:%d", dispatchID, problemID)
}
