package submission

import (
	"context"
	"net/http"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/internal/draft"
	"ojclient/internal/gateway"
	"ojclient/internal/judge"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
)

const (
	defaultSubmitPath = "/submissions"
	languagesPath     = "/languages"
	recordTimeout     = 10 * time.Second
)

// TicketPoller resolves a judge ticket to its settled details.
type TicketPoller interface {
	Poll(ctx context.Context, token string) (judge.Details, error)
}

// Recorder persists the code of a graded submission.
type Recorder interface {
	SaveSubmission(ctx context.Context, snap draft.Snapshot) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithPoller(p TicketPoller) Option {
	return func(d *Dispatcher) { d.poller = p }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics.OrNoop(m) }
}

// WithAsync replaces the runner used for background work.
func WithAsync(run func(func())) Option {
	return func(d *Dispatcher) {
		if run != nil {
			d.async = run
		}
	}
}

func WithSubmitPath(path string) Option {
	return func(d *Dispatcher) {
		if path != "" {
			d.path = path
		}
	}
}

// Dispatcher sends submissions. It never retries: re-running code is a user
// decision.
type Dispatcher struct {
	doer     gateway.Doer
	path     string
	poller   TicketPoller
	recorder Recorder
	metrics  metrics.Metrics
	async    func(func())
	now      func() time.Time
}

func NewDispatcher(doer gateway.Doer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		doer:    doer,
		path:    defaultSubmitPath,
		metrics: metrics.Noop{},
		async:   threading.GoSafe,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit sends req and returns its unified output. Transport and protocol
// failures are returned as errors; a non-accepted verdict is not an error.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (Output, error) {
	req, err := req.Validate()
	if err != nil {
		return Output{}, err
	}

	httpReq, err := gateway.JSONRequest(http.MethodPost, d.path, req)
	if err != nil {
		return Output{}, err
	}
	resp, err := gateway.Call(ctx, d.doer, httpReq, nil)
	if err != nil {
		logger.Warn(ctx, "submission dispatch failed", zap.String("language", req.Language), zap.Error(err))
		return Output{}, err
	}

	n, err := Normalize(resp.Body)
	if err != nil {
		d.metrics.IncSubmission("invalid", "protocol_error")
		logger.Error(ctx, "submission reply rejected", zap.Error(err), zap.ByteString("body", truncate(resp.Body, 512)))
		return Output{}, err
	}

	if n.Shape == ShapeTicket {
		if d.poller == nil {
			return Output{}, errors.ProtocolFailure("server returned judge ticket %q but no poller is configured", n.Token)
		}
		details, err := d.poller.Poll(ctx, n.Token)
		if err != nil {
			logger.Warn(ctx, "judge ticket polling failed", zap.String("token", n.Token), zap.Error(err))
			return Output{}, err
		}
		n.Output = FromDetails(details)
	}

	d.metrics.IncSubmission(string(n.Shape), n.Output.Status)
	logger.Info(ctx, "submission settled",
		zap.String("shape", string(n.Shape)),
		zap.String("status", n.Output.Status),
	)

	if n.Shape != ShapeImmediate && req.ProblemID != nil {
		d.record(ctx, draft.Snapshot{
			ProblemID:    *req.ProblemID,
			Language:     req.Language,
			Code:         req.Code,
			SubmissionID: n.SubmissionID,
			TakenAt:      d.now(),
		})
	}
	return n.Output, nil
}

// record saves the graded code in the background; failures are only logged.
func (d *Dispatcher) record(ctx context.Context, snap draft.Snapshot) {
	if d.recorder == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	d.async(func() {
		rctx, cancel := context.WithTimeout(bg, recordTimeout)
		defer cancel()
		if err := d.recorder.SaveSubmission(rctx, snap); err != nil {
			logger.Warn(rctx, "submission draft save failed", zap.Int64("problem_id", snap.ProblemID), zap.Error(err))
		}
	})
}

// LanguageInfo is one entry of GET /languages.
type LanguageInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	JudgeID int    `json:"judge_id"`
}

// Languages lists what the server accepts, falling back to the built-in judge
// table when the server does not publish a list.
func (d *Dispatcher) Languages(ctx context.Context) ([]LanguageInfo, error) {
	var out []LanguageInfo
	req := gateway.Request{Method: http.MethodGet, Path: languagesPath, Anonymous: true}
	if _, err := gateway.Call(ctx, d.doer, req, &out); err != nil {
		if !errors.Is(err, errors.NotFound) {
			return nil, err
		}
		for i, lang := range judge.Languages() {
			out = append(out, LanguageInfo{ID: int64(i + 1), Name: lang.Name, JudgeID: lang.JudgeID})
		}
	}
	return out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
