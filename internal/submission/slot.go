package submission

import (
	"context"
	"sync"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/pkg/utils/contextkey"
	"ojclient/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is one finished dispatch as seen by a call site.
type Result struct {
	DispatchID  string
	Seq         uint64
	Request     Request
	Output      Output
	Err         error
	CompletedAt time.Time
}

// Failed reports a dispatch that produced no output.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Observer receives every result a Slot applies. Observe runs while the slot
// is locked and must not block or dispatch on the same slot.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Result)

func (f ObserverFunc) Observe(ctx context.Context, r Result) { f(ctx, r) }

// Submitter is what a Slot dispatches through.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Output, error)
}

// Slot tracks the dispatches of one call site. Only the most recently started
// dispatch may apply its result; older ones finish unobserved.
type Slot struct {
	submitter Submitter
	metrics   metrics.Metrics

	mu        sync.Mutex
	seq       uint64
	settled   uint64
	latest    *Result
	observers []Observer
}

func NewSlot(s Submitter, m metrics.Metrics, observers ...Observer) *Slot {
	return &Slot{submitter: s, metrics: metrics.OrNoop(m), observers: observers}
}

// Dispatch submits req and reports whether its result was applied.
func (s *Slot) Dispatch(ctx context.Context, req Request) (Result, bool) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	id := uuid.NewString()
	ctx = contextkey.WithDispatchID(ctx, id)
	out, err := s.submitter.Submit(ctx, req)
	res := Result{
		DispatchID:  id,
		Seq:         seq,
		Request:     req,
		Output:      out,
		Err:         err,
		CompletedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.metrics.IncStaleDropped()
		logger.Info(ctx, "dropping stale submission result", zap.Uint64("seq", seq), zap.Uint64("current", s.seq))
		return res, false
	}
	s.latest = &res
	s.settled = seq
	for _, o := range s.observers {
		o.Observe(ctx, res)
	}
	return res, true
}

// Latest returns the last applied result.
func (s *Slot) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Pending reports whether the newest dispatch has not resolved yet.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq != s.settled
}

// Reset forgets the applied result and invalidates any in-flight dispatch.
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.settled = s.seq
	s.latest = nil
}
