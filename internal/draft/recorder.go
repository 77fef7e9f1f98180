package draft

import (
	"context"
	"sync"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/pkg/utils/logger"

	"go.uber.org/zap"
)

// Recorder owns the one persistence path every draft write goes through.
// Writes are serialized so two saves of the same problem never interleave.
type Recorder struct {
	store   Store
	local   *LocalCache
	metrics metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// NewRecorder writes to store and, for buffer saves, to local when non-nil.
func NewRecorder(store Store, local *LocalCache, m metrics.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		local:   local,
		metrics: metrics.OrNoop(m),
		now:     time.Now,
	}
}

// SaveSubmission links the dispatched snapshot to its graded attempt. It never
// touches the local buffer copy, which may already hold newer edits.
func (r *Recorder) SaveSubmission(ctx context.Context, snap Snapshot) error {
	_, err := r.persist(ctx, Draft{
		ProblemID:    snap.ProblemID,
		Code:         snap.Code,
		Language:     snap.Language,
		SaveType:     SaveSubmission,
		SubmissionID: snap.SubmissionID,
	})
	return err
}

func (r *Recorder) persist(ctx context.Context, d Draft) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.local != nil && d.SaveType != SaveSubmission {
		entry := LocalEntry{Code: d.Code, Language: d.Language, SavedAt: r.now()}
		if err := r.local.Put(ctx, d.ProblemID, entry); err != nil {
			logger.Warn(ctx, "local draft write failed", zap.Int64("problem_id", d.ProblemID), zap.Error(err))
		}
	}

	rec, err := r.store.Save(ctx, d)
	if err != nil {
		r.metrics.IncDraftSave(string(d.SaveType), "failed")
		logger.Warn(ctx, "draft save failed",
			zap.Int64("problem_id", d.ProblemID),
			zap.String("save_type", string(d.SaveType)),
			zap.Error(err),
		)
		return Record{}, err
	}
	r.metrics.IncDraftSave(string(d.SaveType), "ok")
	logger.Debug(ctx, "draft saved",
		zap.Int64("problem_id", d.ProblemID),
		zap.String("save_type", string(d.SaveType)),
		zap.Int64("draft_id", rec.ID),
	)
	return rec, nil
}

func (r *Recorder) discardLocal(ctx context.Context, problemID int64, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local == nil {
		return nil
	}
	return r.local.Delete(ctx, problemID, language)
}
