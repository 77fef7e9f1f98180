package devserver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"ojclient/internal/judge"

	"github.com/google/uuid"
)

// verdict is the fake judge's decision for one piece of code.
type verdict struct {
	status judge.StatusID
	stdout string
	stderr string
}

// judgeCode grades code by marker comments so every verdict can be produced
// on demand: "@wrong", "@compile", "@crash", "@tle", "@mle", "@internal".
func judgeCode(code string) verdict {
	switch {
	case strings.Contains(code, "@compile"):
		return verdict{status: judge.StatusCompilationError, stderr: "main:1:1: error: expected declaration"}
	case strings.Contains(code, "@crash"):
		return verdict{status: judge.StatusRuntimeError, stderr: "panic: runtime error: index out of range"}
	case strings.Contains(code, "@tle"):
		return verdict{status: judge.StatusTimeLimitExceeded}
	case strings.Contains(code, "@mle"):
		return verdict{status: judge.StatusMemoryLimitExceeded}
	case strings.Contains(code, "@internal"):
		return verdict{status: judge.StatusID(13), stderr: "sandbox unavailable"}
	case strings.Contains(code, "@wrong"):
		return verdict{status: judge.StatusWrongAnswer, stdout: "41\n"}
	default:
		return verdict{status: judge.StatusAccepted, stdout: "ok"}
	}
}

type ticket struct {
	token  string
	user   string
	polls  int
	result verdict
}

type draftKey struct {
	user    string
	problem int64
}

type progressKey = draftKey

// Stats counts side effects for tests and logs.
type Stats struct {
	Logins      int
	Refreshes   int
	Submissions int
	Polls       int
	MarkSolved  int
	DraftSaves  int
}

// state is the in-memory backend.
type state struct {
	mu          sync.Mutex
	nextID      int64
	tickets     map[string]*ticket
	drafts      map[draftKey][]DraftRecord
	progress    map[progressKey]ProblemProgress
	stats       Stats
	steps       []judge.StatusID
	now         func() time.Time
	submissions map[int64]string
}

func newState(steps []int) *state {
	s := &state{
		tickets:     make(map[string]*ticket),
		drafts:      make(map[draftKey][]DraftRecord),
		progress:    make(map[progressKey]ProblemProgress),
		now:         time.Now,
		submissions: make(map[int64]string),
	}
	for _, step := range steps {
		s.steps = append(s.steps, judge.StatusID(step))
	}
	return s
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *state) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// recordSubmission stores the graded code and returns its id.
func (s *state) recordSubmission(user string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.submissions[id] = user
	return id
}

func (s *state) openTicket(user string, v verdict) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ticket{token: uuid.NewString(), user: user, result: v}
	s.tickets[t.token] = t
	return t.token
}

// poll advances the ticket by one step and reports its status.
func (s *state) poll(user, token string) (judge.StatusID, verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[token]
	if !ok || t.user != user {
		return 0, verdict{}, false
	}
	step := t.polls
	t.polls++
	if step < len(s.steps) {
		return s.steps[step], verdict{}, true
	}
	return t.result.status, t.result, true
}

func (s *state) saveDraft(user string, in DraftInput) DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := DraftRecord{
		ID:           s.id(),
		ProblemID:    in.ProblemID,
		Code:         in.Code,
		Language:     in.Language,
		SaveType:     in.SaveType,
		SubmissionID: in.SubmissionID,
		CreatedAt:    s.now().UTC(),
	}
	key := draftKey{user: user, problem: in.ProblemID}
	s.drafts[key] = append(s.drafts[key], rec)
	return rec
}

func (s *state) latestDraft(user string, problemID int64) (DraftRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.drafts[draftKey{user: user, problem: problemID}]
	if len(list) == 0 {
		return DraftRecord{}, false
	}
	return list[len(list)-1], true
}

func (s *state) draftHistory(user string, problemID int64) []DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DraftRecord(nil), s.drafts[draftKey{user: user, problem: problemID}]...)
}

// markSolved is idempotent: solved_at keeps the first solve time.
func (s *state) markSolved(user string, problemID int64, solved bool) ProblemProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{user: user, problem: problemID}
	p, ok := s.progress[key]
	if !ok {
		p = ProblemProgress{Problem: problemID}
	}
	switch {
	case solved && !p.Solved:
		now := s.now().UTC()
		p.Solved, p.SolvedAt = true, &now
	case !solved:
		p.Solved, p.SolvedAt = false, nil
	}
	s.progress[key] = p
	return p
}

func formatSeconds(sec float64) string {
	return fmt.Sprintf("%.3f", sec)
}
