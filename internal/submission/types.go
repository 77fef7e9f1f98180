// Package submission dispatches code for execution or judging and
// normalizes every backend reply into one Output.
package submission

import (
	"strings"

	"ojclient/internal/judge"
	"ojclient/pkg/errors"
)

// Status values of the unified output.
const (
	StatusCompleted           = "completed"
	StatusPending             = "pending"
	StatusJudging             = "judging"
	StatusAccepted            = "accepted"
	StatusWrongAnswer         = "wrong_answer"
	StatusRuntimeError        = "runtime_error"
	StatusCompilationError    = "compilation_error"
	StatusTimeLimitExceeded   = "time_limit_exceeded"
	StatusMemoryLimitExceeded = "memory_limit_exceeded"
	StatusInternalError       = "internal_error"
)

// judgedStatuses is the closed vocabulary of the judged response shape.
var judgedStatuses = map[string]bool{
	StatusPending:             true,
	StatusJudging:             true,
	StatusAccepted:            true,
	StatusWrongAnswer:         true,
	StatusRuntimeError:        true,
	StatusCompilationError:    true,
	StatusTimeLimitExceeded:   true,
	StatusMemoryLimitExceeded: true,
	StatusInternalError:       true,
}

// IsJudgedStatus reports membership in the judged vocabulary.
func IsJudgedStatus(status string) bool {
	return judgedStatuses[status]
}

// Request is one user-initiated run or submit. It is passed by value so the
// dispatched code cannot change afterwards.
type Request struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	ProblemID *int64 `json:"problem_id,omitempty"`
}

// Validate checks the request and canonicalizes its language name.
func (r Request) Validate() (Request, error) {
	if strings.TrimSpace(r.Code) == "" {
		return r, errors.ValidationError("code", "code is empty")
	}
	lang := judge.CanonicalLanguage(r.Language)
	if lang == "" {
		return r, errors.Newf(errors.LanguageNotSupported, "language %q is not supported", r.Language)
	}
	if r.ProblemID != nil && *r.ProblemID <= 0 {
		return r, errors.ValidationError("problem_id", "problem id must be positive")
	}
	r.Language = lang
	return r, nil
}

// Output is the unified result. Absent values are nil and encode as null.
// ExecutionTime is in milliseconds and MemoryUsed in kilobytes.
type Output struct {
	Status        string   `json:"status"`
	ExecutionTime *float64 `json:"executionTime"`
	MemoryUsed    *float64 `json:"memoryUsed"`
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
}

func (o Output) Accepted() bool {
	return o.Status == StatusAccepted
}

// GradingFailure reports a settled judge verdict other than accepted. It is a
// normal outcome, not an error.
func (o Output) GradingFailure() bool {
	return IsJudgedStatus(o.Status) && !o.Accepted() && o.Status != StatusPending && o.Status != StatusJudging
}

// Shape names the backend reply form an Output was built from.
type Shape string

const (
	ShapeImmediate Shape = "immediate"
	ShapeJudged    Shape = "judged"
	ShapeTicket    Shape = "ticket"
)
