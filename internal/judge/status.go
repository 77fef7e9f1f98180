// Package judge polls asynchronous judge tickets until they settle.
package judge

import "strconv"

// StatusID is the judge's numeric status.
type StatusID int

const (
	StatusQueued              StatusID = 1
	StatusCompiling           StatusID = 2
	StatusRunning             StatusID = 3
	StatusAccepted            StatusID = 4
	StatusWrongAnswer         StatusID = 5
	StatusCompilationError    StatusID = 6
	StatusRuntimeError        StatusID = 7
	StatusTimeLimitExceeded   StatusID = 8
	StatusMemoryLimitExceeded StatusID = 9
)

// TerminalThreshold is the first status id after which a ticket never changes.
const TerminalThreshold = StatusAccepted

// Terminal reports whether no further transition will occur.
func (s StatusID) Terminal() bool {
	return s >= TerminalThreshold
}

// Label is the judge's own name for the status.
func (s StatusID) Label() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusCompiling:
		return "compiling"
	case StatusRunning:
		return "running"
	case StatusAccepted:
		return "accepted"
	case StatusWrongAnswer:
		return "wrong answer"
	case StatusCompilationError:
		return "compilation error"
	case StatusRuntimeError:
		return "runtime error"
	case StatusTimeLimitExceeded:
		return "time limit exceeded"
	case StatusMemoryLimitExceeded:
		return "memory limit exceeded"
	default:
		return "status " + strconv.Itoa(int(s))
	}
}

// Verdict maps the status id onto the unified status vocabulary.
func (s StatusID) Verdict() string {
	switch {
	case s == StatusQueued:
		return "pending"
	case s == StatusCompiling, s == StatusRunning:
		return "judging"
	case s == StatusAccepted:
		return "accepted"
	case s == StatusWrongAnswer:
		return "wrong_answer"
	case s == StatusCompilationError:
		return "compilation_error"
	case s == StatusRuntimeError:
		return "runtime_error"
	case s == StatusTimeLimitExceeded:
		return "time_limit_exceeded"
	case s == StatusMemoryLimitExceeded:
		return "memory_limit_exceeded"
	case s > StatusMemoryLimitExceeded:
		return "internal_error"
	default:
		return "pending"
	}
}
