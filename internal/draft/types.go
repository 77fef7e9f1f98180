// Package draft keeps in-progress code persisted: debounced autosaves of the
// editor buffer, explicit manual saves, and the exact snapshot of every judged
// submission.
package draft

import "time"

// SaveType tags why a draft was written.
type SaveType string

const (
	SaveAuto       SaveType = "auto_save"
	SaveManual     SaveType = "manual_save"
	SaveSubmission SaveType = "submission"
)

// Draft is the body of POST /drafts/save_draft.
type Draft struct {
	ProblemID    int64    `json:"problem_id"`
	Code         string   `json:"code"`
	Language     string   `json:"language"`
	SaveType     SaveType `json:"save_type"`
	SubmissionID *int64   `json:"submission_id,omitempty"`
}

// Record is a draft as stored by the server.
type Record struct {
	ID        int64     `json:"id"`
	ProblemID int64     `json:"problem"`
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	SaveType  SaveType  `json:"save_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the code exactly as it was dispatched for judging.
type Snapshot struct {
	ProblemID    int64
	Language     string
	Code         string
	SubmissionID *int64
	TakenAt      time.Time
}
