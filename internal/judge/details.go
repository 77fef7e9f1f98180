package judge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ojclient/pkg/errors"
)

// Details is one poll reply for a ticket.
type Details struct {
	Token         string
	StatusID      StatusID
	Description   string
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	// TimeSeconds is the run time as reported, in seconds.
	TimeSeconds *float64
	// MemoryKB is the peak memory as reported, in kilobytes.
	MemoryKB *float64
}

type rawStatus struct {
	ID          StatusID `json:"id"`
	Description string   `json:"description"`
}

type rawDetails struct {
	Token         string          `json:"token"`
	StatusID      *StatusID       `json:"status_id"`
	Status        *rawStatus      `json:"status"`
	Stdout        *string         `json:"stdout"`
	Stderr        *string         `json:"stderr"`
	CompileOutput *string         `json:"compile_output"`
	Time          json.RawMessage `json:"time"`
	Memory        json.RawMessage `json:"memory"`
}

// ParseDetails decodes a poll reply. The status may arrive as a top-level
// status_id or as a nested {id, description} object.
func ParseDetails(body []byte) (Details, error) {
	var raw rawDetails
	if err := json.Unmarshal(body, &raw); err != nil {
		return Details{}, errors.Wrapf(err, errors.ProtocolError, "decode judge details failed: %v", err)
	}
	d := Details{
		Token:         raw.Token,
		Stdout:        raw.Stdout,
		Stderr:        raw.Stderr,
		CompileOutput: raw.CompileOutput,
	}
	switch {
	case raw.StatusID != nil:
		d.StatusID = *raw.StatusID
		if raw.Status != nil {
			d.Description = raw.Status.Description
		}
	case raw.Status != nil:
		d.StatusID = raw.Status.ID
		d.Description = raw.Status.Description
	}
	if d.StatusID <= 0 {
		return Details{}, errors.ProtocolFailure("judge details carry no status id")
	}
	if d.Description == "" {
		d.Description = d.StatusID.Label()
	}

	var err error
	if d.TimeSeconds, err = ParseNumber(raw.Time); err != nil {
		return Details{}, errors.ProtocolFailure("judge time: %v", err)
	}
	if d.MemoryKB, err = ParseNumber(raw.Memory); err != nil {
		return Details{}, errors.ProtocolFailure("judge memory: %v", err)
	}
	return d, nil
}

// ExecutionTimeMs converts the reported seconds to milliseconds.
func (d Details) ExecutionTimeMs() *float64 {
	if d.TimeSeconds == nil {
		return nil
	}
	ms := *d.TimeSeconds * 1000
	return &ms
}

// ErrorOutput prefers stderr and falls back to compiler output.
func (d Details) ErrorOutput() *string {
	if d.Stderr != nil && *d.Stderr != "" {
		return d.Stderr
	}
	if d.CompileOutput != nil && *d.CompileOutput != "" {
		return d.CompileOutput
	}
	return d.Stderr
}

// ParseNumber accepts null, a JSON number or a string holding one. Only
// finite decimal literals are numbers: "NaN", "Inf" and hex floats are not.
func ParseNumber(raw json.RawMessage) (*float64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return nil, nil
		}
	}
	if !isNumberLiteral(text) {
		return nil, fmt.Errorf("%q is not a number", text)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%q is not finite", text)
	}
	return &v, nil
}

func isNumberLiteral(text string) bool {
	c := text[0]
	if c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(text))
}
