package submission

import (
	"encoding/json"
	"strings"

	"ojclient/internal/judge"
	"ojclient/pkg/errors"
)

// Normalized is a decoded reply of POST /submissions.
type Normalized struct {
	Shape  Shape
	Output Output
	// SubmissionID is the server id of a judged submission, when reported.
	SubmissionID *int64
	// Token is set for the ticket shape; Output is then not yet known.
	Token string
}

// Normalize classifies body and maps it onto Output.
//
// Judged: status is in the judged vocabulary and execution_time or output is
// present. Immediate: stdout is present. A reply matching both is rejected.
// A reply with only a token is a judge ticket. Anything else is a
// ProtocolError.
func Normalize(body []byte) (Normalized, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Normalized{}, errors.Wrapf(err, errors.ProtocolError, "submission reply is not a JSON object: %v", err)
	}
	if fields == nil {
		return Normalized{}, errors.ProtocolFailure("submission reply is null")
	}

	status, hasStatus, err := stringField(fields, "status")
	if err != nil {
		return Normalized{}, err
	}
	_, hasExecTime := fields["execution_time"]
	_, hasOutput := fields["output"]
	_, hasStdout := fields["stdout"]

	judged := hasStatus && IsJudgedStatus(status) && (hasExecTime || hasOutput)
	immediate := hasStdout

	switch {
	case judged && immediate:
		return Normalized{}, errors.ProtocolFailure("submission reply matches both immediate and judged shapes")
	case judged:
		return normalizeJudged(fields, status)
	case immediate:
		return normalizeImmediate(fields, status)
	}

	token, _, err := stringField(fields, "token")
	if err != nil {
		return Normalized{}, err
	}
	if token != "" {
		return Normalized{Shape: ShapeTicket, Token: token}, nil
	}
	return Normalized{}, errors.ProtocolFailure("submission reply has an unknown shape")
}

func normalizeJudged(fields map[string]json.RawMessage, status string) (Normalized, error) {
	out := Output{Status: status}
	var err error
	if out.ExecutionTime, err = numberField(fields, "execution_time"); err != nil {
		return Normalized{}, err
	}
	if out.MemoryUsed, err = numberField(fields, "memory_used"); err != nil {
		return Normalized{}, err
	}
	if out.Stdout, err = nullableString(fields, "output"); err != nil {
		return Normalized{}, err
	}
	if out.Stderr, err = nullableString(fields, "error"); err != nil {
		return Normalized{}, err
	}

	n := Normalized{Shape: ShapeJudged, Output: out}
	if id, err := numberField(fields, "id"); err == nil && id != nil {
		v := int64(*id)
		n.SubmissionID = &v
	}
	return n, nil
}

func normalizeImmediate(fields map[string]json.RawMessage, status string) (Normalized, error) {
	if status == "" {
		status = StatusCompleted
	}
	out := Output{Status: status}
	var err error
	if out.ExecutionTime, err = numberField(fields, "execution_time_ms"); err != nil {
		return Normalized{}, err
	}
	if out.MemoryUsed, err = numberField(fields, "memory_used_kb"); err != nil {
		return Normalized{}, err
	}
	if out.Stdout, err = nullableString(fields, "stdout"); err != nil {
		return Normalized{}, err
	}
	if out.Stderr, err = nullableString(fields, "stderr"); err != nil {
		return Normalized{}, err
	}
	return Normalized{Shape: ShapeImmediate, Output: out}, nil
}

// FromDetails maps a settled judge ticket onto Output.
func FromDetails(d judge.Details) Output {
	return Output{
		Status:        d.StatusID.Verdict(),
		ExecutionTime: d.ExecutionTimeMs(),
		MemoryUsed:    d.MemoryKB,
		Stdout:        d.Stdout,
		Stderr:        d.ErrorOutput(),
	}
}

// stringField reads an optional string. A null value counts as absent.
func stringField(fields map[string]json.RawMessage, key string) (string, bool, error) {
	s, err := nullableString(fields, key)
	if err != nil || s == nil {
		return "", false, err
	}
	return *s, true, nil
}

func nullableString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.ProtocolFailure("field %q must be a string", key)
	}
	return &s, nil
}

// numberField reads an optional finite number given either as a JSON number
// or a numeric string.
func numberField(fields map[string]json.RawMessage, key string) (*float64, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	v, err := judge.ParseNumber(raw)
	if err != nil {
		return nil, errors.ProtocolFailure("field %q must be a number", key)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
