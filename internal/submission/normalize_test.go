package submission_test

import (
	"encoding/json"
	"testing"

	"ojclient/internal/judge"
	"ojclient/internal/submission"
	"ojclient/pkg/errors"
)

func encode(t *testing.T, out submission.Output) string {
	t.Helper()
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestNormalizeImmediateRunWithoutStatus(t *testing.T) {
	n, err := submission.Normalize([]byte(`{"stdout":"hi\n","stderr":null}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Shape != submission.ShapeImmediate {
		t.Fatalf("expected immediate shape, got %s", n.Shape)
	}
	want := `{"status":"completed","executionTime":null,"memoryUsed":null,"stdout":"hi\n","stderr":null}`
	if got := encode(t, n.Output); got != want {
		t.Fatalf("unexpected output\n got: %s\nwant: %s", got, want)
	}
}

func TestNormalizeImmediateRunFieldNames(t *testing.T) {
	n, err := submission.Normalize([]byte(`{"status":"completed","stdout":"","stderr":"warn","execution_time_ms":15,"memory_used_kb":"1024"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	out := n.Output
	if out.ExecutionTime == nil || *out.ExecutionTime != 15 {
		t.Fatalf("expected execution time 15, got %v", out.ExecutionTime)
	}
	if out.MemoryUsed == nil || *out.MemoryUsed != 1024 {
		t.Fatalf("expected memory 1024, got %v", out.MemoryUsed)
	}
	if out.Stdout == nil || *out.Stdout != "" || out.Stderr == nil || *out.Stderr != "warn" {
		t.Fatalf("unexpected streams %v %v", out.Stdout, out.Stderr)
	}
}

func TestNormalizeJudgedAccepted(t *testing.T) {
	n, err := submission.Normalize([]byte(`{"id":41,"status":"accepted","execution_time":12,"memory_used":256,"output":"ok","error":null}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Shape != submission.ShapeJudged {
		t.Fatalf("expected judged shape, got %s", n.Shape)
	}
	want := `{"status":"accepted","executionTime":12,"memoryUsed":256,"stdout":"ok","stderr":null}`
	if got := encode(t, n.Output); got != want {
		t.Fatalf("unexpected output\n got: %s\nwant: %s", got, want)
	}
	if n.SubmissionID == nil || *n.SubmissionID != 41 {
		t.Fatalf("expected submission id 41, got %v", n.SubmissionID)
	}
	if !n.Output.Accepted() || n.Output.GradingFailure() {
		t.Fatalf("accepted output misclassified")
	}
}

func TestNormalizeJudgedGradingFailureIsNotAnError(t *testing.T) {
	n, err := submission.Normalize([]byte(`{"status":"wrong_answer","output":"3","error":null}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !n.Output.GradingFailure() || n.Output.ExecutionTime != nil {
		t.Fatalf("unexpected output %+v", n.Output)
	}
}

func TestNormalizeBothShapesIsProtocolError(t *testing.T) {
	_, err := submission.Normalize([]byte(`{"status":"accepted","execution_time":1,"output":"x","stdout":"x"}`))
	if !errors.Is(err, errors.ProtocolError) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestNormalizeTicket(t *testing.T) {
	n, err := submission.Normalize([]byte(`{"token":"abc-123"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Shape != submission.ShapeTicket || n.Token != "abc-123" {
		t.Fatalf("unexpected ticket %+v", n)
	}
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`null`,
		`[1,2]`,
		`{}`,
		`{"status":"accepted"}`,
		`{"status":"mystery","output":"x"}`,
		`{"stdout":42}`,
		`{"status":7,"stdout":"x"}`,
		`{"status":"accepted","execution_time":"fast","output":"x"}`,
		`{"token":5}`,
	}
	for _, body := range bodies {
		if _, err := submission.Normalize([]byte(body)); !errors.Is(err, errors.ProtocolError) {
			t.Fatalf("body %q: expected ProtocolError, got %v", body, err)
		}
	}
}

func TestNormalizeRejectsNonFiniteNumbers(t *testing.T) {
	bodies := []string{
		`{"stdout":"x","execution_time_ms":"NaN"}`,
		`{"stdout":"x","execution_time_ms":"Inf"}`,
		`{"stdout":"x","memory_used_kb":"-Infinity"}`,
		`{"stdout":"x","execution_time_ms":"0x1p-2"}`,
		`{"stdout":"x","execution_time_ms":1e400}`,
		`{"status":"accepted","output":"x","execution_time":"nan"}`,
	}
	for _, body := range bodies {
		if _, err := submission.Normalize([]byte(body)); !errors.Is(err, errors.ProtocolError) {
			t.Fatalf("body %q: expected ProtocolError, got %v", body, err)
		}
	}

	n, err := submission.Normalize([]byte(`{"stdout":"x","execution_time_ms":" 12.5 ","memory_used_kb":"-0"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Output.ExecutionTime == nil || *n.Output.ExecutionTime != 12.5 {
		t.Fatalf("unexpected execution time %v", n.Output.ExecutionTime)
	}
	if _, err := json.Marshal(n.Output); err != nil {
		t.Fatalf("normalized output must encode: %v", err)
	}
}

func TestNormalizeAlwaysYieldsStatusAndAllFields(t *testing.T) {
	bodies := []string{
		`{"stdout":null}`,
		`{"stdout":"a","status":""}`,
		`{"stdout":"a","status":null}`,
		`{"stdout":"a","status":"timeout"}`,
		`{"status":"pending","output":null}`,
		`{"status":"judging","execution_time":null}`,
		`{"status":"internal_error","output":"","error":"boom"}`,
	}
	for _, body := range bodies {
		n, err := submission.Normalize([]byte(body))
		if err != nil {
			t.Fatalf("body %s: %v", body, err)
		}
		if n.Output.Status == "" {
			t.Fatalf("body %s: empty status", body)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(encode(t, n.Output)), &fields); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, key := range []string{"status", "executionTime", "memoryUsed", "stdout", "stderr"} {
			if _, ok := fields[key]; !ok {
				t.Fatalf("body %s: field %s missing", body, key)
			}
		}

		again, _ := submission.Normalize([]byte(body))
		if encode(t, again.Output) != encode(t, n.Output) {
			t.Fatalf("body %s: normalization is not stable", body)
		}
	}
}

func TestFromDetails(t *testing.T) {
	d, err := judge.ParseDetails([]byte(`{"status_id":8,"stdout":null,"stderr":"","compile_output":null,"time":"2.5","memory":4096}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := submission.FromDetails(d)
	if out.Status != submission.StatusTimeLimitExceeded {
		t.Fatalf("unexpected status %q", out.Status)
	}
	if out.ExecutionTime == nil || *out.ExecutionTime != 2500 {
		t.Fatalf("expected 2500ms, got %v", out.ExecutionTime)
	}
	if out.MemoryUsed == nil || *out.MemoryUsed != 4096 {
		t.Fatalf("expected 4096KB, got %v", out.MemoryUsed)
	}
}
