package metrics_test

import (
	"testing"

	"ojclient/internal/common/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopMetrics(t *testing.T) {
	var m metrics.Noop
	m.IncRefresh("ok")
	m.IncSubmission("judged", "accepted")
	m.IncStaleDropped()
	m.IncMarkSolved("ok")
	m.IncDraftSave("auto_save", "ok")
	m.ObservePollAttempts(3)
}

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewProm("ojclient", reg)
	m.IncRefresh("ok")
	m.IncRefresh("ok")
	m.IncSubmission("judged", "accepted")
	m.IncStaleDropped()
	m.IncMarkSolved("failed")
	m.IncDraftSave("submission", "ok")
	m.ObservePollAttempts(3)

	if got, err := testutil.GatherAndCount(reg, "ojclient_auth_refresh_total"); err != nil || got != 1 {
		t.Fatalf("expected one refresh series, got %d err=%v", got, err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"ojclient_submissions_total",
		"ojclient_submissions_stale_dropped_total",
		"ojclient_mark_solved_total",
		"ojclient_draft_saves_total",
		"ojclient_judge_poll_attempts",
	} {
		if !found[name] {
			t.Fatalf("expected metric family %s", name)
		}
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := metrics.OrNoop(nil).(metrics.Noop); !ok {
		t.Fatalf("expected Noop for nil metrics")
	}
}
