// Package metrics exposes pipeline counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts pipeline events.
type Metrics interface {
	IncRefresh(result string)
	IncSubmission(shape, status string)
	IncStaleDropped()
	IncMarkSolved(result string)
	IncDraftSave(saveType, result string)
	ObservePollAttempts(attempts int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncRefresh(string)            {}
func (Noop) IncSubmission(string, string) {}
func (Noop) IncStaleDropped()             {}
func (Noop) IncMarkSolved(string)         {}
func (Noop) IncDraftSave(string, string)  {}
func (Noop) ObservePollAttempts(int)      {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	refresh      *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	staleDropped prometheus.Counter
	markSolved   *prometheus.CounterVec
	draftSaves   *prometheus.CounterVec
	pollAttempts prometheus.Histogram
}

// NewProm registers the collectors on reg, or on the default registerer when
// reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refresh_total",
			Help:      "Refresh attempts by result",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Normalized submissions by response shape and status",
		}, []string{"shape", "status"}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_stale_dropped_total",
			Help:      "Results discarded because a newer dispatch superseded them",
		}),
		markSolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_solved_total",
			Help:      "Mark-solved calls by result",
		}, []string{"result"}),
		draftSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_saves_total",
			Help:      "Draft saves by save type and result",
		}, []string{"save_type", "result"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_poll_attempts",
			Help:      "Polls issued per judge ticket",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 60},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.refresh, p.submissions, p.staleDropped, p.markSolved, p.draftSaves, p.pollAttempts)
	return p
}

func (p *Prom) IncRefresh(result string) {
	p.refresh.WithLabelValues(result).Inc()
}

func (p *Prom) IncSubmission(shape, status string) {
	p.submissions.WithLabelValues(shape, status).Inc()
}

func (p *Prom) IncStaleDropped() {
	p.staleDropped.Inc()
}

func (p *Prom) IncMarkSolved(result string) {
	p.markSolved.WithLabelValues(result).Inc()
}

func (p *Prom) IncDraftSave(saveType, result string) {
	p.draftSaves.WithLabelValues(saveType, result).Inc()
}

func (p *Prom) ObservePollAttempts(attempts int) {
	p.pollAttempts.Observe(float64(attempts))
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop{}
	}
	return m
}
