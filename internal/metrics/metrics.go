// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instruments for the workflow engine and
// supervisor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "article_engine"

// Metrics groups the pipeline instruments.
type Metrics struct {
	RunsStarted      prometheus.Counter
	RunsFinished     *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageRetries     *prometheus.CounterVec
	DegradedChapters prometheus.Counter
	SearchRounds     prometheus.Counter
	DroppedEvents    prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Workflow runs submitted.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Workflow runs that reached a terminal status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage invocations, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		StageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Retries after transient capability failures.",
		}, []string{"stage"}),
		DegradedChapters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_chapters_total",
			Help:      "Chapters forced after a stage failure.",
		}),
		SearchRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_rounds_total",
			Help:      "Search rounds consumed across runs.",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_dropped_total",
			Help:      "Progress events skipped by lagging subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RunsStarted, m.RunsFinished, m.StageDuration, m.StageRetries,
			m.DegradedChapters, m.SearchRounds, m.DroppedEvents)
	}
	return m
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) StageRetried(stage string) {
	if m == nil {
		return
	}
	m.StageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) ChapterDegraded() {
	if m == nil {
		return
	}
	m.DegradedChapters.Inc()
}

func (m *Metrics) SearchRound() {
	if m == nil {
		return
	}
	m.SearchRounds.Inc()
}

func (m *Metrics) EventsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedEvents.Add(float64(n))
}

// Handler serves the metrics registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
