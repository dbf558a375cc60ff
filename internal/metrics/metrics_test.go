// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RunStarted()
	m.RunFinished("succeeded")
	m.RunFinished("succeeded")
	m.StageRetried("draft")
	m.ChapterDegraded()
	m.SearchRound()
	m.EventsDropped(3)
	m.EventsDropped(0)
	m.ObserveStage("draft", 120*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageRetries.WithLabelValues("draft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedChapters))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DroppedEvents))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()
		m.RunFinished("failed")
		m.ObserveStage("x", time.Second)
		m.StageRetried("x")
		m.ChapterDegraded()
		m.SearchRound()
		m.EventsDropped(1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).RunStarted()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "article_engine_runs_started_total 1")
}
