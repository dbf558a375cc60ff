// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// WorkflowRun describes one execution of the pipeline.
type WorkflowRun struct {
	ID        string          `json:"id" yaml:"id"`
	Request   DocumentRequest `json:"request" yaml:"request"`
	Stage     string          `json:"stage" yaml:"stage"`
	Status    RunStatus       `json:"status" yaml:"status"`
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Degraded  []string        `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Error     string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns the elapsed run time, measured to now while running.
func (r WorkflowRun) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// EventKind names a progress event.
type EventKind string

const (
	EventRunStarted      EventKind = "run.started"
	EventStageStarted    EventKind = "stage.started"
	EventStageCompleted  EventKind = "stage.completed"
	EventStageRetrying   EventKind = "stage.retrying"
	EventSearchRound     EventKind = "search.round"
	EventGapsDropped     EventKind = "gaps.dropped"
	EventChapterAccepted EventKind = "chapter.accepted"
	EventChapterDegraded EventKind = "chapter.degraded"
	EventChapterInserted EventKind = "chapter.inserted"
	EventCoverSkipped    EventKind = "cover.skipped"
	EventRunCompleted    EventKind = "run.completed"
	EventRunFailed       EventKind = "run.failed"
	EventRunCancelled    EventKind = "run.cancelled"
)

// Terminal reports whether the kind ends a run's event stream.
func (k EventKind) Terminal() bool {
	return k == EventRunCompleted || k == EventRunFailed || k == EventRunCancelled
}

// ProgressEvent is one entry of a run's progress stream.
type ProgressEvent struct {
	Seq       uint64    `json:"seq"`
	RunID     string    `json:"run_id"`
	Kind      EventKind `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	ChapterID string    `json:"chapter_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Timestamp time.Time `json:"ts"`

	// Percent is a coarse completion estimate. It never decreases within a
	// run and reaches 100 on run.completed.
	Percent int `json:"percent,omitempty"`

	// Document is set on run.completed.
	Document *FinalDocument `json:"document,omitempty"`

	// Error is set on run.failed and chapter.degraded.
	Error string `json:"error,omitempty"`
}
