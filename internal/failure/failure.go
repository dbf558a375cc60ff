// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package failure classifies pipeline errors into the three kinds the
// workflow engine acts on:
//
//   - Transient: a capability hiccup; the stage is retried with backoff.
//   - Degraded: a chapter stage gave up; the chapter is forced and the run continues.
//   - Fatal: Research, Outline, or Assemble gave up; the run fails.
package failure

import (
	"errors"
	"fmt"

	"github.com/pdiddy/article-engine/internal/ports"
)

// Transient wraps a retryable capability failure.
type Transient struct {
	Stage string
	Err   error
}

func (e *Transient) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Stage, e.Err)
}

func (e *Transient) Unwrap() error { return e.Err }

// Degraded records a chapter that was forced after its stage failed.
type Degraded struct {
	Stage     string
	ChapterID string
	Err       error
}

func (e *Degraded) Error() string {
	return fmt.Sprintf("%s: chapter %s degraded: %v", e.Stage, e.ChapterID, e.Err)
}

func (e *Degraded) Unwrap() error { return e.Err }

// Fatal ends the run.
type Fatal struct {
	Stage string
	Err   error
}

func (e *Fatal) Error() string {
	return fmt.Sprintf("%s: fatal: %v", e.Stage, e.Err)
}

func (e *Fatal) Unwrap() error { return e.Err }

// Classify wraps err as Transient when it is retryable and leaves it
// unchanged otherwise. Errors already classified pass through.
func Classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsFatal(err) || IsDegraded(err) {
		return err
	}
	if ports.IsRetryable(err) {
		return &Transient{Stage: stage, Err: err}
	}
	return err
}

// Exhausted converts a stage error that survived all retries into its final
// kind: Degraded for chapter stages, Fatal otherwise.
func Exhausted(stage, chapterID string, err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	var t *Transient
	if errors.As(err, &t) {
		err = t.Err
	}
	if chapterID != "" {
		return &Degraded{Stage: stage, ChapterID: chapterID, Err: err}
	}
	return &Fatal{Stage: stage, Err: err}
}

// IsTransient reports whether err is, or wraps, a Transient error.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// IsDegraded reports whether err is, or wraps, a Degraded error.
func IsDegraded(err error) bool {
	var d *Degraded
	return errors.As(err, &d)
}

// IsFatal reports whether err is, or wraps, a Fatal error.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}
