// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package supervisor is the entry point for callers. It assigns run ids,
// executes runs in the background, fans their progress out, and records
// each run's one terminal outcome.
package supervisor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/metrics"
	"github.com/pdiddy/article-engine/internal/progress"
	"github.com/pdiddy/article-engine/pkg/types"
)

var (
	// ErrRunNotFound is returned for unknown or released run ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunInProgress is returned by GetResult and Release while a run is running.
	ErrRunInProgress = errors.New("run in progress")

	// ErrRunCancelled is returned by GetResult for a cancelled run.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunFailed wraps the failure message of a failed run.
	ErrRunFailed = errors.New("run failed")

	// ErrShutdown is returned by SubmitRun after Shutdown.
	ErrShutdown = errors.New("supervisor shut down")
)

// Executor runs one request and streams its events. *engine.Engine
// implements it.
type Executor interface {
	Execute(ctx context.Context, runID string, req types.DocumentRequest) <-chan types.ProgressEvent
}

// Archive persists finished runs. doc is nil unless the run succeeded.
type Archive interface {
	Save(ctx context.Context, run types.WorkflowRun, doc *types.FinalDocument) error
}

// Supervisor owns the runs submitted to it. All methods are safe for
// concurrent use.
type Supervisor struct {
	exec    Executor
	logger  *slog.Logger
	metrics *metrics.Metrics
	archive Archive
	sinks   []progress.Sink
	buffer  int
	newID   func() string
	now     func() time.Time

	mu     sync.Mutex
	runs   map[string]*entry
	wg     sync.WaitGroup
	closed bool
}

// entry is the supervisor-side record of one run.
type entry struct {
	mu      sync.Mutex
	run     types.WorkflowRun
	doc     *types.FinalDocument
	latched bool

	hub    *progress.Hub
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts events dropped by lagging subscribers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithArchive persists every finished run.
func WithArchive(a Archive) Option {
	return func(s *Supervisor) { s.archive = a }
}

// WithSink attaches sink to every run's progress channel.
func WithSink(sink progress.Sink) Option {
	return func(s *Supervisor) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithEventBuffer sets how many undelivered events a run retains per
// lagging subscriber.
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a supervisor that executes runs with exec.
func New(exec Executor, opts ...Option) *Supervisor {
	s := &Supervisor{
		exec:   exec,
		logger: logging.NewNop(),
		buffer: 256,
		newID:  uuid.NewString,
		now:    time.Now,
		runs:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "supervisor")
	return s
}

// SubmitRun validates req and starts it in the background. The run is not
// bound to ctx; use Cancel to stop it.
func (s *Supervisor) SubmitRun(ctx context.Context, req types.DocumentRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}

	hub := progress.NewHub(s.buffer)
	for _, sink := range s.sinks {
		hub.AddSink(sink)
	}
	hub.OnDrop(s.metrics.EventsDropped)

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		run: types.WorkflowRun{
			Request:   req,
			Status:    types.RunRunning,
			StartedAt: s.now().UTC(),
		},
		hub:    hub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return "", ErrShutdown
	}
	id := s.newID()
	if _, dup := s.runs[id]; dup {
		s.mu.Unlock()
		cancel()
		return "", fmt.Errorf("duplicate run id %q", id)
	}
	e.run.ID = id
	s.runs[id] = e
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("run submitted",
		logging.String(logging.FieldRunID, id),
		logging.String("topic", req.Topic),
		logging.String("length", string(req.Length)))

	events := s.exec.Execute(runCtx, id, req)
	go s.drive(e, events)
	return id, nil
}

// drive forwards engine events to the run's hub and latches the terminal
// outcome.
func (s *Supervisor) drive(e *entry, events <-chan types.ProgressEvent) {
	defer s.wg.Done()
	defer e.cancel()

	for evt := range events {
		if evt.Kind.Terminal() {
			if s.latch(e, evt) {
				e.hub.Publish(evt)
			}
			continue
		}
		e.mu.Lock()
		latched := e.latched
		if !latched {
			e.observe(evt)
		}
		e.mu.Unlock()
		if !latched {
			e.hub.Publish(evt)
		}
	}
	// A stream that closes without a terminal event still ends the run.
	s.latch(e, types.ProgressEvent{
		RunID: e.run.ID,
		Kind:  types.EventRunFailed,
		Error: "event stream ended without an outcome",
	})
	e.hub.Close()
	close(e.done)
}

func (e *entry) observe(evt types.ProgressEvent) {
	switch evt.Kind {
	case types.EventStageStarted:
		e.run.Stage = evt.Stage
	case types.EventChapterDegraded:
		if !slices.Contains(e.run.Degraded, evt.ChapterID) {
			e.run.Degraded = append(e.run.Degraded, evt.ChapterID)
		}
	}
}

// latch records the first terminal outcome of a run and reports whether
// this call set it.
func (s *Supervisor) latch(e *entry, evt types.ProgressEvent) bool {
	e.mu.Lock()
	if e.latched {
		e.mu.Unlock()
		return false
	}
	e.latched = true
	e.run.EndedAt = s.now().UTC()
	switch evt.Kind {
	case types.EventRunCompleted:
		e.run.Status = types.RunSucceeded
		e.doc = evt.Document
		if e.doc != nil {
			e.run.Degraded = slices.Clone(e.doc.Degraded)
		}
	case types.EventRunCancelled:
		e.run.Status = types.RunCancelled
	default:
		e.run.Status = types.RunFailed
		e.run.Error = evt.Error
	}
	run, doc := e.run, e.doc
	e.mu.Unlock()

	attrs := []logging.Attr{
		logging.String(logging.FieldRunID, run.ID),
		logging.String("status", string(run.Status)),
		logging.Duration("run_duration", run.Duration()),
	}
	if run.Status == types.RunFailed {
		logging.WarnWithContext(s.logger, "run finished", "run_failure", append(attrs, logging.String("error", run.Error))...)
	} else {
		s.logger.Info("run finished", logging.Args(attrs...)...)
	}

	if s.archive != nil {
		if err := s.archive.Save(context.Background(), run, doc); err != nil {
			logging.WarnWithContext(s.logger, "archive save failed", "archive_save",
				logging.String(logging.FieldRunID, run.ID),
				logging.Error(err))
		}
	}
	return true
}

func (s *Supervisor) lookup(runID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return e, nil
}

// Subscribe attaches to the progress of a run. Only events published after
// the call are delivered; subscribing to a finished run yields its
// terminal event alone. The subscription ends when ctx does.
func (s *Supervisor) Subscribe(ctx context.Context, runID string) (*progress.Subscription, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	return e.hub.Subscribe(ctx), nil
}

// Cancel requests cancellation. Cancelling a finished run is a no-op.
func (s *Supervisor) Cancel(runID string) error {
	e, err := s.lookup(runID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	latched := e.latched
	e.mu.Unlock()
	if !latched {
		s.logger.Info("run cancel requested", logging.String(logging.FieldRunID, runID))
	}
	e.cancel()
	return nil
}

// GetResult returns the assembled document of a succeeded run.
func (s *Supervisor) GetResult(runID string) (*types.FinalDocument, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.latched {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	switch e.run.Status {
	case types.RunSucceeded:
		return e.doc, nil
	case types.RunCancelled:
		return nil, fmt.Errorf("%w: %s", ErrRunCancelled, runID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunFailed, e.run.Error)
	}
}

// Status returns a snapshot of a run.
func (s *Supervisor) Status(runID string) (types.WorkflowRun, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return types.WorkflowRun{}, err
	}
	return e.snapshot(), nil
}

func (e *entry) snapshot() types.WorkflowRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	run := e.run
	run.Degraded = slices.Clone(e.run.Degraded)
	return run
}

// List returns every known run, oldest first.
func (s *Supervisor) List() []types.WorkflowRun {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.runs))
	for _, e := range s.runs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]types.WorkflowRun, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	slices.SortFunc(out, func(a, b types.WorkflowRun) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Wait blocks until the run finishes or ctx ends.
func (s *Supervisor) Wait(ctx context.Context, runID string) (types.WorkflowRun, error) {
	e, err := s.lookup(runID)
	if err != nil {
		return types.WorkflowRun{}, err
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return e.snapshot(), ctx.Err()
	}
}

// Release forgets a finished run.
func (s *Supervisor) Release(runID string) error {
	e, err := s.lookup(runID)
	if err != nil {
		return err
	}
	select {
	case <-e.done:
	default:
		return fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

// Shutdown cancels every running run and waits for them to finish or for
// ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.runs {
		e.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
