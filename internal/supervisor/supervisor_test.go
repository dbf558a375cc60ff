// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/internal/engine"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/testsupport"
	"github.com/pdiddy/article-engine/internal/worker"
	"github.com/pdiddy/article-engine/pkg/types"
)

const waitTimeout = 10 * time.Second

// scriptedExecutor emits a fixed event list once start is closed. With
// block set it then waits for cancellation and reports it.
type scriptedExecutor struct {
	events []types.ProgressEvent
	start  chan struct{}
	block  bool
}

func (x *scriptedExecutor) Execute(ctx context.Context, runID string, _ types.DocumentRequest) <-chan types.ProgressEvent {
	out := make(chan types.ProgressEvent)
	go func() {
		defer close(out)
		if x.start != nil {
			<-x.start
		}
		for i, evt := range x.events {
			evt.RunID = runID
			evt.Seq = uint64(i + 1)
			out <- evt
		}
		if x.block {
			<-ctx.Done()
			out <- types.ProgressEvent{RunID: runID, Kind: types.EventRunCancelled, Error: ctx.Err().Error()}
		}
	}()
	return out
}

type recordingArchive struct {
	mu   sync.Mutex
	runs []types.WorkflowRun
	docs []*types.FinalDocument
}

func (a *recordingArchive) Save(_ context.Context, run types.WorkflowRun, doc *types.FinalDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, run)
	a.docs = append(a.docs, doc)
	return nil
}

func (a *recordingArchive) saved() []types.WorkflowRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.WorkflowRun(nil), a.runs...)
}

func newEngine(t *testing.T, text *testsupport.Text) *engine.Engine {
	t.Helper()
	e, err := engine.New(testsupport.NewPipelineConfig(), worker.Deps{Text: text, Search: &testsupport.Search{}})
	require.NoError(t, err)
	return e
}

func wait(t *testing.T, s *Supervisor, id string) types.WorkflowRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	run, err := s.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func collect(t *testing.T, c <-chan types.ProgressEvent) []types.ProgressEvent {
	t.Helper()
	var got []types.ProgressEvent
	timeout := time.After(waitTimeout)
	for {
		select {
		case evt, ok := <-c:
			if !ok {
				return got
			}
			got = append(got, evt)
		case <-timeout:
			t.Fatal("subscription did not close")
		}
	}
}

func TestSubmitRunCompletes(t *testing.T) {
	archive := &recordingArchive{}
	s := New(newEngine(t, testsupport.NewText()), WithArchive(archive))

	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run := wait(t, s, id)
	assert.Equal(t, types.RunSucceeded, run.Status)
	assert.Equal(t, id, run.ID)
	assert.Empty(t, run.Degraded)
	assert.False(t, run.EndedAt.IsZero())

	doc, err := s.GetResult(id)
	require.NoError(t, err)
	assert.Len(t, doc.Chapters, 3)
	assert.Equal(t, id, doc.RunID)

	saved := archive.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, types.RunSucceeded, saved[0].Status)
}

func TestSubmitRunRejectsInvalidRequest(t *testing.T) {
	s := New(&scriptedExecutor{})
	_, err := s.SubmitRun(context.Background(), types.DocumentRequest{Topic: "x", Length: "huge"})
	require.Error(t, err)
	assert.Empty(t, s.List())
}

func TestGetResultStates(t *testing.T) {
	exec := &scriptedExecutor{
		events: []types.ProgressEvent{{Kind: types.EventRunStarted}},
		block:  true,
	}
	s := New(exec)
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)

	_, err = s.GetResult(id)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, s.Release(id), ErrRunInProgress)

	require.NoError(t, s.Cancel(id))
	run := wait(t, s, id)
	assert.Equal(t, types.RunCancelled, run.Status)

	_, err = s.GetResult(id)
	assert.ErrorIs(t, err, ErrRunCancelled)
	assert.NoError(t, s.Cancel(id), "cancel is idempotent")
	assert.Equal(t, types.RunCancelled, wait(t, s, id).Status)

	require.NoError(t, s.Release(id))
	_, err = s.Status(id)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestUnknownRun(t *testing.T) {
	s := New(&scriptedExecutor{})
	_, err := s.GetResult("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.Subscribe(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.Cancel("nope"), ErrRunNotFound)
	_, err = s.Status("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTerminalOutcomeLatchesOnce(t *testing.T) {
	archive := &recordingArchive{}
	exec := &scriptedExecutor{
		start: make(chan struct{}),
		events: []types.ProgressEvent{
			{Kind: types.EventRunStarted},
			{Kind: types.EventStageStarted, Stage: "research"},
			{Kind: types.EventRunCompleted, Document: &types.FinalDocument{Title: "Go Channels"}},
			{Kind: types.EventRunFailed, Error: "late failure"},
			{Kind: types.EventStageStarted, Stage: "assemble"},
		},
	}
	s := New(exec, WithArchive(archive))
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)

	sub, err := s.Subscribe(context.Background(), id)
	require.NoError(t, err)
	close(exec.start)

	events := collect(t, sub.C)
	var terminals []types.EventKind
	for _, evt := range events {
		if evt.Kind.Terminal() {
			terminals = append(terminals, evt.Kind)
		}
	}
	assert.Equal(t, []types.EventKind{types.EventRunCompleted}, terminals)
	assert.Equal(t, types.EventRunCompleted, events[len(events)-1].Kind)

	run := wait(t, s, id)
	assert.Equal(t, types.RunSucceeded, run.Status)
	assert.Equal(t, "research", run.Stage)
	assert.Empty(t, run.Error)
	assert.Len(t, archive.saved(), 1)
}

func TestStreamWithoutOutcomeFails(t *testing.T) {
	exec := &scriptedExecutor{events: []types.ProgressEvent{{Kind: types.EventRunStarted}}}
	s := New(exec)
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)

	run := wait(t, s, id)
	assert.Equal(t, types.RunFailed, run.Status)
	_, err = s.GetResult(id)
	assert.ErrorIs(t, err, ErrRunFailed)
}

func TestSubscribeAfterFinishYieldsTerminalOnly(t *testing.T) {
	s := New(newEngine(t, testsupport.NewText()))
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)
	wait(t, s, id)

	sub, err := s.Subscribe(context.Background(), id)
	require.NoError(t, err)
	events := collect(t, sub.C)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventRunCompleted, events[0].Kind)
}

func TestCancelRealRun(t *testing.T) {
	text := testsupport.NewText().On(worker.StageDraft, testsupport.Block)
	s := New(newEngine(t, text))
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, err := s.Status(id)
		return err == nil && run.Stage == worker.StageDraft
	}, waitTimeout, 5*time.Millisecond)
	require.NoError(t, s.Cancel(id))

	run := wait(t, s, id)
	assert.Equal(t, types.RunCancelled, run.Status)
	_, err = s.GetResult(id)
	assert.ErrorIs(t, err, ErrRunCancelled)
}

func TestFailedRunRecordsDegradedAndError(t *testing.T) {
	exec := &scriptedExecutor{events: []types.ProgressEvent{
		{Kind: types.EventRunStarted},
		{Kind: types.EventChapterDegraded, ChapterID: "ch-02", Error: "review failed"},
		{Kind: types.EventChapterDegraded, ChapterID: "ch-02", Error: "review failed"},
		{Kind: types.EventRunFailed, Error: "assemble: fatal: disk full"},
	}}
	s := New(exec)
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)

	run := wait(t, s, id)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, []string{"ch-02"}, run.Degraded)
	assert.Equal(t, "assemble: fatal: disk full", run.Error)
	_, err = s.GetResult(id)
	assert.ErrorContains(t, err, "disk full")
}

func TestListAndShutdown(t *testing.T) {
	ids := []string{"run-a", "run-b"}
	var n int
	var mu sync.Mutex
	exec := &scriptedExecutor{block: true}
	s := New(exec, WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[n]
		n++
		return id
	}))

	for range ids {
		_, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
		require.NoError(t, err)
	}
	runs := s.List()
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, types.RunRunning, r.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	for _, r := range s.List() {
		assert.Equal(t, types.RunCancelled, r.Status)
	}
	_, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	assert.ErrorIs(t, err, ErrShutdown)
}

type memorySink struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (m *memorySink) Append(evt types.ProgressEvent) {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
}

func TestSinkSeesEveryEvent(t *testing.T) {
	sink := &memorySink{}
	text := testsupport.NewText().Queue(worker.StageOutline,
		testsupport.Reply{Err: ports.NewProviderError(ports.ProviderTimeout, context.DeadlineExceeded)})
	s := New(newEngine(t, text), WithSink(sink))
	id, err := s.SubmitRun(context.Background(), testsupport.Request("Go channels"))
	require.NoError(t, err)
	wait(t, s, id)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.events)
	assert.Equal(t, types.EventRunStarted, sink.events[0].Kind)
	assert.Equal(t, types.EventRunCompleted, sink.events[len(sink.events)-1].Kind)
	var retried bool
	for i, evt := range sink.events {
		assert.Equal(t, uint64(i+1), evt.Seq)
		retried = retried || evt.Kind == types.EventStageRetrying
	}
	assert.True(t, retried)
}
