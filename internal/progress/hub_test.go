// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/pkg/types"
)

func event(kind types.EventKind, msg string) types.ProgressEvent {
	return types.ProgressEvent{RunID: "run-1", Kind: kind, Message: msg}
}

func drain(t *testing.T, sub *Subscription) []types.ProgressEvent {
	t.Helper()
	var out []types.ProgressEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-timeout:
			t.Fatal("subscription did not close")
			return out
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (r *recordingSink) Append(evt types.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func TestHub_OrderedDelivery(t *testing.T) {
	h := NewHub(64)
	sub := h.Subscribe(context.Background())

	for i := 0; i < 10; i++ {
		require.True(t, h.Publish(event(types.EventStageStarted, fmt.Sprint(i))))
	}
	h.Publish(event(types.EventRunCompleted, "done"))
	h.Close()

	got := drain(t, sub)
	require.Len(t, got, 11)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq)
	}
	assert.Equal(t, types.EventRunCompleted, got[len(got)-1].Kind)
	assert.Zero(t, sub.Dropped())
}

func TestHub_MultipleSubscribersSeeSameOrder(t *testing.T) {
	h := NewHub(64)
	a := h.Subscribe(context.Background())
	b := h.Subscribe(context.Background())

	for i := 0; i < 5; i++ {
		h.Publish(event(types.EventStageCompleted, fmt.Sprint(i)))
	}
	h.Close()

	assert.Equal(t, drain(t, a), drain(t, b))
}

func TestHub_NoReplayForLateSubscriber(t *testing.T) {
	h := NewHub(64)
	early := h.Subscribe(context.Background())
	h.Publish(event(types.EventRunStarted, "first"))

	late := h.Subscribe(context.Background())
	h.Publish(event(types.EventStageStarted, "second"))
	h.Close()

	assert.Len(t, drain(t, early), 2)
	got := drain(t, late)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)
}

func TestHub_DropsWithoutSubscribers(t *testing.T) {
	h := NewHub(64)
	sink := &recordingSink{}
	h.AddSink(sink)

	h.Publish(event(types.EventRunStarted, "unseen"))
	sub := h.Subscribe(context.Background())
	h.Publish(event(types.EventStageStarted, "seen"))
	h.Close()

	got := drain(t, sub)
	require.Len(t, got, 1)
	assert.Equal(t, "seen", got[0].Message)
	assert.Len(t, sink.events, 2, "sinks see every event")
}

func TestHub_SubscribeAfterCloseGetsTerminalOnly(t *testing.T) {
	h := NewHub(8)
	h.Publish(event(types.EventRunStarted, ""))
	h.Publish(event(types.EventRunCancelled, "cancelled"))
	h.Close()

	assert.False(t, h.Publish(event(types.EventStageStarted, "late")))

	got := drain(t, h.Subscribe(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, types.EventRunCancelled, got[0].Kind)
}

func TestHub_LaggingSubscriberSkipsAhead(t *testing.T) {
	h := NewHub(4)
	var mu sync.Mutex
	dropped := 0
	h.OnDrop(func(n int) {
		mu.Lock()
		dropped += n
		mu.Unlock()
	})
	sub := h.Subscribe(context.Background())

	const total = 60
	for i := 0; i < total; i++ {
		h.Publish(event(types.EventStageStarted, fmt.Sprint(i)))
	}
	h.Close()

	got := drain(t, sub)
	assert.Equal(t, total, len(got)+sub.Dropped())
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq)
	}
	assert.Equal(t, uint64(total), got[len(got)-1].Seq, "newest event is never evicted")
	mu.Lock()
	assert.Equal(t, sub.Dropped(), dropped)
	mu.Unlock()
}

func TestHub_SubscriberContextCancel(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	sub := h.Subscribe(ctx)
	cancel()
	drain(t, sub)

	assert.True(t, h.Publish(event(types.EventStageStarted, "after")))
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NATSSink{Conn: pub, Prefix: "articles."}

	evt := event(types.EventRunCompleted, "done")
	evt.Document = &types.FinalDocument{Title: "big"}
	sink.Append(evt)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "articles.run-1.progress", pub.subjects[0])

	var decoded types.ProgressEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, types.EventRunCompleted, decoded.Kind)
	assert.Nil(t, decoded.Document)
	assert.Equal(t, "article.runs.x.progress", NATSSink{}.Subject("x"))
}

func TestNATSSink_PublishErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	sink := NATSSink{Conn: &fakePublisher{err: errors.New("no responders")}, Logger: logger}
	sink.Append(event(types.EventRunStarted, ""))
	assert.Contains(t, buf.String(), "progress publish failed")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	evt := event(types.EventChapterDegraded, "chapter forced")
	evt.ChapterID = "ch-02"
	evt.Error = "timeout"
	LogSink{Logger: logger}.Append(evt)

	out := buf.String()
	assert.Contains(t, out, `"chapter_id":"ch-02"`)
	assert.Contains(t, out, `"level":"warn"`)
}
