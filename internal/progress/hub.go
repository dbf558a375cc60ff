// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress fans the events of one run out to any number of
// subscribers and sinks.
//
// Publish never blocks. Events are buffered only while at least one
// subscriber is attached; a subscriber sees events published after it
// attached, in publication order. A subscriber that falls more than the
// buffer capacity behind skips ahead and its Dropped count grows.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Sink receives every published event, subscribers or not.
type Sink interface {
	Append(types.ProgressEvent)
}

// Hub is the progress channel of one run.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []types.ProgressEvent
	nextSeq  uint64
	subs     int
	closed   bool
	terminal *types.ProgressEvent
	sinks    []Sink
	onDrop   func(int)
}

// NewHub constructs a hub that retains at most capacity undelivered events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires an additional sink that receives every published event.
func (h *Hub) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// OnDrop registers a callback for events skipped by lagging subscribers.
func (h *Hub) OnDrop(fn func(n int)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Publish assigns the next sequence number and delivers evt. It returns
// false once the hub is closed.
func (h *Hub) Publish(evt types.ProgressEvent) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.nextSeq++
	evt.Seq = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Kind.Terminal() {
		t := evt
		h.terminal = &t
	}
	if h.subs > 0 {
		if len(h.buffer) == h.capacity {
			copy(h.buffer, h.buffer[1:])
			h.buffer = h.buffer[:h.capacity-1]
		}
		h.buffer = append(h.buffer, evt)
		h.cond.Broadcast()
	}
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
	return true
}

// Close ends the stream. Subscribers receive what is buffered, then their
// channels close.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Subscription is one attached observer.
type Subscription struct {
	C <-chan types.ProgressEvent

	mu      sync.Mutex
	dropped int
}

// Dropped returns the number of events this subscriber skipped.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) addDropped(n int) {
	s.mu.Lock()
	s.dropped += n
	s.mu.Unlock()
}

// Subscribe attaches an observer. Nothing published earlier is replayed;
// on a closed hub the subscriber receives only the terminal event, if any.
// The channel closes after the hub closes or ctx ends.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	out := make(chan types.ProgressEvent, 16)
	sub := &Subscription{C: out}

	h.mu.Lock()
	if h.closed {
		terminal := h.terminal
		h.mu.Unlock()
		if terminal != nil {
			out <- *terminal
		}
		close(out)
		return sub
	}
	h.subs++
	cursor := h.nextSeq
	h.mu.Unlock()

	go h.pump(ctx, sub, out, cursor)
	return sub
}

func (h *Hub) pump(ctx context.Context, sub *Subscription, out chan<- types.ProgressEvent, cursor uint64) {
	defer close(out)
	defer h.detach()

	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stop()

	for {
		h.mu.Lock()
		for !h.closed && ctx.Err() == nil && !h.hasAfterLocked(cursor) {
			h.cond.Wait()
		}
		if ctx.Err() != nil {
			h.mu.Unlock()
			return
		}
		batch, skipped := h.afterLocked(cursor)
		closed := h.closed
		onDrop := h.onDrop
		h.mu.Unlock()

		if skipped > 0 {
			sub.addDropped(skipped)
			if onDrop != nil {
				onDrop(skipped)
			}
		}
		for _, evt := range batch {
			select {
			case out <- evt:
				cursor = evt.Seq
			case <-ctx.Done():
				return
			}
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

func (h *Hub) detach() {
	h.mu.Lock()
	h.subs--
	if h.subs == 0 {
		h.buffer = nil
	}
	h.mu.Unlock()
}

func (h *Hub) hasAfterLocked(cursor uint64) bool {
	n := len(h.buffer)
	return n > 0 && h.buffer[n-1].Seq > cursor
}

// afterLocked returns buffered events newer than cursor and how many
// events between cursor and the oldest buffered one were evicted.
func (h *Hub) afterLocked(cursor uint64) ([]types.ProgressEvent, int) {
	start := len(h.buffer)
	for i, evt := range h.buffer {
		if evt.Seq > cursor {
			start = i
			break
		}
	}
	if start == len(h.buffer) {
		return nil, 0
	}
	skipped := int(h.buffer[start].Seq - cursor - 1)
	out := make([]types.ProgressEvent, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, skipped
}
