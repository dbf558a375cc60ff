// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package testsupport provides scripted capability fakes and configuration
// helpers shared by package tests.
package testsupport

import (
	"context"
	"sync"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/providers/offline"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Text is a scripted TextGenerator. Queued replies are consumed per prompt
// stage; a hook, when set, answers every call of its stage; anything else
// falls through to the offline generator.
type Text struct {
	mu       sync.Mutex
	fallback ports.TextGenerator
	queues   map[string][]Reply
	hooks    map[string]func(context.Context, ports.Prompt) (string, error)
	calls    map[string]int
	prompts  map[string][]ports.Prompt
}

var _ ports.TextGenerator = (*Text)(nil)

// NewText returns a fake backed by the offline generator.
func NewText() *Text {
	return &Text{
		fallback: &offline.Text{},
		queues:   make(map[string][]Reply),
		hooks:    make(map[string]func(context.Context, ports.Prompt) (string, error)),
		calls:    make(map[string]int),
		prompts:  make(map[string][]ports.Prompt),
	}
}

// Queue appends replies for stage.
func (t *Text) Queue(stage string, replies ...Reply) *Text {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[stage] = append(t.queues[stage], replies...)
	return t
}

// On installs a hook that answers every call of stage once the queue is empty.
func (t *Text) On(stage string, fn func(context.Context, ports.Prompt) (string, error)) *Text {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks[stage] = fn
	return t
}

// Calls returns the number of calls made for stage.
func (t *Text) Calls(stage string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[stage]
}

// Prompts returns the prompts received for stage.
func (t *Text) Prompts(stage string) []ports.Prompt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.Prompt(nil), t.prompts[stage]...)
}

func (t *Text) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	t.mu.Lock()
	t.calls[p.Stage]++
	t.prompts[p.Stage] = append(t.prompts[p.Stage], p)
	var reply *Reply
	if q := t.queues[p.Stage]; len(q) > 0 {
		reply = &q[0]
		t.queues[p.Stage] = q[1:]
	}
	hook := t.hooks[p.Stage]
	t.mu.Unlock()

	if reply != nil {
		if reply.Err != nil {
			return "", reply.Err
		}
		return reply.Text, nil
	}
	if hook != nil {
		return hook(ctx, p)
	}
	return t.fallback.Generate(ctx, p)
}

// Block returns a hook that waits for ctx to end.
func Block(ctx context.Context, _ ports.Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// Search is a WebSearcher fake. Fail, when set, decides per query whether
// the call fails; otherwise the offline searcher answers.
type Search struct {
	mu    sync.Mutex
	Fail  func(query string) bool
	Empty func(query string) bool
	calls []string
}

var _ ports.WebSearcher = (*Search)(nil)

func (s *Search) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	fail, empty := s.Fail, s.Empty
	s.mu.Unlock()
	if fail != nil && fail(query) {
		return nil, &ports.SearchUnavailableError{Query: query, Err: errUnavailable}
	}
	if empty != nil && empty(query) {
		return nil, nil
	}
	return offline.Search{}.Search(ctx, query, max)
}

// Queries returns the queries searched so far.
func (s *Search) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Images is an ImageGenerator fake returning a fixed PNG header, or Err.
type Images struct {
	mu    sync.Mutex
	Err   error
	calls int
}

var _ ports.ImageGenerator = (*Images)(nil)

func (g *Images) Generate(_ context.Context, description, _ string) (ports.Image, error) {
	g.mu.Lock()
	g.calls++
	err := g.Err
	g.mu.Unlock()
	if err != nil {
		return ports.Image{}, &ports.ImageUnavailableError{Err: err}
	}
	return ports.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIME: "image/png"}, nil
}

// Calls returns the number of Generate calls.
func (g *Images) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
