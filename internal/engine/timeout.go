// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/worker"
	"github.com/pdiddy/article-engine/pkg/types"
)

// withCallTimeout wraps every capability port of deps so a single call
// cannot outlive d. A call that hits the deadline while the run is still
// live fails with the port's retryable error.
func withCallTimeout(deps worker.Deps, d time.Duration) worker.Deps {
	if d <= 0 {
		return deps
	}
	if deps.Text != nil {
		deps.Text = timedText{next: deps.Text, d: d}
	}
	if deps.Search != nil {
		deps.Search = timedSearch{next: deps.Search, d: d}
	}
	if deps.Images != nil {
		deps.Images = timedImages{next: deps.Images, d: d}
	}
	return deps
}

// timedOut reports whether the call context hit its own deadline while the
// parent is still live.
func timedOut(parent, call context.Context) bool {
	return parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded)
}

type timedText struct {
	next ports.TextGenerator
	d    time.Duration
}

func (t timedText) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	out, err := t.next.Generate(callCtx, p)
	if err != nil && timedOut(ctx, callCtx) {
		return "", ports.NewProviderError(ports.ProviderTimeout, err)
	}
	return out, err
}

type timedSearch struct {
	next ports.WebSearcher
	d    time.Duration
}

func (t timedSearch) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	hits, err := t.next.Search(callCtx, query, max)
	if err != nil && timedOut(ctx, callCtx) {
		return nil, &ports.SearchUnavailableError{Query: query, Err: err}
	}
	return hits, err
}

type timedImages struct {
	next ports.ImageGenerator
	d    time.Duration
}

func (t timedImages) Generate(ctx context.Context, description, style string) (ports.Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	img, err := t.next.Generate(callCtx, description, style)
	if err != nil && timedOut(ctx, callCtx) {
		return ports.Image{}, &ports.ImageUnavailableError{Err: err}
	}
	return img, err
}
