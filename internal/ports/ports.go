// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ports declares the external capabilities the pipeline depends on:
// text generation, web search, and image generation. Workers only ever see
// these interfaces; concrete adapters live under internal/providers and
// internal/search.
package ports

import (
	"context"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Prompt is one text generation request.
type Prompt struct {
	// Stage names the calling stage ("outline", "review", ...). Adapters may
	// use it for logging; the offline generator uses it to pick a response shape.
	Stage string

	System string
	User   string

	// JSON asks the provider for a JSON object response when it supports that mode.
	JSON bool
}

// TextGenerator produces text for a prompt. Failures are *ProviderError.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// WebSearcher returns up to max hits for a query. Failures are *SearchUnavailableError.
type WebSearcher interface {
	Search(ctx context.Context, query string, max int) ([]types.SearchHit, error)
}

// Image is a generated image, by URL or inline bytes.
type Image struct {
	URL  string
	Data []byte
	MIME string
}

// ImageGenerator renders a description in a style. Failures are *ImageUnavailableError.
type ImageGenerator interface {
	Generate(ctx context.Context, description, style string) (Image, error)
}
