// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SearchHit is a single result returned by a web or paper search backend.
type SearchHit struct {
	// Title is the page or paper title.
	Title string `json:"title" yaml:"title"`

	// URL is the canonical link used for deduplication and citation.
	URL string `json:"url" yaml:"url"`

	// Snippet is the summary text, or page content when enrichment ran.
	Snippet string `json:"snippet" yaml:"snippet"`

	// Source names the backend(s) that returned the hit (e.g. "web", "arxiv").
	Source string `json:"source" yaml:"source"`

	// Score is a normalized relevance score (0.0-1.0).
	Score float64 `json:"score" yaml:"score"`

	// Query is the search query that produced the hit.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// Published is the publication date when the backend reports one.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`
}
