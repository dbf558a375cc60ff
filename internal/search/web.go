// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// WebBackend queries a JSON web search API. The request body is
// {"query": ..., "max_results": n}; the response carries a "results" array
// of {title, url, content, score, published_date}.
type WebBackend struct {
	Client    *http.Client
	Endpoint  string
	APIKey    string
	UserAgent string
}

// NewWebBackend builds a backend from cfg. It returns nil when no endpoint
// is configured.
func NewWebBackend(cfg types.SearchConfig) *WebBackend {
	if cfg.Endpoint == "" {
		return nil
	}
	return &WebBackend{
		Client:    httputil.NewClient(cfg.HTTPConfig),
		Endpoint:  cfg.Endpoint,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
	}
}

// Name returns the backend identifier.
func (b *WebBackend) Name() string { return "web" }

type webRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Search posts query to the endpoint and returns up to max hits.
func (b *WebBackend) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	if max <= 0 {
		max = 5
	}
	body, err := json.Marshal(webRequest{Query: query, MaxResults: max})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus("web search", resp); err != nil {
		return nil, err
	}

	var wr webResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("parsing web search response: %w", err)
	}

	hits := make([]types.SearchHit, 0, len(wr.Results))
	for i, r := range wr.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		h := types.SearchHit{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  "web",
			Score:   r.Score,
		}
		if h.Score <= 0 || h.Score > 1 {
			h.Score = 1.0 - float64(i)/float64(len(wr.Results))*0.9
		}
		for _, layout := range []string{time.RFC3339, time.DateOnly} {
			if t, err := time.Parse(layout, r.PublishedDate); err == nil {
				h.Published = t
				break
			}
		}
		hits = append(hits, h)
		if len(hits) == max {
			break
		}
	}
	return hits, nil
}
