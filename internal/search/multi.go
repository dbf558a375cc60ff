// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Multi routes each query to every backend in parallel and merges the
// results. It satisfies ports.WebSearcher.
type Multi struct {
	Backends []Backend
	// Enricher, when set, replaces snippets with fetched page text.
	Enricher *PageEnricher
	Logger   *slog.Logger
}

var _ ports.WebSearcher = (*Multi)(nil)

// Search returns merged hits for query. A backend failure is logged and
// skipped; the call fails only when every backend fails.
func (m *Multi) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if len(m.Backends) == 0 {
		return nil, &ports.SearchUnavailableError{Query: query, Err: fmt.Errorf("no search backends configured")}
	}

	type backendResult struct {
		name string
		hits []types.SearchHit
		err  error
	}
	results := make([]backendResult, len(m.Backends))
	var wg sync.WaitGroup
	for i, b := range m.Backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			hits, err := b.Search(ctx, query, max)
			results[i] = backendResult{name: b.Name(), hits: hits, err: err}
		}(i, b)
	}
	wg.Wait()

	var all []types.SearchHit
	var errs []string
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.name, r.err))
			if m.Logger != nil {
				m.Logger.Warn("search backend failed",
					logging.String("backend", r.name),
					logging.String("query", query),
					logging.Error(r.err))
			}
			continue
		}
		for _, h := range r.hits {
			if h.Source == "" {
				h.Source = r.name
			}
			h.Query = query
			all = append(all, h)
		}
	}
	if len(errs) == len(m.Backends) {
		return nil, &ports.SearchUnavailableError{Query: query, Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}

	hits, _ := deduplicate(all)
	rank(hits)
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	if m.Enricher != nil {
		m.Enricher.Enrich(ctx, hits)
	}
	return hits, nil
}

// sourceRule scopes a query to a site when the topic mentions one of its
// keywords.
type sourceRule struct {
	site     string
	keywords []string
}

var professionalSources = []sourceRule{
	{site: "blog.langchain.dev", keywords: []string{"langchain", "langgraph", "lcel", "langsmith"}},
	{site: "anthropic.com", keywords: []string{"claude", "anthropic", "constitutional ai", "rlhf"}},
	{site: "openai.com", keywords: []string{"gpt", "chatgpt", "openai", "dall-e", "whisper"}},
	{site: "go.dev", keywords: []string{"golang", "goroutine", "go modules"}},
}

// SiteQueries returns site-scoped variants of query for each professional
// source whose keywords appear in topic.
func SiteQueries(topic, query string) []string {
	lower := strings.ToLower(topic)
	var out []string
	for _, rule := range professionalSources {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, fmt.Sprintf("site:%s %s", rule.site, query))
				break
			}
		}
	}
	return out
}
