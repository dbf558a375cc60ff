// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend queries the arXiv API.
type ArxivBackend struct {
	Client    *http.Client
	UserAgent string
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Search returns up to max papers matching query, scored by position.
func (b *ArxivBackend) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	q := buildArxivQuery(query)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}
	if max <= 0 {
		max = 10
	}

	endpoint := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, q, max)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus("arXiv API", resp); err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	total := len(feed.Entries)
	var hits []types.SearchHit
	for i, entry := range feed.Entries {
		id := extractArxivID(entry.ID)
		if id == "" {
			continue
		}
		h := types.SearchHit{
			Title:   collapseSpace(entry.Title),
			URL:     "https://arxiv.org/abs/" + id,
			Snippet: collapseSpace(entry.Summary),
			Source:  "arxiv",
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			h.Published = t
		}
		if total > 1 {
			h.Score = 1.0 - float64(i)/float64(total-1)*0.9
		} else {
			h.Score = 1.0
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// buildArxivQuery turns free text into an all-fields AND query. Site
// scoping used for web search is dropped.
func buildArxivQuery(query string) string {
	var terms []string
	for _, f := range strings.Fields(query) {
		if strings.HasPrefix(f, "site:") {
			continue
		}
		terms = append(terms, "all:"+url.QueryEscape(f))
	}
	return strings.Join(terms, "+AND+")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" is "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
