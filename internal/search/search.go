// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search fans queries out to web and paper backends and returns
// unified, deduplicated hits.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Backend is one search source. Multi routes a query to several.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, max int) ([]types.SearchHit, error)
}

// Output holds gathered hits and dedup statistics.
type Output struct {
	Hits        []types.SearchHit
	DupsRemoved int
	// Errors holds one message per failed query or backend.
	Errors []string
}

// Gather runs every query through searcher concurrently, merges duplicate
// hits, and ranks them by score. It fails with *ports.SearchUnavailableError
// only when every query fails; partial failures are reported in Errors.
func Gather(ctx context.Context, searcher ports.WebSearcher, queries []string, perQuery int) (Output, error) {
	queries = uniqueQueries(queries)
	if len(queries) == 0 {
		return Output{}, fmt.Errorf("no search queries")
	}

	type queryResult struct {
		query string
		hits  []types.SearchHit
		err   error
	}

	ch := make(chan queryResult, len(queries))
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			hits, err := searcher.Search(ctx, q, perQuery)
			ch <- queryResult{query: q, hits: hits, err: err}
		}(q)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	var all []types.SearchHit
	var out Output
	var lastErr error
	succeeded := 0
	for qr := range ch {
		if qr.err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", qr.query, qr.err))
			lastErr = qr.err
			continue
		}
		succeeded++
		for _, h := range qr.hits {
			if h.Query == "" {
				h.Query = qr.query
			}
			all = append(all, h)
		}
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if succeeded == 0 {
		var unavailable *ports.SearchUnavailableError
		if errors.As(lastErr, &unavailable) {
			return out, unavailable
		}
		return out, &ports.SearchUnavailableError{Query: strings.Join(queries, "; "), Err: lastErr}
	}

	out.Hits, out.DupsRemoved = deduplicate(all)
	rank(out.Hits)
	sort.Strings(out.Errors)
	return out, nil
}

func uniqueQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func rank(hits []types.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

// deduplicate merges hits that share a normalized URL or title.
func deduplicate(hits []types.SearchHit) ([]types.SearchHit, int) {
	seen := make(map[string]int)
	var deduped []types.SearchHit
	removed := 0

	for _, h := range hits {
		urlKey := "url:" + NormalizeURL(h.URL)
		titleKey := "title:" + normalizeTitle(h.Title)

		if idx, ok := seen[urlKey]; ok && urlKey != "url:" {
			mergeInto(&deduped[idx], h)
			removed++
			continue
		}
		if idx, ok := seen[titleKey]; ok && titleKey != "title:" {
			mergeInto(&deduped[idx], h)
			removed++
			continue
		}

		idx := len(deduped)
		deduped = append(deduped, h)
		if urlKey != "url:" {
			seen[urlKey] = idx
		}
		if titleKey != "title:" {
			seen[titleKey] = idx
		}
	}
	return deduped, removed
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.SearchHit, src types.SearchHit) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(src.Snippet) > len(dst.Snippet) {
		dst.Snippet = src.Snippet
	}
	if dst.Published.IsZero() {
		dst.Published = src.Published
	}
	if src.Score > dst.Score {
		dst.Score = src.Score
	}
	if src.Source != "" && !strings.Contains(dst.Source, src.Source) {
		if dst.Source == "" {
			dst.Source = src.Source
		} else {
			dst.Source = dst.Source + "," + src.Source
		}
	}
}

// NormalizeURL lowercases u and strips the scheme, "www." and a trailing slash.
func NormalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

// normalizeTitle returns a lowercased, punctuation-stripped title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatTable writes hits as a table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Source", "Score", "URL"})
	for i, h := range out.Hits {
		t.AppendRow(table.Row{i + 1, truncate(h.Title, 60), h.Source, fmt.Sprintf("%.2f", h.Score), h.URL})
	}
	t.Render()

	fmt.Fprintf(w, "%d results", len(out.Hits))
	if out.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes hits as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Hits)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
