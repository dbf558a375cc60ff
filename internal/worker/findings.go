// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/article-engine/internal/render"
	"github.com/pdiddy/article-engine/internal/search"
	"github.com/pdiddy/article-engine/pkg/types"
)

// toFindings converts search hits into findings of round, attributed to
// chapterID when set.
func toFindings(hits []types.SearchHit, round int, chapterID string) []types.Finding {
	out := make([]types.Finding, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		out = append(out, types.Finding{
			ID:        "f-" + render.StableID(search.NormalizeURL(h.URL)),
			Title:     h.Title,
			URL:       h.URL,
			Snippet:   h.Snippet,
			Source:    h.Source,
			Query:     h.Query,
			Round:     round,
			Score:     h.Score,
			ChapterID: chapterID,
		})
	}
	return out
}

// numbered assigns citation numbers by position in the run's finding list.
func numbered(all []types.Finding) []numberedFinding {
	out := make([]numberedFinding, len(all))
	for i, f := range all {
		out[i] = numberedFinding{N: i + 1, Finding: f}
	}
	return out
}

// relevantFindings picks up to max findings for a chapter. Findings
// gathered for the chapter rank first, then by term overlap with text,
// then by search score. The result keeps citation order.
func relevantFindings(all []types.Finding, chapterID, text string, max int) []numberedFinding {
	if max <= 0 {
		max = 8
	}
	candidates := numbered(all)
	if len(candidates) <= max {
		return candidates
	}
	terms := termSet(text)
	relevance := make(map[int]float64, len(candidates))
	for _, c := range candidates {
		r := c.Score
		if chapterID != "" && c.ChapterID == chapterID {
			r += 10
		}
		for t := range termSet(c.Title + " " + c.Snippet) {
			if terms[t] {
				r++
			}
		}
		relevance[c.N] = r
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return relevance[candidates[i].N] > relevance[candidates[j].N]
	})
	picked := candidates[:max]
	sort.Slice(picked, func(i, j int) bool { return picked[i].N < picked[j].N })
	return picked
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) > 3 {
			set[w] = true
		}
	}
	return set
}
