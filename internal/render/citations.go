// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/article-engine/pkg/types"
)

// citationPattern matches numeric inline citations: [3] or [1, 4] or [2; 5].
// Matches directly followed by "(" are Markdown links and are skipped.
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*[,;]\s*\d+)*)\]`)

// CitedIndices returns the distinct 1-based finding indices cited in text,
// in ascending order.
func CitedIndices(text string) []int {
	seen := make(map[int]bool)
	for _, loc := range citationPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[1] < len(text) && text[loc[1]] == '(' {
			continue
		}
		for _, part := range splitList(text[loc[2]:loc[3]]) {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil && n > 0 {
				seen[n] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// UnknownCitations returns cited indices with no matching finding.
func UnknownCitations(text string, findings int) []int {
	var missing []int
	for _, n := range CitedIndices(text) {
		if n > findings {
			missing = append(missing, n)
		}
	}
	return missing
}

// StripCitations removes the given indices from inline citations, dropping
// brackets left empty.
func StripCitations(text string, drop []int) string {
	if len(drop) == 0 {
		return text
	}
	bad := make(map[int]bool, len(drop))
	for _, n := range drop {
		bad[n] = true
	}
	return citationPattern.ReplaceAllStringFunc(text, func(raw string) string {
		var kept []string
		for _, part := range splitList(raw[1 : len(raw)-1]) {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || !bad[n] {
				kept = append(kept, strings.TrimSpace(part))
			}
		}
		if len(kept) == 0 {
			return ""
		}
		return "[" + strings.Join(kept, ", ") + "]"
	})
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// References numbers findings by their position. When text cites any
// finding only the cited ones are listed; otherwise all are.
func References(text string, findings []types.Finding) []types.Citation {
	cited := CitedIndices(text)
	var idx []int
	if len(cited) > 0 {
		for _, n := range cited {
			if n <= len(findings) {
				idx = append(idx, n)
			}
		}
	} else {
		for i := range findings {
			idx = append(idx, i+1)
		}
	}
	out := make([]types.Citation, 0, len(idx))
	for _, n := range idx {
		f := findings[n-1]
		out = append(out, types.Citation{Index: n, Title: f.Title, URL: f.URL, Source: f.Source})
	}
	return out
}

// GenerateBibTeX produces BibTeX @misc entries for citations.
func GenerateBibTeX(citations []types.Citation) string {
	var b strings.Builder
	for _, c := range citations {
		fmt.Fprintf(&b, "@misc{ref%d,\n", c.Index)
		fmt.Fprintf(&b, "  title = {%s},\n", c.Title)
		if c.URL != "" && !strings.HasPrefix(c.URL, "knowledge://") {
			fmt.Fprintf(&b, "  howpublished = {\\url{%s}},\n", c.URL)
		}
		if c.Source != "" {
			fmt.Fprintf(&b, "  note = {%s},\n", c.Source)
		}
		fmt.Fprintf(&b, "}\n\n")
	}
	return b.String()
}
