// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/render"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Writers flag missing knowledge inline:
//
//	<gap>
//	  <kind>missing_data</kind>
//	  <question>How large is the default buffer?</question>
//	  <query>go bufio default buffer size</query>
//	</gap>
var (
	gapPattern      = regexp.MustCompile(`(?is)<gap>(.*?)</gap>`)
	kindPattern     = regexp.MustCompile(`(?is)<kind>(.*?)</kind>`)
	questionPattern = regexp.MustCompile(`(?is)<question>(.*?)</question>`)
	queryPattern    = regexp.MustCompile(`(?is)<query>(.*?)</query>`)

	fencePattern     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```\\s*$")
	multipleNewlines = regexp.MustCompile(`\n{3,}`)
)

// parseGaps removes <gap> blocks from text and returns them as gaps of
// chapterID. Blocks without a question are dropped.
func parseGaps(text, chapterID string) (string, []types.KnowledgeGap) {
	matches := gapPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil
	}
	var gaps []types.KnowledgeGap
	for _, m := range matches {
		question := tagValue(questionPattern, m[1])
		if question == "" {
			continue
		}
		query := tagValue(queryPattern, m[1])
		if query == "" {
			query = question
		}
		gaps = append(gaps, newGap(chapterID, gapKind(tagValue(kindPattern, m[1])), question, query))
	}
	cleaned := gapPattern.ReplaceAllString(text, "")
	return cleanWhitespace(cleaned), gaps
}

func tagValue(p *regexp.Regexp, s string) string {
	if m := p.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func gapKind(s string) types.GapKind {
	switch k := types.GapKind(strings.ToLower(strings.TrimSpace(s))); k {
	case types.GapMissingData, types.GapVagueConcept, types.GapNoExample:
		return k
	default:
		return types.GapMissingData
	}
}

func newGap(chapterID string, kind types.GapKind, description, query string) types.KnowledgeGap {
	return types.KnowledgeGap{
		ID:          "gap-" + render.StableID(chapterID, strings.ToLower(query)),
		ChapterID:   chapterID,
		Kind:        kind,
		Description: description,
		Query:       query,
	}
}

func cleanWhitespace(s string) string {
	return strings.TrimSpace(multipleNewlines.ReplaceAllString(s, "\n\n"))
}

// stripFence removes one surrounding Markdown code fence, if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// decodeJSON decodes the first JSON object in text into v. Models sometimes
// wrap the object in a fence or prose; both are tolerated.
func decodeJSON(stage, text string, v any) error {
	body := stripFence(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return ports.Malformed("%s: response has no JSON object", stage)
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return ports.Malformed("%s: decoding JSON: %v", stage, err)
	}
	return nil
}

// decodeYAML decodes a YAML document, optionally fenced, into v.
func decodeYAML(stage, text string, v any) error {
	if err := yaml.Unmarshal([]byte(stripFence(text)), v); err != nil {
		return ports.Malformed("%s: decoding YAML: %v", stage, err)
	}
	return nil
}
