// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package offline provides deterministic stand-ins for the capability ports.
// They make no network calls and shape each response after the prompt
// stage, so the whole pipeline can run locally and in tests.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/pkg/types"
)

var (
	topicPattern    = regexp.MustCompile(`about "([^"]+)"`)
	rangePattern    = regexp.MustCompile(`between (\d+) and (\d+) chapters`)
	chapterPattern  = regexp.MustCompile(`(?m)^Chapter: (.+)$`)
	wordsPattern    = regexp.MustCompile(`approximately (\d+) words`)
	codeMarkPattern = regexp.MustCompile(`Mark (\d+) code sample`)
	imageMarkRegex  = regexp.MustCompile(`\[IMAGE: ([a-z_]+) -`)
	keywordPattern  = regexp.MustCompile(`diagram keyword \(([A-Za-z-0-9]+)\)`)
	findingPattern  = regexp.MustCompile(`(?m)^\[(\d+)\] `)
)

// Text implements ports.TextGenerator without a model.
type Text struct {
	// ReviewScore is returned by every review (default 85).
	ReviewScore int
}

var _ ports.TextGenerator = (*Text)(nil)

// Generate returns a response in the format the prompt stage expects.
func (t *Text) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch p.Stage {
	case "outline":
		return outline(p.User)
	case "draft":
		return draft(p.User), nil
	case "depth-check":
		return `{"sufficient": true, "depth_score": 85, "vague_points": []}`, nil
	case "depth-expand":
		return expand(p.User), nil
	case "code":
		return code(p.User)
	case "diagram":
		return diagram(p.User), nil
	case "cover":
		return "An overview of " + topic(p.User) + " with its key concepts and examples.", nil
	case "review":
		score := t.ReviewScore
		if score == 0 {
			score = 85
		}
		return fmt.Sprintf(`{"score": %d, "issues": [], "gaps": []}`, score), nil
	default:
		return "", ports.NewProviderError(ports.ProviderRejected, fmt.Errorf("offline: unknown stage %q", p.Stage))
	}
}

func topic(prompt string) string {
	if m := topicPattern.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	return "the topic"
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

var chapterAngles = []string{
	"Core concepts", "Getting started", "How it works", "Common patterns",
	"Pitfalls and trade-offs", "Testing and debugging", "Performance",
	"Production checklist", "Real-world example", "Where to go next",
}

func outline(prompt string) (string, error) {
	n := 3
	if m := rangePattern.FindStringSubmatch(prompt); m != nil {
		n = atoi(m[1], n)
	}
	subject := topic(prompt)

	type chapter struct {
		Title      string `yaml:"title"`
		Summary    string `yaml:"summary"`
		CodeBlocks int    `yaml:"code_blocks"`
		ImageHint  string `yaml:"image_hint,omitempty"`
	}
	doc := struct {
		Title        string    `yaml:"title"`
		Subtitle     string    `yaml:"subtitle"`
		Introduction string    `yaml:"introduction"`
		Chapters     []chapter `yaml:"chapters"`
		Conclusion   []string  `yaml:"conclusion"`
	}{
		Title:        subject + ": A Practical Guide",
		Subtitle:     "From first principles to production",
		Introduction: "This guide walks through " + subject + " step by step.",
		Conclusion:   []string{"Start small and measure.", "Prefer clarity over cleverness."},
	}
	wantsCode := !strings.Contains(prompt, "Do not plan code samples")
	for i := 0; i < n; i++ {
		angle := chapterAngles[i%len(chapterAngles)]
		c := chapter{
			Title:   angle,
			Summary: fmt.Sprintf("%s of %s.", angle, subject),
		}
		if wantsCode && i%2 == 1 {
			c.CodeBlocks = 1
		}
		if i == 0 {
			c.ImageHint = "flowchart"
		}
		doc.Chapters = append(doc.Chapters, c)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("offline outline: %w", err)
	}
	return string(out), nil
}

func draft(prompt string) string {
	subject := topic(prompt)
	title := "this chapter"
	if m := chapterPattern.FindStringSubmatch(prompt); m != nil {
		title = strings.TrimSpace(m[1])
	}
	words := 200
	if m := wordsPattern.FindStringSubmatch(prompt); m != nil {
		words = atoi(m[1], words)
	}
	cite := ""
	if m := findingPattern.FindStringSubmatch(prompt); m != nil {
		cite = " [" + m[1] + "]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s is a central part of %s.%s\n\n", title, subject, cite)
	if m := imageMarkRegex.FindStringSubmatch(prompt); m != nil {
		fmt.Fprintf(&b, "[IMAGE: %s - overview of %s]\n\n", m[1], strings.ToLower(title))
	}
	if m := codeMarkPattern.FindStringSubmatch(prompt); m != nil {
		for i := 1; i <= atoi(m[1], 1); i++ {
			fmt.Fprintf(&b, "[CODE: code-%d - minimal %s example]\n\n", i, strings.ToLower(title))
		}
	}
	sentence := fmt.Sprintf("Understanding %s helps you reason about %s in real systems. ", strings.ToLower(title), subject)
	perSentence := len(strings.Fields(sentence))
	for written := 0; written < words; written += perSentence {
		b.WriteString(sentence)
	}
	b.WriteString("\n")
	return b.String()
}

func expand(prompt string) string {
	_, current, found := strings.Cut(prompt, "Current chapter:\n")
	if !found {
		return draft(prompt)
	}
	current, _, _ = strings.Cut(current, "\n\nRespond with")
	return strings.TrimSpace(current) + "\n\nIn practice, these ideas combine: each step builds on the previous one and the trade-offs become visible under load.\n"
}

func code(prompt string) (string, error) {
	resp := map[string]string{
		"language":    "go",
		"code":        "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"" + strings.ReplaceAll(topic(prompt), `"`, "") + "\")\n}",
		"output":      topic(prompt),
		"explanation": "The program prints the topic name.",
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("offline code: %w", err)
	}
	return string(out), nil
}

func diagram(prompt string) string {
	keyword := "flowchart"
	if m := keywordPattern.FindStringSubmatch(prompt); m != nil {
		keyword = m[1]
	}
	switch keyword {
	case "sequenceDiagram":
		return "sequenceDiagram\n    Client->>Server: request\n    Server-->>Client: response"
	case "mindmap":
		return "mindmap\n  root((topic))\n    concepts\n    practice"
	case "timeline":
		return "timeline\n    title History\n    2020 : first release\n    2024 : wide adoption"
	case "classDiagram":
		return "classDiagram\n    class Service\n    Service : +Run()"
	case "stateDiagram-v2":
		return "stateDiagram-v2\n    [*] --> Running\n    Running --> [*]"
	case "erDiagram":
		return "erDiagram\n    RUN ||--o{ CHAPTER : has"
	default:
		return "flowchart TD\n    A[Input] --> B[Process]\n    B --> C[Output]"
	}
}

// Search implements ports.WebSearcher with synthetic hits.
type Search struct{}

var _ ports.WebSearcher = Search{}

// Search returns max hits derived from query.
func (Search) Search(ctx context.Context, query string, max int) ([]types.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ports.SearchUnavailableError{Query: query, Err: err}
	}
	if max <= 0 {
		max = 3
	}
	slug := strings.Join(strings.Fields(strings.ToLower(query)), "-")
	hits := make([]types.SearchHit, 0, max)
	for i := 0; i < max; i++ {
		hits = append(hits, types.SearchHit{
			Title:   fmt.Sprintf("%s, part %d", query, i+1),
			URL:     fmt.Sprintf("https://example.com/%s/%d", slug, i+1),
			Snippet: "Notes on " + query + ".",
			Source:  "offline",
			Score:   1 - float64(i)*0.1,
			Query:   query,
		})
	}
	return hits, nil
}
