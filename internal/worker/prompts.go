// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/article-engine/pkg/types"
)

const systemPrompt = `You are a senior technical writer producing accurate, well-structured articles for software engineers. Follow the requested output format exactly.`

// numberedFinding is a finding with its global citation number.
type numberedFinding struct {
	N int
	types.Finding
}

var outlineTmpl = template.Must(template.New("outline").Parse(`Plan a {{.Request.ArticleType}} article about "{{.Request.Topic}}" for a {{.Request.Audience}} audience.

Write between {{.Min}} and {{.Max}} chapters. Target length: {{.TargetWords}} words per chapter.
{{- if .WantsCode}}
Chapters that teach a technique should carry code samples; give each a code_blocks count.
{{- else}}
Do not plan code samples.
{{- end}}
Suggest an image_hint per chapter when a picture helps: one of flowchart, sequence, architecture, mindmap, timeline, class, state, er, or illustration.

Research findings:
{{range .Findings}}[{{.N}}] {{.Title}}: {{.Snippet}}
{{else}}(none)
{{end}}
Respond with YAML only, in this shape:

title: <document title>
subtitle: <one line>
introduction: <two or three sentences>
chapters:
  - title: <chapter title>
    summary: <what the chapter covers>
    code_blocks: <number>
    image_hint: <type or empty>
conclusion:
  - <key takeaway>
`))

var draftTmpl = template.Must(template.New("draft").Parse(`Write one chapter of a {{.Request.ArticleType}} article about "{{.Request.Topic}}" for a {{.Request.Audience}} audience.

Chapter: {{.Spec.Title}}
Covers: {{.Spec.Summary}}
Write approximately {{.TargetWords}} words of Markdown. Do not repeat the chapter title as a heading.
{{- if .Previous}}
The previous chapter is "{{.Previous}}".
{{- end}}
{{- if .Next}}
The next chapter is "{{.Next}}".
{{- end}}

Cite findings by number in square brackets, e.g. [2]. Only cite numbers listed below.
{{range .Findings}}[{{.N}}] {{.Title}} ({{.URL}}): {{.Snippet}}
{{else}}(no findings yet)
{{end}}
{{- if gt .Spec.CodeBlocks 0}}
Mark {{.Spec.CodeBlocks}} code sample position(s) with [CODE: code-<n> - <what the code shows>].
{{- end}}
{{- if .Spec.ImageHint}}
Mark one figure position with [IMAGE: {{.Spec.ImageHint}} - <what the figure shows>].
{{- end}}

When a fact you need is not in the findings, do not invent it. Emit a gap block instead:
<gap><kind>missing_data|vague_concept|no_example</kind><question>...</question><query>web search query</query></gap>
{{- if .PreviousDraft}}

Your previous draft was rejected. Address every review note.
Review notes:
{{range .ReviewNotes}}- {{.}}
{{end}}
Previous draft:
{{.PreviousDraft}}
{{- end}}
`))

var depthCheckTmpl = template.Must(template.New("depth-check").Parse(`Judge whether this chapter is detailed enough for a {{.Strictness}} treatment.

Chapter: {{.Spec.Title}}
Covers: {{.Spec.Summary}}
Target length: {{.TargetWords}} words. Current length: {{.Words}} words.

{{.Draft}}

List concepts that are mentioned but not explained. For each, give the question a reader would ask and a web search query that would answer it.
If the chapter covers two separable topics, suggest a split.

Respond with a JSON object:
{"sufficient": bool, "depth_score": 0-100, "vague_points": [{"concept": "", "question": "", "query": "", "kind": "missing_data|vague_concept|no_example"}], "split": {"title": "", "summary": ""}}
`))

var expandTmpl = template.Must(template.New("depth-expand").Parse(`Expand this chapter to approximately {{.TargetWords}} words. Keep its structure, citations, and [CODE: ...] and [IMAGE: ...] markers.

Chapter: {{.Spec.Title}}

Explain these points in depth:
{{range .Points}}- {{.Concept}}: {{.Question}}
{{else}}- deepen the weakest explanations with concrete detail
{{end}}
Findings you may cite by number:
{{range .Findings}}[{{.N}}] {{.Title}}: {{.Snippet}}
{{else}}(none)
{{end}}
Current chapter:
{{.Draft}}

Respond with the full expanded chapter in Markdown. Use <gap> blocks for facts you cannot support.
`))

var codeTmpl = template.Must(template.New("code").Parse(`Write a short, runnable code sample for a {{.Audience}} reader of an article about "{{.Topic}}".

Chapter: {{.Chapter}}
The sample shows: {{.Description}}

Surrounding text:
{{.Context}}

Respond with a JSON object:
{"language": "", "code": "", "output": "expected output or empty", "explanation": "one or two sentences"}
`))

var diagramTmpl = template.Must(template.New("diagram").Parse(`Draw a Mermaid {{.Type}} diagram for an article about "{{.Topic}}".

The figure shows: {{.Description}}

Surrounding text:
{{.Context}}

Respond with Mermaid source only, starting with the diagram keyword ({{.Keyword}}). No code fence.
`))

var reviewTmpl = template.Must(template.New("review").Parse(`Review one chapter of a {{.Request.ArticleType}} article about "{{.Request.Topic}}" for a {{.Request.Audience}} audience.

Chapter: {{.Spec.Title}}
Expected coverage: {{.Spec.Summary}}
The acceptance bar is a score of {{.Threshold}}.

Check accuracy, depth, structure, and whether every claim is supported by a citation.

{{.Draft}}

Respond with a JSON object:
{"score": 0-100, "issues": ["concrete problem to fix"], "gaps": [{"kind": "missing_data|vague_concept|no_example", "description": "", "query": "web search query"}]}
`))

var coverTmpl = template.Must(template.New("cover").Parse(`Summarize this article for the designer of its cover image.
Name the core topic, three to five key concepts, and the tools or frameworks it covers. Stay under 150 words and use the article's language. Reply with the summary only.

Title: {{.Title}}

{{.Content}}
`))

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// excerpt returns the text around marker, bounded to limit runes.
func excerpt(text, marker string, limit int) string {
	i := strings.Index(text, marker)
	if i < 0 {
		return truncateRunes(text, limit)
	}
	start := max(i-limit/2, 0)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	return truncateRunes(text[start:], limit)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
