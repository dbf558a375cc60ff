// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/pkg/types"
)

func TestCodePlaceholders(t *testing.T) {
	text := "Intro [CODE: hello - print a greeting] middle [CODE: just a description] end [CODE: hello - print a greeting]"
	got := CodePlaceholders(text)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].ID)
	assert.Equal(t, "print a greeting", got[0].Description)
	assert.True(t, strings.HasPrefix(got[1].ID, "code-"))
	assert.Equal(t, "just a description", got[1].Description)
}

func TestImagePlaceholders(t *testing.T) {
	text := "[IMAGE: flowchart - request lifecycle]\n[IMAGE: a sunset]"
	got := ImagePlaceholders(text)
	require.Len(t, got, 2)
	assert.Equal(t, "flowchart", got[0].Type)
	assert.Equal(t, "request lifecycle", got[0].Description)
	assert.Equal(t, "illustration", got[1].Type)

	again := ImagePlaceholders("other text [IMAGE: flowchart - request lifecycle]")
	assert.Equal(t, got[0].ID, again[0].ID, "id is stable for the same marker")
}

func TestResolvePlaceholders(t *testing.T) {
	img := ImagePlaceholders("[IMAGE: flowchart - request lifecycle]")[0]
	art := types.Artifacts{
		Code: []types.CodeSnippet{{ID: "hello", Language: "go", Code: "fmt.Println(1)\n", Output: "1", Explanation: "Prints one."}},
		Illustrations: []types.Illustration{
			{ID: img.ID, Kind: types.IllustrationMermaid, Content: "flowchart LR\n  a --> b", Description: "request lifecycle"},
		},
	}
	text := "A\n\n[CODE: hello - print]\n\n[CODE: gone - missing]\n\n\n\n[IMAGE: flowchart - request lifecycle]\n\n[IMAGE: photo - skyline]"

	got := ResolvePlaceholders(text, art)
	assert.Contains(t, got, "```go\nfmt.Println(1)\n```")
	assert.Contains(t, got, "Output:\n\n```text\n1\n```")
	assert.Contains(t, got, "Prints one.")
	assert.Contains(t, got, "```mermaid\nflowchart LR")
	assert.Contains(t, got, "*Figure: skyline*")
	assert.NotContains(t, got, "[CODE:")
	assert.NotContains(t, got, "\n\n\n")
}

func TestResolvePlaceholders_ImageData(t *testing.T) {
	p := ImagePlaceholders("[IMAGE: photo - cat]")[0]
	art := types.Artifacts{Illustrations: []types.Illustration{{ID: p.ID, Kind: types.IllustrationImage, Description: "cat", Data: []byte{1, 2}, MIME: "image/png"}}}
	assert.Equal(t, "![cat](data:image/png;base64,AQI=)", ResolvePlaceholders(p.Raw, art))
}

func TestWordCountAndReadingTime(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		words   int
		minutes int
	}{
		{"empty", "", 0, 1},
		{"english", "Go is a small language, isn't it?", 7, 1},
		{"cjk", strings.Repeat("中", 301), 301, 2},
		{"mixed", strings.Repeat("word ", 201) + "中文", 203, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.words, WordCount(tt.text))
			assert.Equal(t, tt.minutes, ReadingMinutes(tt.text))
		})
	}
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, "getting-started-with-go", Anchor("Getting Started with Go!"))
	assert.Equal(t, "section", Anchor("?!"))
	s := newSlugger()
	assert.Equal(t, "intro", s.next("Intro"))
	assert.Equal(t, "intro-1", s.next("Intro"))
}

func TestCitations(t *testing.T) {
	text := "Fact [1]. Both [2, 5]. Link [3](https://x). Again [1; 2]."
	assert.Equal(t, []int{1, 2, 5}, CitedIndices(text))
	assert.Equal(t, []int{5}, UnknownCitations(text, 4))

	stripped := StripCitations("Both [2, 5]. Only [5].", []int{5})
	assert.Equal(t, "Both [2]. Only .", stripped)
}

func TestReferences(t *testing.T) {
	findings := []types.Finding{
		{Title: "A", URL: "https://a"},
		{Title: "B", URL: "https://b"},
	}
	cited := References("see [2]", findings)
	require.Len(t, cited, 1)
	assert.Equal(t, 2, cited[0].Index)

	all := References("no citations", findings)
	assert.Len(t, all, 2)
}

func TestGenerateBibTeX(t *testing.T) {
	out := GenerateBibTeX([]types.Citation{
		{Index: 1, Title: "Go Memory Model", URL: "https://go.dev/ref/mem", Source: "web"},
		{Index: 2, Title: "notes.md", URL: "knowledge://notes.md#0", Source: "knowledge"},
	})
	assert.Contains(t, out, "@misc{ref1,")
	assert.Contains(t, out, `\url{https://go.dev/ref/mem}`)
	assert.NotContains(t, out, "knowledge://")
}

func sampleInput() Input {
	return Input{
		RunID:   "0123456789abcdef",
		Request: types.DocumentRequest{Topic: "Go channels"},
		Outline: types.Outline{
			Title:        "Go Channels in Practice",
			Subtitle:     "From basics to pipelines",
			Introduction: "Channels connect goroutines.",
			Chapters: []types.ChapterSpec{
				{ID: "ch-01", Title: "Basics"},
				{ID: "ch-02", Title: "Pipelines"},
			},
			Conclusion: []string{"Prefer clear ownership."},
		},
		Chapters: []types.Chapter{
			{ID: "ch-02", Title: "Pipelines", Draft: "## Pipelines\n\nStages connect [1].\n\n[CODE: pipe - pipeline]", Status: types.StatusForced, DegradedReason: "review: timeout"},
			{ID: "ch-01", Title: "Basics", Draft: "Send and receive [9].", Status: types.StatusAccepted, Score: 90},
		},
		Findings: []types.Finding{{Title: "Pipelines post", URL: "https://go.dev/blog/pipelines", Source: "web"}},
		Artifacts: map[string]types.Artifacts{
			"ch-02": {Code: []types.CodeSnippet{{ID: "pipe", ChapterID: "ch-02", Language: "go", Code: "out := gen()"}}},
		},
		SearchRounds: 2,
		Now:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAssemble(t *testing.T) {
	doc, err := Assemble(sampleInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"ch-01", "ch-02"}, doc.ChapterIDs(), "outline order")
	assert.Equal(t, []string{"ch-02"}, doc.Degraded)
	assert.Equal(t, types.StatusForced, doc.Chapters[1].Status)

	md := doc.Markdown
	assert.True(t, strings.HasPrefix(md, "# Go Channels in Practice\n"))
	assert.Contains(t, md, "- [Basics](#basics)")
	assert.Contains(t, md, "```go\nout := gen()\n```")
	assert.NotContains(t, md, "[9]", "unknown citation stripped")
	assert.Equal(t, 1, strings.Count(md, "## Pipelines"), "duplicate leading heading removed")
	assert.Contains(t, md, "## References\n\n1. [Pipelines post](https://go.dev/blog/pipelines)")
	assert.Contains(t, md, "- Prefer clear ownership.")

	assert.Contains(t, doc.HTML, `<h2 id="basics">Basics</h2>`)
	assert.Contains(t, doc.HTML, `href="#basics"`)
	assert.Positive(t, doc.WordCount)
	assert.Equal(t, 2, doc.SearchRounds)
	assert.Contains(t, doc.Artifacts, "ch-02")
}

func TestAssemble_Cover(t *testing.T) {
	in := sampleInput()
	in.Cover = &types.Illustration{ID: "cover", Kind: types.IllustrationImage, Description: "Go channels cover", Data: []byte{1, 2}, MIME: "image/png"}
	doc, err := Assemble(in)
	require.NoError(t, err)

	md := doc.Markdown
	img := strings.Index(md, "![Go channels cover](data:image/png;base64,AQI=)")
	require.Positive(t, img)
	assert.Less(t, strings.Index(md, "# Go Channels in Practice"), img)
	assert.Less(t, img, strings.Index(md, "## Contents"))
	assert.Same(t, in.Cover, doc.Cover)
	assert.Contains(t, doc.HTML, `<img src="data:image/png;base64,AQI="`)

	plain, err := Assemble(sampleInput())
	require.NoError(t, err)
	assert.Nil(t, plain.Cover)
	assert.NotContains(t, plain.Markdown, "![")
}

func TestAssemble_MissingChapter(t *testing.T) {
	in := sampleInput()
	in.Chapters = in.Chapters[:1]
	_, err := Assemble(in)
	assert.Error(t, err)

	in = sampleInput()
	in.Outline.Chapters = nil
	_, err = Assemble(in)
	assert.Error(t, err)
}

func TestAssemble_EmptyDraft(t *testing.T) {
	in := sampleInput()
	in.Chapters[1].Draft = ""
	doc, err := Assemble(in)
	require.NoError(t, err)
	assert.Equal(t, missingChapter, doc.Chapters[0].Content)
}

func TestWriteFiles(t *testing.T) {
	doc, err := Assemble(sampleInput())
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := WriteFiles(dir, doc)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "go-channels-in-practice-01234567.md"), paths[0])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, doc.Markdown, string(data))
}
