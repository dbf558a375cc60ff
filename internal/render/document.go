// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns the chapters, artifacts, and findings of a run into
// the final Markdown and HTML document, and writes it to disk.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Input is everything the assembler reads.
type Input struct {
	RunID        string
	Request      types.DocumentRequest
	Outline      types.Outline
	Chapters     []types.Chapter
	Findings     []types.Finding
	Artifacts    map[string]types.Artifacts
	SearchRounds int
	Now          time.Time

	// Cover, when set, is placed under the title.
	Cover *types.Illustration
}

const missingChapter = "*This chapter could not be generated.*"

// Assemble builds the final document. Chapters appear in outline order.
func Assemble(in Input) (*types.FinalDocument, error) {
	if len(in.Outline.Chapters) == 0 {
		return nil, fmt.Errorf("outline has no chapters")
	}
	byID := make(map[string]types.Chapter, len(in.Chapters))
	for _, c := range in.Chapters {
		byID[c.ID] = c
	}

	title := in.Outline.Title
	if strings.TrimSpace(title) == "" {
		title = in.Request.Topic
	}

	slugs := newSlugger()
	slugs.next(title)
	slugs.next("Contents")

	doc := &types.FinalDocument{
		RunID:        in.RunID,
		Title:        title,
		Subtitle:     in.Outline.Subtitle,
		Cover:        in.Cover,
		Artifacts:    make(map[string]types.Artifacts),
		SearchRounds: in.SearchRounds,
		CreatedAt:    in.Now,
	}

	var body strings.Builder
	var toc strings.Builder
	for _, spec := range in.Outline.Chapters {
		c, ok := byID[spec.ID]
		if !ok {
			return nil, fmt.Errorf("chapter %q missing from state", spec.ID)
		}
		chapterTitle := spec.Title
		if chapterTitle == "" {
			chapterTitle = c.Title
		}

		content := missingChapter
		if strings.TrimSpace(c.Draft) != "" {
			art := in.Artifacts[spec.ID]
			content = ResolvePlaceholders(stripLeadingHeading(c.Draft, chapterTitle), art)
			if len(art.Code) > 0 || len(art.Illustrations) > 0 {
				doc.Artifacts[spec.ID] = art
			}
		}
		content = StripCitations(content, UnknownCitations(content, len(in.Findings)))

		fmt.Fprintf(&toc, "- [%s](#%s)\n", chapterTitle, slugs.next(chapterTitle))
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", chapterTitle, strings.TrimSpace(content))

		doc.Chapters = append(doc.Chapters, types.FinalChapter{
			ID:        spec.ID,
			Title:     chapterTitle,
			Status:    c.Status,
			Score:     c.Score,
			Revisions: c.Revisions,
			Content:   content,
		})
		if c.DegradedReason != "" {
			doc.Degraded = append(doc.Degraded, spec.ID)
		}
	}

	if len(in.Outline.Conclusion) > 0 {
		body.WriteString("## Conclusion\n\n")
		for _, point := range in.Outline.Conclusion {
			fmt.Fprintf(&body, "- %s\n", point)
		}
		body.WriteString("\n")
	}

	doc.Citations = References(body.String(), in.Findings)
	if len(doc.Citations) > 0 {
		body.WriteString("## References\n\n")
		for _, c := range doc.Citations {
			if c.URL != "" && !strings.HasPrefix(c.URL, "knowledge://") {
				fmt.Fprintf(&body, "%d. [%s](%s)\n", c.Index, c.Title, c.URL)
			} else {
				fmt.Fprintf(&body, "%d. %s\n", c.Index, c.Title)
			}
		}
	}

	doc.WordCount = WordCount(body.String())
	doc.ReadingMinutes = ReadingMinutes(body.String())

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", title)
	if doc.Subtitle != "" {
		fmt.Fprintf(&md, "*%s*\n\n", doc.Subtitle)
	}
	if doc.Cover != nil {
		fmt.Fprintf(&md, "%s\n\n", formatIllustration(*doc.Cover))
	}
	fmt.Fprintf(&md, "> %d min read\n\n", doc.ReadingMinutes)
	if intro := strings.TrimSpace(in.Outline.Introduction); intro != "" {
		fmt.Fprintf(&md, "%s\n\n", intro)
	}
	fmt.Fprintf(&md, "## Contents\n\n%s\n", toc.String())
	md.WriteString(body.String())
	doc.Markdown = strings.TrimRight(md.String(), "\n") + "\n"

	htmlOut, err := HTML(doc.Markdown)
	if err != nil {
		return nil, err
	}
	doc.HTML = htmlOut
	return doc, nil
}

// HTML converts Markdown to HTML with GitHub-flavored extensions. Heading
// ids follow Anchor so table-of-contents links resolve.
func HTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	ctx := parser.NewContext(parser.WithIDs(&headingIDs{slugs: newSlugger()}))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf, parser.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

type headingIDs struct {
	slugs *slugger
}

func (h *headingIDs) Generate(value []byte, _ ast.NodeKind) []byte {
	return []byte(h.slugs.next(string(value)))
}

func (h *headingIDs) Put(value []byte) {
	h.slugs.seen[string(value)]++
}

// WriteFiles writes <dir>/<anchor>.md, .html and .bib for doc and returns
// the paths written.
func WriteFiles(dir string, doc *types.FinalDocument) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	base := Anchor(doc.Title)
	if doc.RunID != "" {
		base = base + "-" + shortID(doc.RunID)
	}
	files := map[string]string{
		base + ".md":   doc.Markdown,
		base + ".html": doc.HTML,
	}
	if len(doc.Citations) > 0 {
		files[base+".bib"] = GenerateBibTeX(doc.Citations)
	}

	var written []string
	for _, name := range []string{base + ".md", base + ".html", base + ".bib"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
