// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/pdiddy/article-engine/pkg/types"
)

// maxChunkRunes splits long sections on paragraph boundaries.
const maxChunkRunes = 2000

// Chunk splits content into heading-delimited chunks (# to ###). Sections
// longer than maxChunkRunes are split again at blank lines.
func Chunk(source, title, content string) []types.KnowledgeChunk {
	var chunks []types.KnowledgeChunk
	for _, sec := range chunkByHeadings(content) {
		for _, part := range splitParagraphs(sec.body, maxChunkRunes) {
			body := strings.TrimSpace(part)
			if body == "" {
				continue
			}
			pos := len(chunks)
			chunks = append(chunks, types.KnowledgeChunk{
				ID:       chunkID(source, pos, body),
				Source:   source,
				Title:    title,
				Heading:  sec.heading,
				Content:  body,
				Position: pos,
			})
		}
	}
	return chunks
}

func chunkID(source string, pos int, body string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", source, pos, body)))
	return fmt.Sprintf("kn-%x", sum[:6])
}

type section struct {
	heading string
	body    string
}

// chunkByHeadings splits Markdown into sections at heading boundaries.
// Headings inside fenced code blocks are ignored.
func chunkByHeadings(content string) []section {
	var sections []section
	heading := ""
	var body []string
	inFence := false

	flush := func() {
		text := strings.Join(body, "\n")
		if strings.TrimSpace(text) != "" {
			sections = append(sections, section{heading: heading, body: text})
		}
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && isHeading(trimmed) {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	for _, prefix := range []string{"# ", "## ", "### "} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func splitParagraphs(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		if cur.Len() > 0 && len([]rune(cur.String()))+len([]rune(para)) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
