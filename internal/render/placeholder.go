// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Writers mark enrichment points with [CODE: id - description] and
// [IMAGE: type - description].
var (
	codePattern  = regexp.MustCompile(`\[CODE:\s*([^\]]+)\]`)
	imagePattern = regexp.MustCompile(`\[IMAGE:\s*([^\]]+)\]`)
)

// Placeholder is one enrichment marker found in chapter text.
type Placeholder struct {
	// ID is the writer-supplied code id, or a stable hash for images.
	ID          string
	Type        string
	Description string
	Raw         string
}

// CodePlaceholders returns the distinct [CODE: ...] markers of text in order.
func CodePlaceholders(text string) []Placeholder {
	var out []Placeholder
	seen := make(map[string]bool)
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		p := parseCode(m)
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// ImagePlaceholders returns the distinct [IMAGE: ...] markers of text in order.
func ImagePlaceholders(text string) []Placeholder {
	var out []Placeholder
	seen := make(map[string]bool)
	for _, m := range imagePattern.FindAllStringSubmatch(text, -1) {
		p := parseImage(m)
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func parseCode(m []string) Placeholder {
	id, desc := splitMarker(m[1])
	if id == "" || strings.ContainsAny(id, " \t") {
		desc = strings.TrimSpace(m[1])
		id = "code-" + StableID(desc)
	}
	return Placeholder{ID: id, Type: "code", Description: desc, Raw: m[0]}
}

func parseImage(m []string) Placeholder {
	typ, desc := splitMarker(m[1])
	if desc == "" {
		typ, desc = "illustration", strings.TrimSpace(m[1])
	}
	typ = strings.ToLower(strings.ReplaceAll(typ, " ", "_"))
	return Placeholder{ID: "img-" + StableID(typ, desc), Type: typ, Description: desc, Raw: m[0]}
}

func splitMarker(inner string) (string, string) {
	head, tail, found := strings.Cut(inner, " - ")
	if !found {
		return strings.TrimSpace(inner), ""
	}
	return strings.TrimSpace(head), strings.TrimSpace(tail)
}

// ResolvePlaceholders replaces markers with their artifacts. Code markers
// without an artifact are removed; image markers without one become a caption.
func ResolvePlaceholders(text string, a types.Artifacts) string {
	code := make(map[string]types.CodeSnippet, len(a.Code))
	for _, c := range a.Code {
		code[c.ID] = c
	}
	images := make(map[string]types.Illustration, len(a.Illustrations))
	for _, ill := range a.Illustrations {
		images[ill.ID] = ill
	}

	text = codePattern.ReplaceAllStringFunc(text, func(raw string) string {
		p := parseCode(codePattern.FindStringSubmatch(raw))
		if c, ok := code[p.ID]; ok {
			return formatCode(c)
		}
		return ""
	})
	text = imagePattern.ReplaceAllStringFunc(text, func(raw string) string {
		p := parseImage(imagePattern.FindStringSubmatch(raw))
		if ill, ok := images[p.ID]; ok {
			return formatIllustration(ill)
		}
		return fmt.Sprintf("*Figure: %s*", p.Description)
	})
	return collapseBlankLines(text)
}

func formatCode(c types.CodeSnippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```%s\n%s\n```", c.Language, strings.TrimRight(c.Code, "\n"))
	if out := strings.TrimSpace(c.Output); out != "" {
		fmt.Fprintf(&b, "\n\nOutput:\n\n```text\n%s\n```", out)
	}
	if exp := strings.TrimSpace(c.Explanation); exp != "" {
		fmt.Fprintf(&b, "\n\n%s", exp)
	}
	return b.String()
}

func formatIllustration(ill types.Illustration) string {
	switch ill.Kind {
	case types.IllustrationMermaid:
		return fmt.Sprintf("```mermaid\n%s\n```\n\n*%s*", strings.TrimSpace(ill.Content), ill.Description)
	default:
		src := ill.Content
		if src == "" && len(ill.Data) > 0 {
			mime := ill.MIME
			if mime == "" {
				mime = "image/png"
			}
			src = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(ill.Data)
		}
		return fmt.Sprintf("![%s](%s)", ill.Description, src)
	}
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankRuns.ReplaceAllString(s, "\n\n")
}
