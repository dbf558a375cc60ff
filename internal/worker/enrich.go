// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"strings"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/render"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

const contextChars = 1200

// CodeEnrich fills the [CODE: ...] markers of a chapter. Markers that
// already have a snippet are skipped, so a retry only generates the rest.
type CodeEnrich struct {
	deps Deps
}

type codeResponse struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Output      string `json:"output"`
	Explanation string `json:"explanation"`
}

func (w *CodeEnrich) Name() string { return StageCodeEnrich }

func (w *CodeEnrich) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	spec, ch, err := chapterOf(view, StageCodeEnrich, in.ChapterID)
	if err != nil {
		return Result{}, err
	}
	req := view.Request()
	if !req.WantsCode() && spec.CodeBlocks == 0 {
		return Result{}, nil
	}
	have := make(map[string]bool)
	for _, c := range view.Artifacts(spec.ID).Code {
		have[c.ID] = true
	}

	var snippets []types.CodeSnippet
	for _, p := range render.CodePlaceholders(ch.Draft) {
		if have[p.ID] {
			continue
		}
		user, err := execute(codeTmpl, map[string]any{
			"Audience":    req.Audience,
			"Topic":       req.Topic,
			"Chapter":     spec.Title,
			"Description": p.Description,
			"Context":     excerpt(ch.Draft, p.Raw, contextChars),
		})
		if err != nil {
			return Result{}, err
		}
		text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: promptCode, System: systemPrompt, User: user, JSON: true})
		if err != nil {
			return Result{}, failure.Classify(StageCodeEnrich, err)
		}
		var resp codeResponse
		if err := decodeJSON(promptCode, text, &resp); err != nil {
			return Result{}, failure.Classify(StageCodeEnrich, err)
		}
		if strings.TrimSpace(resp.Code) == "" {
			return Result{}, failure.Classify(StageCodeEnrich, ports.Malformed("code: empty sample for %s", p.ID))
		}
		snippets = append(snippets, types.CodeSnippet{
			ID:          p.ID,
			ChapterID:   spec.ID,
			Description: p.Description,
			Language:    strings.ToLower(strings.TrimSpace(resp.Language)),
			Code:        resp.Code,
			Output:      resp.Output,
			Explanation: resp.Explanation,
		})
	}
	if len(snippets) > 0 {
		w.deps.Logger.Debug("code samples generated",
			logging.String(logging.FieldRunID, in.RunID),
			logging.String(logging.FieldChapterID, spec.ID),
			logging.Int("count", len(snippets)))
	}
	return Result{Patch: state.Patch{Code: snippets}}, nil
}

// mermaidKeywords maps illustration types to the Mermaid diagram keyword.
var mermaidKeywords = map[string]string{
	"flowchart":    "flowchart",
	"sequence":     "sequenceDiagram",
	"architecture": "flowchart",
	"mindmap":      "mindmap",
	"timeline":     "timeline",
	"class":        "classDiagram",
	"state":        "stateDiagram-v2",
	"er":           "erDiagram",
}

// Illustrate fills the [IMAGE: ...] markers of a chapter with Mermaid
// diagrams or generated images. Without an image generator every marker is
// rendered as a flowchart.
type Illustrate struct {
	deps Deps
}

func (w *Illustrate) Name() string { return StageIllustrate }

func (w *Illustrate) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	spec, ch, err := chapterOf(view, StageIllustrate, in.ChapterID)
	if err != nil {
		return Result{}, err
	}
	req := view.Request()
	have := make(map[string]bool)
	for _, ill := range view.Artifacts(spec.ID).Illustrations {
		have[ill.ID] = true
	}

	var out []types.Illustration
	for _, p := range render.ImagePlaceholders(ch.Draft) {
		if have[p.ID] {
			continue
		}
		ill := types.Illustration{ID: p.ID, ChapterID: spec.ID, ImageType: p.Type, Description: p.Description}
		_, isDiagram := mermaidKeywords[p.Type]
		if !isDiagram && w.deps.Images != nil {
			img, err := w.deps.Images.Generate(ctx, p.Description, req.ImageStyle)
			if err != nil {
				return Result{}, failure.Classify(StageIllustrate, err)
			}
			ill.Kind = types.IllustrationImage
			ill.Content = img.URL
			ill.Data = img.Data
			ill.MIME = img.MIME
			out = append(out, ill)
			continue
		}

		typ := p.Type
		if !isDiagram {
			typ = "flowchart"
		}
		source, err := w.diagram(ctx, req, typ, p, ch.Draft)
		if err != nil {
			return Result{}, err
		}
		ill.Kind = types.IllustrationMermaid
		ill.Content = source
		out = append(out, ill)
	}
	return Result{Patch: state.Patch{Illustrations: out}}, nil
}

func (w *Illustrate) diagram(ctx context.Context, req types.DocumentRequest, typ string, p render.Placeholder, draft string) (string, error) {
	keyword := mermaidKeywords[typ]
	user, err := execute(diagramTmpl, map[string]any{
		"Type":        typ,
		"Keyword":     keyword,
		"Topic":       req.Topic,
		"Description": p.Description,
		"Context":     excerpt(draft, p.Raw, contextChars),
	})
	if err != nil {
		return "", err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: promptDiagram, System: systemPrompt, User: user})
	if err != nil {
		return "", failure.Classify(StageIllustrate, err)
	}
	source := stripFence(text)
	if !validMermaid(source) {
		return "", failure.Classify(StageIllustrate, ports.Malformed("diagram: %s is not Mermaid source", p.ID))
	}
	return source, nil
}

// validMermaid reports whether source starts with a known diagram keyword.
func validMermaid(source string) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(source), "\n")
	first = strings.TrimSpace(first)
	for _, kw := range []string{"flowchart", "graph", "sequenceDiagram", "mindmap", "timeline", "classDiagram", "stateDiagram", "erDiagram"} {
		if strings.HasPrefix(first, kw) {
			return true
		}
	}
	return false
}
