// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Outline plans the chapters of the document.
type Outline struct {
	deps Deps
}

// outlineResponse is the YAML shape the model returns.
type outlineResponse struct {
	Title        string   `yaml:"title"`
	Subtitle     string   `yaml:"subtitle"`
	Introduction string   `yaml:"introduction"`
	Conclusion   []string `yaml:"conclusion"`
	Chapters     []struct {
		Title      string `yaml:"title"`
		Summary    string `yaml:"summary"`
		CodeBlocks int    `yaml:"code_blocks"`
		ImageHint  string `yaml:"image_hint"`
	} `yaml:"chapters"`
}

func (w *Outline) Name() string { return StageOutline }

func (w *Outline) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	req := view.Request()
	limits := view.Limits()
	findings := relevantFindings(view.Findings(), "", req.Topic, in.Config.FindingsPerPrompt)

	user, err := execute(outlineTmpl, map[string]any{
		"Request":     req,
		"Min":         limits.MinChapters,
		"Max":         limits.MaxChapters,
		"TargetWords": in.Profile.TargetWords,
		"WantsCode":   req.WantsCode(),
		"Findings":    findings,
	})
	if err != nil {
		return Result{}, err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: StageOutline, System: systemPrompt, User: user})
	if err != nil {
		return Result{}, failure.Classify(StageOutline, err)
	}

	outline, err := buildOutline(text, req, limits, in.Profile)
	if err != nil {
		return Result{}, failure.Classify(StageOutline, err)
	}
	w.deps.Logger.Info("outline planned",
		logging.String(logging.FieldRunID, in.RunID),
		logging.String("title", outline.Title),
		logging.Int("chapters", len(outline.Chapters)))
	return Result{Patch: state.Patch{Outline: &outline}}, nil
}

// buildOutline parses the model response and applies the chapter bounds:
// too few chapters is a malformed response, extra chapters are dropped.
func buildOutline(text string, req types.DocumentRequest, limits state.Limits, profile types.LengthProfile) (types.Outline, error) {
	var resp outlineResponse
	if err := decodeYAML(StageOutline, text, &resp); err != nil {
		return types.Outline{}, err
	}

	var specs []types.ChapterSpec
	for _, c := range resp.Chapters {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			continue
		}
		spec := types.ChapterSpec{
			ID:          fmt.Sprintf("ch-%02d", len(specs)+1),
			Title:       title,
			Summary:     strings.TrimSpace(c.Summary),
			TargetDepth: profile.TargetWords,
			ImageHint:   imageHint(c.ImageHint),
		}
		if req.WantsCode() && c.CodeBlocks > 0 {
			spec.CodeBlocks = min(c.CodeBlocks, 3)
		}
		specs = append(specs, spec)
	}
	if len(specs) < limits.MinChapters {
		return types.Outline{}, ports.Malformed("outline: %d chapters, need at least %d", len(specs), limits.MinChapters)
	}
	if len(specs) > limits.MaxChapters {
		specs = specs[:limits.MaxChapters]
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = req.Topic
	}
	return types.Outline{
		Title:        title,
		Subtitle:     strings.TrimSpace(resp.Subtitle),
		Introduction: strings.TrimSpace(resp.Introduction),
		Chapters:     specs,
		Conclusion:   resp.Conclusion,
	}, nil
}

func imageHint(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return ""
	}
	if _, ok := mermaidKeywords[s]; ok || s == "illustration" {
		return s
	}
	return "illustration"
}
