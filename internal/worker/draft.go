// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Draft writes, or after a rejected review rewrites, one chapter.
type Draft struct {
	deps Deps
}

func (w *Draft) Name() string { return StageDraft }

func (w *Draft) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	spec, ch, err := chapterOf(view, StageDraft, in.ChapterID)
	if err != nil {
		return Result{}, err
	}
	req := view.Request()
	prev, next := neighbours(view, spec.ID)

	data := map[string]any{
		"Request":     req,
		"Spec":        spec,
		"TargetWords": targetWords(spec, in.Profile),
		"Previous":    prev,
		"Next":        next,
		"Findings":    relevantFindings(view.Findings(), spec.ID, spec.Title+" "+spec.Summary, in.Config.FindingsPerPrompt),
	}
	if ch.Status == types.StatusRejected {
		data["PreviousDraft"] = ch.Draft
		data["ReviewNotes"] = ch.ReviewNotes
	}
	user, err := execute(draftTmpl, data)
	if err != nil {
		return Result{}, err
	}

	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: StageDraft, System: systemPrompt, User: user})
	if err != nil {
		return Result{}, failure.Classify(StageDraft, err)
	}
	draft, gaps := parseGaps(text, spec.ID)
	if draft == "" {
		return Result{}, failure.Classify(StageDraft, ports.Malformed("draft: empty chapter %s", spec.ID))
	}

	w.deps.Logger.Debug("chapter drafted",
		logging.String(logging.FieldRunID, in.RunID),
		logging.String(logging.FieldChapterID, spec.ID),
		logging.Int("gaps", len(gaps)))
	return Result{
		Patch: state.Patch{
			Chapter: &state.ChapterUpdate{ID: spec.ID, Status: types.StatusDrafted, Draft: &draft},
			AddGaps: gaps,
		},
		Signal: Signal{GapDetected: len(gaps) > 0, Gaps: gaps},
	}, nil
}

func targetWords(spec types.ChapterSpec, profile types.LengthProfile) int {
	if spec.TargetDepth > 0 {
		return spec.TargetDepth
	}
	return profile.TargetWords
}

// neighbours returns the titles of the chapters around id.
func neighbours(view state.View, id string) (string, string) {
	outline, ok := view.Outline()
	if !ok {
		return "", ""
	}
	var prev, next string
	for i, c := range outline.Chapters {
		if c.ID != id {
			continue
		}
		if i > 0 {
			prev = outline.Chapters[i-1].Title
		}
		if i+1 < len(outline.Chapters) {
			next = outline.Chapters[i+1].Title
		}
	}
	return prev, next
}
