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

// Review scores a chapter. It records the score and moves the chapter to
// reviewed; the engine decides acceptance against the threshold.
//
// Reviewing a terminal chapter whose text is unchanged returns the stored
// score and an empty patch.
type Review struct {
	deps Deps
}

type reviewResponse struct {
	Score  *int     `json:"score"`
	Issues []string `json:"issues"`
	Gaps   []struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
		Query       string `json:"query"`
	} `json:"gaps"`
}

func (w *Review) Name() string { return StageReview }

func (w *Review) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	spec, ch, err := chapterOf(view, StageReview, in.ChapterID)
	if err != nil {
		return Result{}, err
	}
	hash := state.DraftHash(ch.Draft)
	if ch.Status.Terminal() && ch.Scored && ch.ReviewedHash == hash {
		return Result{Signal: Signal{Score: ch.Score, Scored: true}}, nil
	}

	req := view.Request()
	user, err := execute(reviewTmpl, map[string]any{
		"Request":   req,
		"Spec":      spec,
		"Threshold": view.Limits().ScoreThreshold,
		"Draft":     ch.Draft,
	})
	if err != nil {
		return Result{}, err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: StageReview, System: systemPrompt, User: user, JSON: true})
	if err != nil {
		return Result{}, failure.Classify(StageReview, err)
	}
	var resp reviewResponse
	if err := decodeJSON(StageReview, text, &resp); err != nil {
		return Result{}, failure.Classify(StageReview, err)
	}
	if resp.Score == nil || *resp.Score < 0 || *resp.Score > 100 {
		return Result{}, failure.Classify(StageReview, ports.Malformed("review: score missing or outside 0-100"))
	}
	score := *resp.Score

	notes := make([]string, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		if s := strings.TrimSpace(issue); s != "" {
			notes = append(notes, s)
		}
	}
	if unknown := render.UnknownCitations(ch.Draft, len(view.Findings())); len(unknown) > 0 {
		notes = append(notes, "cites findings that do not exist; cite only the numbered findings")
	}

	var gaps []types.KnowledgeGap
	for _, g := range resp.Gaps {
		if strings.TrimSpace(g.Query) == "" {
			continue
		}
		gaps = append(gaps, newGap(spec.ID, gapKind(g.Kind), g.Description, g.Query))
	}

	w.deps.Logger.Info("chapter reviewed",
		logging.String(logging.FieldRunID, in.RunID),
		logging.String(logging.FieldChapterID, spec.ID),
		logging.Int("score", score),
		logging.Int("issues", len(notes)))
	return Result{
		Patch: state.Patch{
			Chapter: &state.ChapterUpdate{
				ID:           spec.ID,
				Status:       types.StatusReviewed,
				Score:        &score,
				ReviewNotes:  notes,
				ReviewedHash: hash,
			},
			AddGaps: gaps,
		},
		Signal: Signal{Score: score, Scored: true, GapDetected: len(gaps) > 0, Gaps: gaps},
	}, nil
}
