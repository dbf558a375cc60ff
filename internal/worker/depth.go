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

// DepthExpand checks a chapter for vague points and expands it. Vague points
// that need evidence become gaps; a chapter covering two topics may be split
// by inserting a new chapter after it.
type DepthExpand struct {
	deps Deps
}

type vaguePoint struct {
	Concept  string `json:"concept"`
	Question string `json:"question"`
	Query    string `json:"query"`
	Kind     string `json:"kind"`
}

type depthResponse struct {
	Sufficient  bool         `json:"sufficient"`
	DepthScore  int          `json:"depth_score"`
	VaguePoints []vaguePoint `json:"vague_points"`
	Split       struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	} `json:"split"`
}

func (w *DepthExpand) Name() string { return StageDepthExpand }

// NeedsExpansion reports whether the engine should route a drafted chapter
// through DepthExpand. Shallow profiles never expand.
func NeedsExpansion(profile types.LengthProfile, limits state.Limits, spec types.ChapterSpec, ch types.Chapter) bool {
	if profile.Strictness == types.DepthShallow || profile.Strictness == "" {
		return false
	}
	if ch.ExpansionPasses >= limits.MaxExpansionPasses {
		return false
	}
	if profile.Strictness == types.DepthDeep && ch.ExpansionPasses == 0 {
		return true
	}
	return render.WordCount(ch.Draft) < targetWords(spec, profile)
}

func (w *DepthExpand) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	spec, ch, err := chapterOf(view, StageDepthExpand, in.ChapterID)
	if err != nil {
		return Result{}, err
	}
	limits := view.Limits()
	if ch.ExpansionPasses >= limits.MaxExpansionPasses {
		return Result{Signal: Signal{DepthSufficient: true}}, nil
	}
	target := targetWords(spec, in.Profile)
	words := render.WordCount(ch.Draft)

	check, err := w.check(ctx, spec, ch.Draft, target, words, in.Profile.Strictness)
	if err != nil {
		return Result{}, err
	}
	if check.Sufficient && words >= target {
		return Result{Signal: Signal{DepthSufficient: true}}, nil
	}

	var gaps []types.KnowledgeGap
	for _, p := range check.VaguePoints {
		if strings.TrimSpace(p.Query) == "" {
			continue
		}
		question := p.Question
		if question == "" {
			question = p.Concept
		}
		gaps = append(gaps, newGap(spec.ID, gapKind(p.Kind), question, p.Query))
	}

	user, err := execute(expandTmpl, map[string]any{
		"Spec":        spec,
		"TargetWords": target,
		"Points":      check.VaguePoints,
		"Findings":    relevantFindings(view.Findings(), spec.ID, ch.Draft, in.Config.FindingsPerPrompt),
		"Draft":       ch.Draft,
	})
	if err != nil {
		return Result{}, err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: StageDepthExpand, System: systemPrompt, User: user})
	if err != nil {
		return Result{}, failure.Classify(StageDepthExpand, err)
	}
	expanded, inline := parseGaps(text, spec.ID)
	if expanded == "" {
		return Result{}, failure.Classify(StageDepthExpand, ports.Malformed("depth-expand: empty chapter %s", spec.ID))
	}
	gaps = append(gaps, inline...)

	patch := state.Patch{
		Chapter: &state.ChapterUpdate{
			ID:            spec.ID,
			Status:        types.StatusExpanded,
			Draft:         &expanded,
			ExpansionPass: true,
		},
		AddGaps: gaps,
	}
	signal := Signal{
		GapDetected:     len(gaps) > 0,
		Gaps:            gaps,
		DepthSufficient: render.WordCount(expanded) >= target,
	}
	if ins, ok := splitInsertion(view, spec, check, limits); ok {
		patch.InsertChapters = []state.Insertion{ins}
		signal.Inserted = []string{ins.Spec.ID}
	}

	w.deps.Logger.Debug("chapter expanded",
		logging.String(logging.FieldRunID, in.RunID),
		logging.String(logging.FieldChapterID, spec.ID),
		logging.Int("words_before", words),
		logging.Int("words_after", render.WordCount(expanded)),
		logging.Int("gaps", len(gaps)))
	return Result{Patch: patch, Signal: signal}, nil
}

func (w *DepthExpand) check(ctx context.Context, spec types.ChapterSpec, draft string, target, words int, strictness types.DepthStrictness) (depthResponse, error) {
	user, err := execute(depthCheckTmpl, map[string]any{
		"Spec":        spec,
		"TargetWords": target,
		"Words":       words,
		"Draft":       draft,
		"Strictness":  strictness,
	})
	if err != nil {
		return depthResponse{}, err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: promptDepthCheck, System: systemPrompt, User: user, JSON: true})
	if err != nil {
		return depthResponse{}, failure.Classify(StageDepthExpand, err)
	}
	var resp depthResponse
	if err := decodeJSON(promptDepthCheck, text, &resp); err != nil {
		return depthResponse{}, failure.Classify(StageDepthExpand, err)
	}
	return resp, nil
}

// splitInsertion turns a split suggestion into an outline insertion when
// the chapter has not been split before and the outline has room.
func splitInsertion(view state.View, spec types.ChapterSpec, check depthResponse, limits state.Limits) (state.Insertion, bool) {
	title := strings.TrimSpace(check.Split.Title)
	if title == "" {
		return state.Insertion{}, false
	}
	outline, ok := view.Outline()
	if !ok || len(outline.Chapters) >= limits.MaxChapters {
		return state.Insertion{}, false
	}
	id := spec.ID + "-1"
	if _, exists := view.ChapterSpec(id); exists {
		return state.Insertion{}, false
	}
	return state.Insertion{
		After: spec.ID,
		Spec: types.ChapterSpec{
			ID:          id,
			Title:       title,
			Summary:     strings.TrimSpace(check.Split.Summary),
			TargetDepth: spec.TargetDepth,
			CodeBlocks:  spec.CodeBlocks,
		},
	}, true
}
