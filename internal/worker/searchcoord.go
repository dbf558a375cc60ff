// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"strings"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/search"
	"github.com/pdiddy/article-engine/internal/state"
)

// maxGapQueries bounds the queries of one search round.
const maxGapQueries = 5

// SearchCoordinate runs one search round for the open gaps of a chapter.
// Gaps whose query returned hits are resolved; the rest stay open.
type SearchCoordinate struct {
	deps Deps
}

func (w *SearchCoordinate) Name() string { return StageSearchCoordinate }

func (w *SearchCoordinate) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	gaps := view.Gaps(in.ChapterID)
	if len(gaps) == 0 {
		return Result{}, nil
	}
	if len(gaps) > maxGapQueries {
		gaps = gaps[:maxGapQueries]
	}
	queries := make([]string, 0, len(gaps))
	for _, g := range gaps {
		queries = append(queries, g.Query)
	}

	out, err := search.Gather(ctx, w.deps.Search, queries, w.deps.SearchResults)
	if err != nil {
		return Result{}, failure.Classify(StageSearchCoordinate, err)
	}
	answered := make(map[string]bool)
	for _, h := range out.Hits {
		answered[normalize(h.Query)] = true
	}

	var resolved []string
	for _, g := range gaps {
		if answered[normalize(g.Query)] {
			resolved = append(resolved, g.ID)
		}
	}
	findings := toFindings(out.Hits, in.Round, in.ChapterID)
	remaining := len(view.Gaps(in.ChapterID)) - len(resolved)

	w.deps.Logger.Info("search round completed",
		logging.String(logging.FieldRunID, in.RunID),
		logging.String(logging.FieldChapterID, in.ChapterID),
		logging.Int("round", in.Round),
		logging.Int("queries", len(queries)),
		logging.Int("findings", len(findings)),
		logging.Int("resolved", len(resolved)))
	return Result{
		Patch:  state.Patch{Findings: findings, ResolveGaps: resolved},
		Signal: Signal{GapDetected: remaining > 0, NewFindings: len(findings)},
	}, nil
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
