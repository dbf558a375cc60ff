// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/search"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Research gathers the initial findings for the topic. It consumes the
// first search round.
type Research struct {
	deps Deps
}

func (w *Research) Name() string { return StageResearch }

func (w *Research) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	req := view.Request()
	out, err := search.Gather(ctx, w.deps.Search, researchQueries(req), w.deps.SearchResults)
	if err != nil {
		return Result{}, failure.Classify(StageResearch, err)
	}
	for _, msg := range out.Errors {
		w.deps.Logger.Warn("research query failed", logging.String(logging.FieldRunID, in.RunID), logging.String("detail", msg))
	}
	findings := toFindings(out.Hits, in.Round, "")

	if w.deps.Knowledge != nil {
		extra, err := w.deps.Knowledge.Lookup(ctx, req.Knowledge, req.Topic, w.deps.SearchResults)
		if err != nil {
			logging.WarnWithContext(w.deps.Logger, "knowledge lookup failed", "knowledge_unavailable",
				logging.String(logging.FieldRunID, in.RunID), logging.Error(err))
		}
		for _, f := range extra {
			f.Round = in.Round
			findings = append(findings, f)
		}
	}

	w.deps.Logger.Info("research gathered findings",
		logging.String(logging.FieldRunID, in.RunID),
		logging.Int("findings", len(findings)),
		logging.Int("duplicates", out.DupsRemoved))
	return Result{
		Patch:  state.Patch{Findings: findings},
		Signal: Signal{NewFindings: len(findings)},
	}, nil
}

// researchQueries returns the topic plus variants shaped by the article
// type and site-scoped queries for professional sources.
func researchQueries(req types.DocumentRequest) []string {
	topic := req.Topic
	queries := []string{topic}
	switch req.ArticleType {
	case types.ArticleTutorial:
		queries = append(queries, topic+" tutorial", topic+" example")
	case types.ArticleProblemSolving:
		queries = append(queries, topic+" common problems", topic+" best practices")
	case types.ArticleComparative:
		queries = append(queries, topic+" comparison", topic+" alternatives")
	}
	return append(queries, search.SiteQueries(topic, topic)...)
}
