// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/internal/knowledge"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/providers/offline"
	"github.com/pdiddy/article-engine/internal/providers/openai"
	"github.com/pdiddy/article-engine/internal/search"
	"github.com/pdiddy/article-engine/internal/worker"
	"github.com/pdiddy/article-engine/pkg/types"
)

// newSearcher builds the web search port from cfg. Offline mode uses the
// canned backend.
func newSearcher(cfg types.Config, logger *slog.Logger) ports.WebSearcher {
	if cfg.AI.Offline {
		return offline.Search{}
	}
	m := &search.Multi{Logger: logging.NewComponentLogger(logger, "search")}
	if web := search.NewWebBackend(cfg.Search); web != nil {
		m.Backends = append(m.Backends, web)
	}
	if cfg.Search.EnableArxiv {
		m.Backends = append(m.Backends, &search.ArxivBackend{
			Client:    httputil.NewClient(cfg.Search.HTTPConfig),
			UserAgent: cfg.Search.UserAgent,
		})
	}
	if cfg.Search.FetchPages {
		m.Enricher = search.NewPageEnricher(cfg.Search, logger)
	}
	return m
}

// newDeps wires the capability ports for a run. The returned close func
// releases the knowledge index when one was opened.
func newDeps(ctx context.Context, cfg types.Config, refs []types.KnowledgeRef, logger *slog.Logger, progress io.Writer) (worker.Deps, func(), error) {
	deps := worker.Deps{
		Search:        newSearcher(cfg, logger),
		SearchResults: cfg.Search.MaxResults,
		Logger:        logging.NewComponentLogger(logger, "worker"),
	}
	closer := func() {}

	if cfg.AI.Offline {
		deps.Text = &offline.Text{}
	} else {
		text, err := openai.NewText(cfg.AI, logger)
		if err != nil {
			return deps, closer, err
		}
		deps.Text = text
		if cfg.Image.Enabled {
			images, err := openai.NewImages(cfg.Image)
			if err != nil {
				return deps, closer, err
			}
			deps.Images = images
		}
	}

	if len(refs) > 0 {
		store, err := knowledge.NewStore(cfg.Knowledge)
		if err != nil {
			return deps, closer, err
		}
		closer = func() { store.Close() }
		summary, err := store.Ingest(ctx, refs, progress)
		if err != nil {
			closer()
			return deps, func() {}, fmt.Errorf("indexing knowledge: %w", err)
		}
		if summary.Failed > 0 {
			logging.WarnWithContext(logger, "knowledge files failed indexing", "knowledge_ingest",
				logging.Int("failed", summary.Failed))
		}
		deps.Knowledge = store
	}
	return deps, closer, nil
}
