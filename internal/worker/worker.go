// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker implements the nine pipeline stages. A worker reads the
// shared document through state.View, calls its capability ports, and
// returns a Patch plus the routing Signal the engine acts on. Workers never
// mutate the document and never retry; every error leaving a worker is
// classified with failure.Classify.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Stage names. They double as the Prompt.Stage of the calls each worker makes.
const (
	StageResearch         = "research"
	StageOutline          = "outline"
	StageDraft            = "draft"
	StageDepthExpand      = "depth-expand"
	StageSearchCoordinate = "search-coordinate"
	StageCodeEnrich       = "code-enrich"
	StageIllustrate       = "illustrate"
	StageReview           = "review"
	StageAssemble         = "assemble"
)

// Prompt stages that are not worker names.
const (
	promptDepthCheck = "depth-check"
	promptCode       = "code"
	promptDiagram    = "diagram"
	promptCover      = "cover"
)

// Input is the per-invocation context a worker receives.
type Input struct {
	RunID   string
	Config  types.PipelineConfig
	Profile types.LengthProfile

	// ChapterID is set for chapter stages.
	ChapterID string

	// Round is the search round granted to Research and SearchCoordinate.
	Round int
}

// Signal carries the routing facts the engine needs after a stage.
type Signal struct {
	GapDetected     bool
	Gaps            []types.KnowledgeGap
	Score           int
	Scored          bool
	DepthSufficient bool
	NewFindings     int

	// Inserted lists chapter ids added to the outline.
	Inserted []string

	// CoverSkipped says why Assemble produced no cover image.
	CoverSkipped string
}

// Result is what one stage invocation produced.
type Result struct {
	Patch  state.Patch
	Signal Signal
}

// Worker is one pipeline stage.
type Worker interface {
	Name() string
	Apply(ctx context.Context, view state.View, in Input) (Result, error)
}

// KnowledgeSource returns supplementary findings for a query.
// *knowledge.Store implements it.
type KnowledgeSource interface {
	Lookup(ctx context.Context, refs []types.KnowledgeRef, query string, max int) ([]types.Finding, error)
}

// Deps are the capabilities shared by all workers.
type Deps struct {
	Text   ports.TextGenerator
	Search ports.WebSearcher

	// Images may be nil; illustrations then fall back to diagrams.
	Images ports.ImageGenerator

	// Knowledge may be nil.
	Knowledge KnowledgeSource

	// SearchResults is the number of hits kept per query (default 5).
	SearchResults int

	Logger *slog.Logger
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.SearchResults <= 0 {
		d.SearchResults = 5
	}
	return d
}

// Set holds one worker per stage.
type Set struct {
	Research         Worker
	Outline          Worker
	Draft            Worker
	DepthExpand      Worker
	SearchCoordinate Worker
	CodeEnrich       Worker
	Illustrate       Worker
	Review           Worker
	Assemble         Worker
}

// NewSet builds the standard workers over deps.
func NewSet(deps Deps) Set {
	deps = deps.withDefaults()
	return Set{
		Research:         &Research{deps: deps},
		Outline:          &Outline{deps: deps},
		Draft:            &Draft{deps: deps},
		DepthExpand:      &DepthExpand{deps: deps},
		SearchCoordinate: &SearchCoordinate{deps: deps},
		CodeEnrich:       &CodeEnrich{deps: deps},
		Illustrate:       &Illustrate{deps: deps},
		Review:           &Review{deps: deps},
		Assemble:         &Assemble{deps: deps},
	}
}

// All returns the workers in pipeline order.
func (s Set) All() []Worker {
	return []Worker{
		s.Research, s.Outline, s.Draft, s.DepthExpand, s.SearchCoordinate,
		s.CodeEnrich, s.Illustrate, s.Review, s.Assemble,
	}
}

var errNoOutline = errors.New("no outline")

func chapterOf(view state.View, stage, id string) (types.ChapterSpec, types.Chapter, error) {
	spec, ok := view.ChapterSpec(id)
	if !ok {
		return types.ChapterSpec{}, types.Chapter{}, fmt.Errorf("%s: unknown chapter %q", stage, id)
	}
	ch, _ := view.Chapter(id)
	return spec, ch, nil
}
