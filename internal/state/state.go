// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state holds the shared document of one run. Workers never mutate
// a Document; they read it through View and return a Patch. Apply validates
// the whole patch against the document invariants before committing any of
// it, so a rejected patch leaves the document unchanged.
package state

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pdiddy/article-engine/pkg/types"
)

var (
	// ErrSealed is returned by Apply after Seal.
	ErrSealed = errors.New("document sealed")

	// ErrDiscarded is returned by Apply when the run context ended first.
	ErrDiscarded = errors.New("patch discarded")

	// ErrInvariant marks a patch that would break a document invariant.
	ErrInvariant = errors.New("invariant violation")
)

// Limits are the bounds a document enforces on its counters.
type Limits struct {
	MaxRevisions       int
	MaxExpansionPasses int
	MaxSearchRounds    int
	MinChapters        int
	MaxChapters        int
	ScoreThreshold     int
}

// LimitsFor derives the limits of a request from the pipeline config.
func LimitsFor(cfg types.PipelineConfig, length types.LengthClass) (Limits, error) {
	p, err := cfg.Profile(length)
	if err != nil {
		return Limits{}, err
	}
	return Limits{
		MaxRevisions:       cfg.MaxRevisions,
		MaxExpansionPasses: cfg.MaxExpansionPasses,
		MaxSearchRounds:    p.SearchRounds,
		MinChapters:        p.MinChapters,
		MaxChapters:        p.MaxChapters,
		ScoreThreshold:     p.ScoreThreshold,
	}, nil
}

// View is the read-only surface workers see.
type View interface {
	Request() types.DocumentRequest
	Limits() Limits
	Outline() (types.Outline, bool)
	ChapterSpec(id string) (types.ChapterSpec, bool)
	Chapter(id string) (types.Chapter, bool)
	Chapters() []types.Chapter
	Findings() []types.Finding
	Gaps(chapterID string) []types.KnowledgeGap
	Artifacts(chapterID string) types.Artifacts
	SearchRounds() int
}

// Document is the shared state of one run. All methods are safe for
// concurrent use.
type Document struct {
	mu sync.RWMutex

	req    types.DocumentRequest
	limits Limits

	outline   *types.Outline
	chapters  map[string]*types.Chapter
	findings  []types.Finding
	seenURLs  map[string]struct{}
	gaps      []types.KnowledgeGap
	dropped   map[string]struct{}
	artifacts map[string]*types.Artifacts
	rounds    int
	final     *types.FinalDocument

	tokens  map[string]chan struct{}
	sealed  bool
	version uint64
}

// New returns an empty document for req.
func New(req types.DocumentRequest, limits Limits) *Document {
	return &Document{
		req:       req,
		limits:    limits,
		chapters:  make(map[string]*types.Chapter),
		seenURLs:  make(map[string]struct{}),
		dropped:   make(map[string]struct{}),
		artifacts: make(map[string]*types.Artifacts),
		tokens:    make(map[string]chan struct{}),
	}
}

func (d *Document) Request() types.DocumentRequest { return d.req }

func (d *Document) Limits() Limits { return d.limits }

func (d *Document) Outline() (types.Outline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.outline == nil {
		return types.Outline{}, false
	}
	return cloneOutline(*d.outline), true
}

func (d *Document) ChapterSpec(id string) (types.ChapterSpec, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.outline == nil {
		return types.ChapterSpec{}, false
	}
	for _, c := range d.outline.Chapters {
		if c.ID == id {
			return c, true
		}
	}
	return types.ChapterSpec{}, false
}

func (d *Document) Chapter(id string) (types.Chapter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.chapters[id]
	if !ok {
		return types.Chapter{}, false
	}
	return cloneChapter(*c), true
}

// Chapters returns the chapter records in outline order.
func (d *Document) Chapters() []types.Chapter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.outline == nil {
		return nil
	}
	out := make([]types.Chapter, 0, len(d.outline.Chapters))
	for _, spec := range d.outline.Chapters {
		out = append(out, cloneChapter(*d.chapters[spec.ID]))
	}
	return out
}

func (d *Document) Findings() []types.Finding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.findings)
}

// Gaps returns the open gaps of a chapter plus run-level gaps. An empty
// chapterID returns every open gap.
func (d *Document) Gaps(chapterID string) []types.KnowledgeGap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []types.KnowledgeGap
	for _, g := range d.gaps {
		if chapterID == "" || g.ChapterID == "" || g.ChapterID == chapterID {
			out = append(out, g)
		}
	}
	return out
}

func (d *Document) Artifacts(chapterID string) types.Artifacts {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.artifacts[chapterID]
	if !ok {
		return types.Artifacts{}
	}
	return types.Artifacts{
		Illustrations: slices.Clone(a.Illustrations),
		Code:          slices.Clone(a.Code),
	}
}

func (d *Document) SearchRounds() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rounds
}

// Final returns the assembled document once Assemble has run.
func (d *Document) Final() (*types.FinalDocument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.final, d.final != nil
}

// Version increases with every committed patch.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Seal stops all further mutation.
func (d *Document) Seal() {
	d.mu.Lock()
	d.sealed = true
	d.mu.Unlock()
}

// BeginSearchRound consumes one round of the run's search budget. It
// reports false, without consuming anything, once the budget is spent.
func (d *Document) BeginSearchRound(ctx context.Context) (int, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writableLocked(ctx); err != nil {
		return d.rounds, false, err
	}
	if d.rounds >= d.limits.MaxSearchRounds {
		return d.rounds, false, nil
	}
	d.rounds++
	d.version++
	return d.rounds, true, nil
}

// Acquire takes the execution token of a chapter. Only the holder may
// submit patches that touch that chapter.
func (d *Document) Acquire(ctx context.Context, chapterID string) (func(), error) {
	d.mu.RLock()
	tok, ok := d.tokens[chapterID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown chapter %q", ErrInvariant, chapterID)
	}
	select {
	case <-tok:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { tok <- struct{}{} }) }, nil
}

func (d *Document) writableLocked(ctx context.Context) error {
	if d.sealed {
		return ErrSealed
	}
	if ctx != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrDiscarded, ctx.Err())
	}
	return nil
}

// Validate checks every invariant of the current document.
func (d *Document) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.outline == nil {
		if len(d.chapters) > 0 {
			return fmt.Errorf("%w: chapters without outline", ErrInvariant)
		}
		return nil
	}
	if len(d.outline.Chapters) != len(d.chapters) {
		return fmt.Errorf("%w: %d outline entries, %d chapters", ErrInvariant, len(d.outline.Chapters), len(d.chapters))
	}
	for _, spec := range d.outline.Chapters {
		c, ok := d.chapters[spec.ID]
		if !ok {
			return fmt.Errorf("%w: outline chapter %q has no record", ErrInvariant, spec.ID)
		}
		if c.Revisions > d.limits.MaxRevisions {
			return fmt.Errorf("%w: chapter %q has %d revisions", ErrInvariant, c.ID, c.Revisions)
		}
		if c.Status == types.StatusAccepted && (!c.Scored || c.Score < d.limits.ScoreThreshold) {
			return fmt.Errorf("%w: chapter %q accepted below threshold", ErrInvariant, c.ID)
		}
	}
	if d.rounds > d.limits.MaxSearchRounds {
		return fmt.Errorf("%w: %d search rounds", ErrInvariant, d.rounds)
	}
	return nil
}

// DraftHash fingerprints chapter text for review idempotence.
func DraftHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:6])
}

func cloneOutline(o types.Outline) types.Outline {
	o.Chapters = slices.Clone(o.Chapters)
	o.Conclusion = slices.Clone(o.Conclusion)
	return o
}

func cloneChapter(c types.Chapter) types.Chapter {
	c.ReviewNotes = slices.Clone(c.ReviewNotes)
	return c
}
