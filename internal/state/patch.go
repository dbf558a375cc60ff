// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/article-engine/pkg/types"
)

// Patch is the set of changes one stage invocation wants to make.
type Patch struct {
	Outline     *types.Outline
	Findings    []types.Finding
	AddGaps     []types.KnowledgeGap
	ResolveGaps []string

	// DropGaps closes gaps that will not be searched. Later reports of the
	// same gap are ignored.
	DropGaps       []string
	Chapter        *ChapterUpdate
	InsertChapters []Insertion
	Illustrations  []types.Illustration
	Code           []types.CodeSnippet
	Final          *types.FinalDocument
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Outline == nil && len(p.Findings) == 0 && len(p.AddGaps) == 0 &&
		len(p.ResolveGaps) == 0 && len(p.DropGaps) == 0 && p.Chapter == nil && len(p.InsertChapters) == 0 &&
		len(p.Illustrations) == 0 && len(p.Code) == 0 && p.Final == nil
}

// ChapterUpdate changes one chapter record. Zero fields are left alone.
type ChapterUpdate struct {
	ID     string
	Status types.ChapterStatus
	Draft  *string
	Score  *int

	ReviewNotes  []string
	ReviewedHash string

	// FailedReview increments the revision counter.
	FailedReview bool

	// ExpansionPass increments the expansion counter of the current draft.
	ExpansionPass bool

	DegradedReason string
}

// Insertion adds a chapter to the outline after an existing one.
type Insertion struct {
	After string
	Spec  types.ChapterSpec
}

var transitions = map[types.ChapterStatus][]types.ChapterStatus{
	types.StatusPending:  {types.StatusDrafted},
	types.StatusDrafted:  {types.StatusDrafted, types.StatusExpanded, types.StatusReviewed},
	types.StatusExpanded: {types.StatusDrafted, types.StatusExpanded, types.StatusReviewed},
	types.StatusReviewed: {types.StatusAccepted, types.StatusRejected},
	types.StatusRejected: {types.StatusDrafted},
}

func allowed(from, to types.ChapterStatus) bool {
	if to == types.StatusForced {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply validates p and commits it atomically. It fails with ErrSealed
// after Seal, with ErrDiscarded once ctx has ended, and with ErrInvariant
// when any part of the patch is invalid.
func (d *Document) Apply(ctx context.Context, p Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writableLocked(ctx); err != nil {
		return err
	}
	if p.Empty() {
		return nil
	}
	if err := d.validateLocked(p); err != nil {
		return err
	}
	d.commitLocked(p)
	d.version++
	return nil
}

func (d *Document) validateLocked(p Patch) error {
	if p.Outline != nil {
		if d.outline != nil {
			return fmt.Errorf("%w: outline already set", ErrInvariant)
		}
		n := len(p.Outline.Chapters)
		if n == 0 || n > d.limits.MaxChapters {
			return fmt.Errorf("%w: outline has %d chapters, limit %d", ErrInvariant, n, d.limits.MaxChapters)
		}
		seen := make(map[string]bool, n)
		for _, c := range p.Outline.Chapters {
			if strings.TrimSpace(c.ID) == "" || seen[c.ID] {
				return fmt.Errorf("%w: empty or duplicate chapter id %q", ErrInvariant, c.ID)
			}
			seen[c.ID] = true
		}
	}

	if len(p.InsertChapters) > 0 {
		if d.outline == nil {
			return fmt.Errorf("%w: insertion before outline", ErrInvariant)
		}
		if len(d.outline.Chapters)+len(p.InsertChapters) > d.limits.MaxChapters {
			return fmt.Errorf("%w: insertion exceeds %d chapters", ErrInvariant, d.limits.MaxChapters)
		}
		added := make(map[string]bool)
		for _, ins := range p.InsertChapters {
			if _, ok := d.chapters[ins.After]; !ok && !added[ins.After] {
				return fmt.Errorf("%w: insert after unknown chapter %q", ErrInvariant, ins.After)
			}
			id := ins.Spec.ID
			if strings.TrimSpace(id) == "" || d.chapters[id] != nil || added[id] {
				return fmt.Errorf("%w: empty or duplicate chapter id %q", ErrInvariant, id)
			}
			added[id] = true
		}
	}

	if u := p.Chapter; u != nil {
		c, ok := d.chapters[u.ID]
		if !ok {
			return fmt.Errorf("%w: unknown chapter %q", ErrInvariant, u.ID)
		}
		if err := d.validateChapterLocked(c, u); err != nil {
			return err
		}
	}

	for _, ill := range p.Illustrations {
		if _, ok := d.chapters[ill.ChapterID]; !ok {
			return fmt.Errorf("%w: illustration for unknown chapter %q", ErrInvariant, ill.ChapterID)
		}
	}
	for _, code := range p.Code {
		if _, ok := d.chapters[code.ChapterID]; !ok {
			return fmt.Errorf("%w: code for unknown chapter %q", ErrInvariant, code.ChapterID)
		}
	}
	for _, g := range p.AddGaps {
		if g.ChapterID != "" {
			if _, ok := d.chapters[g.ChapterID]; !ok {
				return fmt.Errorf("%w: gap for unknown chapter %q", ErrInvariant, g.ChapterID)
			}
		}
	}
	if p.Final != nil && d.final != nil {
		return fmt.Errorf("%w: document already assembled", ErrInvariant)
	}
	return nil
}

func (d *Document) validateChapterLocked(c *types.Chapter, u *ChapterUpdate) error {
	from := c.Status
	to := u.Status
	if to != "" && to != from && !allowed(from, to) {
		return fmt.Errorf("%w: chapter %q cannot move from %s to %s", ErrInvariant, c.ID, from, to)
	}
	if to == "" && from.Terminal() {
		return fmt.Errorf("%w: chapter %q is %s", ErrInvariant, c.ID, from)
	}
	if to == from && to != "" && !allowed(from, to) {
		return fmt.Errorf("%w: chapter %q cannot repeat %s", ErrInvariant, c.ID, from)
	}
	if to == types.StatusAccepted {
		score, scored := c.Score, c.Scored
		if u.Score != nil {
			score, scored = *u.Score, true
		}
		if !scored || score < d.limits.ScoreThreshold {
			return fmt.Errorf("%w: chapter %q score %d below threshold %d", ErrInvariant, c.ID, score, d.limits.ScoreThreshold)
		}
	}
	if u.Score != nil && (*u.Score < 0 || *u.Score > 100) {
		return fmt.Errorf("%w: score %d out of range", ErrInvariant, *u.Score)
	}
	if u.FailedReview && c.Revisions+1 > d.limits.MaxRevisions {
		return fmt.Errorf("%w: chapter %q exceeds %d revisions", ErrInvariant, c.ID, d.limits.MaxRevisions)
	}
	if u.ExpansionPass && c.ExpansionPasses+1 > d.limits.MaxExpansionPasses {
		return fmt.Errorf("%w: chapter %q exceeds %d expansion passes", ErrInvariant, c.ID, d.limits.MaxExpansionPasses)
	}
	return nil
}

func (d *Document) commitLocked(p Patch) {
	if p.Outline != nil {
		o := cloneOutline(*p.Outline)
		d.outline = &o
		for _, spec := range o.Chapters {
			d.addChapterLocked(spec)
		}
	}

	for _, ins := range p.InsertChapters {
		idx := 0
		for i, c := range d.outline.Chapters {
			if c.ID == ins.After {
				idx = i + 1
				break
			}
		}
		chapters := make([]types.ChapterSpec, 0, len(d.outline.Chapters)+1)
		chapters = append(chapters, d.outline.Chapters[:idx]...)
		chapters = append(chapters, ins.Spec)
		chapters = append(chapters, d.outline.Chapters[idx:]...)
		d.outline.Chapters = chapters
		d.addChapterLocked(ins.Spec)
	}

	for _, f := range p.Findings {
		key := findingKey(f)
		if _, dup := d.seenURLs[key]; dup {
			continue
		}
		d.seenURLs[key] = struct{}{}
		d.findings = append(d.findings, f)
	}

	if len(p.ResolveGaps) > 0 || len(p.DropGaps) > 0 {
		remove := make(map[string]bool, len(p.ResolveGaps)+len(p.DropGaps))
		for _, id := range p.ResolveGaps {
			remove[id] = true
		}
		dropped := make(map[string]bool, len(p.DropGaps))
		for _, id := range p.DropGaps {
			remove[id] = true
			dropped[id] = true
		}
		kept := d.gaps[:0]
		for _, g := range d.gaps {
			switch {
			case dropped[g.ID]:
				d.dropped[gapKey(g)] = struct{}{}
			case remove[g.ID]:
			default:
				kept = append(kept, g)
			}
		}
		d.gaps = kept
	}
	for _, g := range p.AddGaps {
		if !d.hasGapLocked(g) {
			d.gaps = append(d.gaps, g)
		}
	}

	if u := p.Chapter; u != nil {
		c := d.chapters[u.ID]
		if u.Draft != nil {
			c.Draft = *u.Draft
		}
		if u.Status != "" {
			if u.Status == types.StatusDrafted {
				c.ExpansionPasses = 0
			}
			c.Status = u.Status
		}
		if u.Score != nil {
			c.Score = *u.Score
			c.Scored = true
		}
		if u.ReviewNotes != nil {
			c.ReviewNotes = append([]string(nil), u.ReviewNotes...)
		}
		if u.ReviewedHash != "" {
			c.ReviewedHash = u.ReviewedHash
		}
		if u.FailedReview {
			c.Revisions++
		}
		if u.ExpansionPass {
			c.ExpansionPasses++
		}
		if u.DegradedReason != "" {
			c.DegradedReason = u.DegradedReason
		}
	}

	for _, ill := range p.Illustrations {
		a := d.artifactsLocked(ill.ChapterID)
		a.Illustrations = upsert(a.Illustrations, ill, func(x types.Illustration) string { return x.ID })
	}
	for _, code := range p.Code {
		a := d.artifactsLocked(code.ChapterID)
		a.Code = upsert(a.Code, code, func(x types.CodeSnippet) string { return x.ID })
	}

	if p.Final != nil {
		final := *p.Final
		d.final = &final
	}
}

func (d *Document) addChapterLocked(spec types.ChapterSpec) {
	d.chapters[spec.ID] = &types.Chapter{ID: spec.ID, Title: spec.Title, Status: types.StatusPending}
	tok := make(chan struct{}, 1)
	tok <- struct{}{}
	d.tokens[spec.ID] = tok
}

func (d *Document) artifactsLocked(chapterID string) *types.Artifacts {
	a, ok := d.artifacts[chapterID]
	if !ok {
		a = &types.Artifacts{}
		d.artifacts[chapterID] = a
	}
	return a
}

func (d *Document) hasGapLocked(g types.KnowledgeGap) bool {
	if _, ok := d.dropped[gapKey(g)]; ok {
		return true
	}
	q := normalizeQuery(g.Query)
	for _, existing := range d.gaps {
		if existing.ID == g.ID {
			return true
		}
		if existing.ChapterID == g.ChapterID && normalizeQuery(existing.Query) == q {
			return true
		}
	}
	return false
}

func gapKey(g types.KnowledgeGap) string {
	return g.ChapterID + "\x00" + normalizeQuery(g.Query)
}

func findingKey(f types.Finding) string {
	if u := strings.TrimSpace(f.URL); u != "" {
		return "url:" + strings.TrimSuffix(strings.ToLower(u), "/")
	}
	return "id:" + f.ID
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func upsert[T any](items []T, item T, key func(T) string) []T {
	k := key(item)
	for i := range items {
		if key(items[i]) == k {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}
