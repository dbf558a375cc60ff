// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/render"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/pkg/types"
)

const (
	coverContentRunes = 8000
	coverSummaryRunes = 1000
)

// Assemble renders the final document from every chapter, accepted or
// forced, in outline order. With an image generator it first draws a cover
// from a summary of the chapters; a failed cover is skipped.
type Assemble struct {
	deps Deps
}

func (w *Assemble) Name() string { return StageAssemble }

func (w *Assemble) Apply(ctx context.Context, view state.View, in Input) (Result, error) {
	outline, ok := view.Outline()
	if !ok {
		return Result{}, &failure.Fatal{Stage: StageAssemble, Err: errNoOutline}
	}
	artifacts := make(map[string]types.Artifacts, len(outline.Chapters))
	for _, c := range outline.Chapters {
		artifacts[c.ID] = view.Artifacts(c.ID)
	}

	var signal Signal
	cover, err := w.cover(ctx, view, outline)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		signal.CoverSkipped = err.Error()
		logging.WarnWithContext(w.deps.Logger, "cover skipped", "cover_skipped",
			logging.String(logging.FieldRunID, in.RunID),
			logging.Error(err))
	}

	doc, err := render.Assemble(render.Input{
		RunID:        in.RunID,
		Request:      view.Request(),
		Outline:      outline,
		Chapters:     view.Chapters(),
		Findings:     view.Findings(),
		Artifacts:    artifacts,
		SearchRounds: view.SearchRounds(),
		Now:          w.deps.Now(),
		Cover:        cover,
	})
	if err != nil {
		return Result{}, &failure.Fatal{Stage: StageAssemble, Err: err}
	}
	w.deps.Logger.Info("document assembled",
		logging.String(logging.FieldRunID, in.RunID),
		logging.Int("words", doc.WordCount),
		logging.Int("citations", len(doc.Citations)),
		logging.Int("degraded", len(doc.Degraded)),
		logging.Bool("cover", cover != nil))
	return Result{Patch: state.Patch{Final: doc}, Signal: signal}, nil
}

// cover returns nil without an image generator. A failed summary falls
// back to the title and topic; a failed image is an error.
func (w *Assemble) cover(ctx context.Context, view state.View, outline types.Outline) (*types.Illustration, error) {
	if w.deps.Images == nil {
		return nil, nil
	}
	req := view.Request()
	title := outline.Title
	if strings.TrimSpace(title) == "" {
		title = req.Topic
	}

	summary := fmt.Sprintf("Title: %s\nTopic: %s", title, req.Topic)
	if text, err := w.summarize(ctx, title, view.Chapters()); err == nil && text != "" {
		summary = "Title: " + title + "\n\n" + text
	} else if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.deps.Logger.Debug("cover summary failed", logging.Error(err))
	}

	description := "Cover image for the article " + title
	img, err := w.deps.Images.Generate(ctx, truncateRunes(summary, coverSummaryRunes), req.ImageStyle)
	if err != nil {
		return nil, fmt.Errorf("cover image: %w", err)
	}
	return &types.Illustration{
		ID:          "cover",
		Kind:        types.IllustrationImage,
		ImageType:   "cover",
		Description: description,
		Content:     img.URL,
		Data:        img.Data,
		MIME:        img.MIME,
	}, nil
}

func (w *Assemble) summarize(ctx context.Context, title string, chapters []types.Chapter) (string, error) {
	var content strings.Builder
	for _, c := range chapters {
		if strings.TrimSpace(c.Draft) == "" {
			continue
		}
		fmt.Fprintf(&content, "## %s\n\n%s\n\n", c.Title, strings.TrimSpace(c.Draft))
	}
	if content.Len() == 0 {
		return "", nil
	}
	user, err := execute(coverTmpl, map[string]any{
		"Title":   title,
		"Content": truncateRunes(content.String(), coverContentRunes),
	})
	if err != nil {
		return "", err
	}
	text, err := w.deps.Text.Generate(ctx, ports.Prompt{Stage: promptCover, System: systemPrompt, User: user})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
