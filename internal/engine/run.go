// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/internal/worker"
	"github.com/pdiddy/article-engine/pkg/types"
)

var errNoFinal = errors.New("assemble produced no document")

// run is the state of one Execute call.
type run struct {
	e       *Engine
	id      string
	req     types.DocumentRequest
	profile types.LengthProfile
	doc     *state.Document
	sem     *semaphore.Weighted
	logger  *slog.Logger
	started time.Time

	mu      sync.Mutex
	seq     uint64
	percent int
	out     chan<- types.ProgressEvent
}

func (e *Engine) newRun(id string, req types.DocumentRequest, out chan<- types.ProgressEvent) *run {
	return &run{
		e:       e,
		id:      id,
		req:     req.Normalize(),
		sem:     semaphore.NewWeighted(int64(e.cfg.Concurrency)),
		logger:  e.logger.With(logging.String(logging.FieldRunID, id)),
		started: e.now(),
		out:     out,
	}
}

// emit numbers evt, stamps the completion estimate and sends it. Sends
// block until the consumer reads.
func (r *run) emit(evt types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	evt.Seq = r.seq
	evt.RunID = r.id
	r.percent = max(r.percent, percentOf(evt.Stage))
	if evt.Kind == types.EventRunCompleted {
		r.percent = 100
	}
	evt.Percent = r.percent
	if evt.Timestamp.IsZero() {
		evt.Timestamp = r.e.now().UTC()
	}
	r.out <- evt
}

func (r *run) execute(ctx context.Context) error {
	r.emit(types.ProgressEvent{Kind: types.EventRunStarted, Message: r.req.Topic})
	r.logger.Info("run started",
		logging.String("topic", r.req.Topic),
		logging.String("article_type", string(r.req.ArticleType)),
		logging.String("length", string(r.req.Length)))

	if err := r.req.Validate(); err != nil {
		return &failure.Fatal{Stage: "request", Err: err}
	}
	profile, err := r.e.cfg.Profile(r.req.Length)
	if err != nil {
		return &failure.Fatal{Stage: "request", Err: err}
	}
	limits, err := state.LimitsFor(r.e.cfg, r.req.Length)
	if err != nil {
		return &failure.Fatal{Stage: "request", Err: err}
	}
	r.profile = profile
	r.doc = state.New(r.req, limits)

	round, ok, err := r.doc.BeginSearchRound(ctx)
	if err != nil {
		return err
	}
	if ok {
		r.searchRound(round, "")
	}
	if _, err := r.invoke(ctx, StageResearch, "", round); err != nil {
		return err
	}
	if _, err := r.invoke(ctx, StageOutline, "", 0); err != nil {
		return err
	}
	if err := r.chapters(ctx); err != nil {
		return err
	}
	if err := r.dropGaps(ctx, StageAssemble, "", "left unresolved"); err != nil {
		return err
	}
	res, err := r.invoke(ctx, StageAssemble, "", 0)
	if err != nil {
		return err
	}
	if res.Signal.CoverSkipped != "" {
		r.emit(types.ProgressEvent{
			Kind:  types.EventCoverSkipped,
			Stage: StageAssemble.String(),
			Error: res.Signal.CoverSkipped,
		})
	}
	return nil
}

// finish emits the one terminal event of the run.
func (r *run) finish(ctx context.Context, err error) {
	if err == nil {
		final, ok := r.doc.Final()
		if ok {
			r.e.metrics.RunFinished(string(types.RunSucceeded))
			r.logger.Info("run completed",
				logging.Int("chapters", len(final.Chapters)),
				logging.Int("degraded", len(final.Degraded)),
				logging.Int("search_rounds", final.SearchRounds),
				logging.Duration("run_duration", r.e.now().Sub(r.started)))
			r.emit(types.ProgressEvent{Kind: types.EventRunCompleted, Document: final})
			return
		}
		err = &failure.Fatal{Stage: StageAssemble.String(), Err: errNoFinal}
	}
	if r.doc != nil {
		r.doc.Seal()
	}
	if ctx.Err() != nil {
		r.e.metrics.RunFinished(string(types.RunCancelled))
		r.logger.Info("run cancelled", logging.Duration("run_duration", r.e.now().Sub(r.started)))
		r.emit(types.ProgressEvent{Kind: types.EventRunCancelled, Error: ctx.Err().Error()})
		return
	}
	r.e.metrics.RunFinished(string(types.RunFailed))
	r.logger.Error("run failed",
		logging.String(logging.FieldEventType, "run_failure"),
		logging.Error(err))
	r.emit(types.ProgressEvent{Kind: types.EventRunFailed, Error: err.Error()})
}

// chapters processes the outline in waves. Chapters inserted by depth
// expansion join the next wave.
func (r *run) chapters(ctx context.Context) error {
	done := make(map[string]bool)
	for {
		outline, ok := r.doc.Outline()
		if !ok {
			return &failure.Fatal{Stage: StageOutline.String(), Err: errors.New("no outline")}
		}
		var wave []string
		for _, id := range outline.ChapterIDs() {
			if !done[id] {
				done[id] = true
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range wave {
			id := id
			g.Go(func() error { return r.chapter(gctx, id) })
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// chapter runs one chapter from draft to a terminal status while holding
// its execution token.
func (r *run) chapter(ctx context.Context, id string) error {
	release, err := r.doc.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	prev, next := StageOutline, StageDraft
	origin := StageDraft
	round, expansions := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := transition(prev, next); err != nil {
			return &failure.Fatal{Stage: next.String(), Err: err}
		}
		if next == StageAssemble {
			return nil
		}
		stage := next
		res, err := r.invoke(ctx, stage, id, round)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return r.degrade(ctx, id, stage, err)
		}
		prev, round = stage, 0

		switch stage {
		case StageDraft:
			expansions = 0
			next = StageCodeEnrich
			if r.needsExpansion(id) {
				next = StageDepthExpand
			}
		case StageDepthExpand:
			expansions++
			r.inserted(id, res.Signal.Inserted)
			next = StageCodeEnrich
			if res.Signal.GapDetected {
				n, ok, err := r.grantRound(ctx, StageDepthExpand, id)
				if err != nil {
					return err
				}
				if ok {
					next, origin, round = StageSearchCoordinate, StageDepthExpand, n
					continue
				}
			}
			if !res.Signal.DepthSufficient && expansions <= r.e.cfg.MaxExpansionPasses && r.needsExpansion(id) {
				next = StageDepthExpand
			}
		case StageSearchCoordinate:
			next = origin
			if origin == StageDepthExpand && (expansions > r.e.cfg.MaxExpansionPasses || !r.needsExpansion(id)) {
				next = StageCodeEnrich
			}
		case StageCodeEnrich:
			next = StageIllustrate
		case StageIllustrate:
			next = StageReview
		case StageReview:
			next, round, err = r.decide(ctx, id)
			if err != nil {
				return err
			}
			origin = StageDraft
		}
	}
}

func (r *run) needsExpansion(id string) bool {
	spec, ok := r.doc.ChapterSpec(id)
	if !ok {
		return false
	}
	ch, _ := r.doc.Chapter(id)
	return worker.NeedsExpansion(r.profile, r.doc.Limits(), spec, ch)
}

// decide applies the review verdict and returns the next stage. A search
// round is returned with StageSearchCoordinate.
func (r *run) decide(ctx context.Context, id string) (Stage, int, error) {
	ch, _ := r.doc.Chapter(id)
	if ch.Status.Terminal() {
		return StageAssemble, 0, nil
	}
	limits := r.doc.Limits()
	switch {
	case ch.Score >= limits.ScoreThreshold:
		if err := r.apply(ctx, StageReview, &state.ChapterUpdate{ID: id, Status: types.StatusAccepted}); err != nil {
			return StageReview, 0, err
		}
		r.emit(types.ProgressEvent{
			Kind:      types.EventChapterAccepted,
			Stage:     StageReview.String(),
			ChapterID: id,
			Message:   fmt.Sprintf("score %d", ch.Score),
		})
		return StageAssemble, 0, nil

	case ch.Revisions+1 >= limits.MaxRevisions:
		reason := fmt.Sprintf("score %d below %d after %d reviews", ch.Score, limits.ScoreThreshold, ch.Revisions+1)
		err := r.apply(ctx, StageReview, &state.ChapterUpdate{
			ID:             id,
			Status:         types.StatusForced,
			FailedReview:   true,
			DegradedReason: reason,
		})
		if err != nil {
			return StageReview, 0, err
		}
		r.degraded(id, StageReview, reason)
		return StageAssemble, 0, nil
	}

	err := r.apply(ctx, StageReview, &state.ChapterUpdate{ID: id, Status: types.StatusRejected, FailedReview: true})
	if err != nil {
		return StageReview, 0, err
	}
	r.logger.Info("chapter rejected",
		logging.String(logging.FieldChapterID, id),
		logging.Int("score", ch.Score),
		logging.Int("revision", ch.Revisions+1))
	if len(r.doc.Gaps(id)) > 0 {
		n, ok, err := r.grantRound(ctx, StageReview, id)
		if err != nil {
			return StageReview, 0, err
		}
		if ok {
			return StageSearchCoordinate, n, nil
		}
	}
	return StageDraft, 0, nil
}

// degrade forces a chapter whose stage exhausted its retries.
func (r *run) degrade(ctx context.Context, id string, stage Stage, cause error) error {
	reason := fmt.Sprintf("%s failed: %v", stage, cause)
	if err := r.apply(ctx, stage, &state.ChapterUpdate{ID: id, Status: types.StatusForced, DegradedReason: reason}); err != nil {
		return err
	}
	r.degraded(id, stage, reason)
	return nil
}

func (r *run) degraded(id string, stage Stage, reason string) {
	r.e.metrics.ChapterDegraded()
	logging.WarnWithContext(r.logger, "chapter degraded", "chapter_degraded",
		logging.String(logging.FieldStage, stage.String()),
		logging.String(logging.FieldChapterID, id),
		logging.String("reason", reason))
	r.emit(types.ProgressEvent{
		Kind:      types.EventChapterDegraded,
		Stage:     stage.String(),
		ChapterID: id,
		Error:     reason,
	})
}

// apply commits an engine-owned chapter update.
func (r *run) apply(ctx context.Context, stage Stage, upd *state.ChapterUpdate) error {
	err := r.doc.Apply(ctx, state.Patch{Chapter: upd})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &failure.Fatal{Stage: stage.String(), Err: err}
}

// grantRound takes one search round for a chapter. When the budget is
// spent the gaps visible to the chapter are dropped instead.
func (r *run) grantRound(ctx context.Context, stage Stage, id string) (int, bool, error) {
	n, ok, err := r.doc.BeginSearchRound(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		return 0, false, &failure.Fatal{Stage: stage.String(), Err: err}
	}
	if !ok {
		why := fmt.Sprintf("search budget of %d rounds spent", r.doc.Limits().MaxSearchRounds)
		return 0, false, r.dropGaps(ctx, stage, id, why)
	}
	r.searchRound(n, id)
	return n, true, nil
}

// dropGaps closes the open gaps of chapterID plus the run-level ones; an
// empty chapterID closes every gap. One gaps.dropped event reports them.
func (r *run) dropGaps(ctx context.Context, stage Stage, chapterID, why string) error {
	gaps := r.doc.Gaps(chapterID)
	if len(gaps) == 0 {
		return nil
	}
	ids := make([]string, len(gaps))
	for i, g := range gaps {
		ids[i] = g.ID
	}
	if err := r.doc.Apply(ctx, state.Patch{DropGaps: ids}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &failure.Fatal{Stage: stage.String(), Err: err}
	}
	r.logger.Info("gaps dropped",
		logging.String(logging.FieldChapterID, chapterID),
		logging.Int("count", len(ids)),
		logging.String("reason", why))
	r.emit(types.ProgressEvent{
		Kind:      types.EventGapsDropped,
		ChapterID: chapterID,
		Message:   fmt.Sprintf("%d gaps dropped: %s", len(ids), why),
	})
	return nil
}

func (r *run) searchRound(n int, chapterID string) {
	r.e.metrics.SearchRound()
	r.emit(types.ProgressEvent{
		Kind:      types.EventSearchRound,
		ChapterID: chapterID,
		Message:   fmt.Sprintf("round %d of %d", n, r.doc.Limits().MaxSearchRounds),
	})
}

func (r *run) inserted(after string, ids []string) {
	for _, id := range ids {
		r.logger.Info("chapter inserted",
			logging.String(logging.FieldChapterID, id),
			logging.String("after", after))
		r.emit(types.ProgressEvent{
			Kind:      types.EventChapterInserted,
			Stage:     StageDepthExpand.String(),
			ChapterID: id,
			Message:   "split from " + after,
		})
	}
}

// invoke runs one stage with retries and commits its patch. Only Transient
// errors are retried. An error that survives is Degraded for chapter
// stages and Fatal otherwise; a cancelled run returns ctx.Err().
func (r *run) invoke(ctx context.Context, stage Stage, chapterID string, round int) (worker.Result, error) {
	if stage.chapterStage() {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return worker.Result{}, err
		}
		defer r.sem.Release(1)
	}

	name := stage.String()
	logger := r.logger.With(logging.String(logging.FieldStage, name))
	if chapterID != "" {
		logger = logger.With(logging.String(logging.FieldChapterID, chapterID))
	}
	w := r.e.workers[stage]
	in := worker.Input{
		RunID:     r.id,
		Config:    r.e.cfg,
		Profile:   r.profile,
		ChapterID: chapterID,
		Round:     round,
	}

	stageStart := time.Now()
	r.emit(types.ProgressEvent{Kind: types.EventStageStarted, Stage: name, ChapterID: chapterID})
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	var (
		res     worker.Result
		attempt int
	)
	op := func() error {
		attempt++
		out, err := w.Apply(ctx, r.doc, in)
		if err != nil {
			err = failure.Classify(name, err)
			if failure.IsTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := r.doc.Apply(ctx, out.Patch); err != nil {
			return backoff.Permanent(err)
		}
		res = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.e.metrics.StageRetried(name)
		logging.WarnWithContext(logger, "stage retrying", "stage_retry",
			logging.Int(logging.FieldAttempt, attempt+1),
			logging.Duration("backoff", wait),
			logging.Error(err))
		r.emit(types.ProgressEvent{
			Kind:      types.EventStageRetrying,
			Stage:     name,
			ChapterID: chapterID,
			Attempt:   attempt + 1,
			Message:   fmt.Sprintf("retrying in %s", wait),
			Error:     err.Error(),
		})
	}
	err := backoff.RetryNotify(op, r.e.newBackOff(ctx), notify)
	r.e.metrics.ObserveStage(name, time.Since(stageStart))
	if err != nil {
		if ctx.Err() != nil {
			return worker.Result{}, ctx.Err()
		}
		err = failure.Exhausted(name, chapterID, err)
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
		return worker.Result{}, err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)))
	r.emit(types.ProgressEvent{Kind: types.EventStageCompleted, Stage: name, ChapterID: chapterID})
	return res, nil
}
