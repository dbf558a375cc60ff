// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine drives one document request through the pipeline stages.
// It owns routing, retries, the revision and search budgets, chapter
// concurrency, and the terminal outcome of a run. Workers compute; the
// engine decides what runs next and commits their patches.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/metrics"
	"github.com/pdiddy/article-engine/internal/worker"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Engine executes runs. One Engine serves any number of concurrent runs.
type Engine struct {
	cfg     types.PipelineConfig
	workers [stageCount]worker.Worker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	overrides map[Stage]worker.Worker
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Workers inherit it unless deps carry
// their own.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records run and stage metrics. A nil value disables them.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWorker replaces the worker of one stage.
func WithWorker(stage Stage, w worker.Worker) Option {
	return func(e *Engine) {
		if e.overrides == nil {
			e.overrides = make(map[Stage]worker.Worker)
		}
		e.overrides[stage] = w
	}
}

// New builds an engine over deps. Every capability call is bounded by
// cfg.CallTimeout.
func New(cfg types.PipelineConfig, deps worker.Deps, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = types.DefaultPipelineConfig().EventBuffer
	}
	e := &Engine{
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "engine")

	if deps.Logger == nil {
		deps.Logger = logging.NewComponentLogger(e.logger, "worker")
	}
	if deps.Now == nil {
		deps.Now = e.now
	}
	set := worker.NewSet(withCallTimeout(deps, cfg.CallTimeout))
	for i, w := range set.All() {
		e.workers[i] = w
	}
	for stage, w := range e.overrides {
		if stage >= stageCount {
			return nil, fmt.Errorf("unknown stage %d", stage)
		}
		e.workers[stage] = w
	}
	if err := checkCoverage(e.workers); err != nil {
		return nil, err
	}
	return e, nil
}

// Config returns the pipeline config the engine runs with.
func (e *Engine) Config() types.PipelineConfig { return e.cfg }

// Execute starts a run and returns its event stream. The stream ends with
// exactly one run.completed, run.failed, or run.cancelled event and is then
// closed. Cancelling ctx cancels the run. The caller must drain the channel.
func (e *Engine) Execute(ctx context.Context, runID string, req types.DocumentRequest) <-chan types.ProgressEvent {
	out := make(chan types.ProgressEvent, e.cfg.EventBuffer)
	go func() {
		defer close(out)
		r := e.newRun(runID, req, out)
		e.metrics.RunStarted()
		r.finish(ctx, r.execute(ctx))
	}()
	return out
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if e.cfg.RetryBase > 0 {
		b.InitialInterval = e.cfg.RetryBase
	}
	if e.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = e.cfg.RetryMaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.RetryAttempts)), ctx)
}
