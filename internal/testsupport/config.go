// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package testsupport

import (
	"errors"
	"time"

	"github.com/pdiddy/article-engine/pkg/types"
)

var errUnavailable = errors.New("search backend unavailable")

// ConfigOption customizes a test pipeline config.
type ConfigOption func(*types.PipelineConfig)

// NewPipelineConfig returns the default pipeline config with millisecond
// backoff so retry tests do not sleep.
func NewPipelineConfig(opts ...ConfigOption) types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()
	cfg.RetryBase = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CallTimeout = 5 * time.Second
	cfg.Lengths = types.DefaultLengths()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithProfile replaces the profile of one length class.
func WithProfile(length types.LengthClass, p types.LengthProfile) ConfigOption {
	return func(c *types.PipelineConfig) { c.Lengths[length] = p }
}

// WithRetries sets the retry count.
func WithRetries(n int) ConfigOption {
	return func(c *types.PipelineConfig) { c.RetryAttempts = n }
}

// WithMaxRevisions sets the revision budget.
func WithMaxRevisions(n int) ConfigOption {
	return func(c *types.PipelineConfig) { c.MaxRevisions = n }
}

// WithConcurrency sets the chapter concurrency.
func WithConcurrency(n int) ConfigOption {
	return func(c *types.PipelineConfig) { c.Concurrency = n }
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) ConfigOption {
	return func(c *types.PipelineConfig) { c.CallTimeout = d }
}

// Request returns a valid short tutorial request.
func Request(topic string) types.DocumentRequest {
	return types.DocumentRequest{
		Topic:       topic,
		ArticleType: types.ArticleTutorial,
		Length:      types.LengthShort,
		Audience:    types.AudienceIntermediate,
	}
}
