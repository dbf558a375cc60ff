// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "article-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIConfig holds shared settings for components that call a generative AI API.
type AIConfig struct {
	// Model is the model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL points the client at a compatible endpoint. Empty uses the default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Offline swaps the API client for the built-in deterministic generator.
	Offline bool `json:"offline" yaml:"offline" mapstructure:"offline"`
}

// ImageConfig holds settings for image generation.
type ImageConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Enabled turns ai_image illustrations on. When false every
	// illustration is rendered as a diagram.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Size is the requested image size (e.g. "1024x1024").
	Size string `json:"size" yaml:"size" mapstructure:"size"`
}

// SearchConfig holds settings for web and paper search.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the web search API URL. Empty disables web search.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIKey authenticates against Endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxResults is the number of hits kept per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// EnableArxiv adds the arXiv backend next to web search.
	EnableArxiv bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`

	// FetchPages downloads each hit and replaces the snippet with page text.
	FetchPages bool `json:"fetch_pages" yaml:"fetch_pages" mapstructure:"fetch_pages"`

	// PageChars caps the page text kept per hit (default 4000).
	PageChars int `json:"page_chars" yaml:"page_chars" mapstructure:"page_chars"`
}

// DepthStrictness controls how eagerly chapters are expanded.
type DepthStrictness string

const (
	DepthShallow DepthStrictness = "shallow"
	DepthMedium  DepthStrictness = "medium"
	DepthDeep    DepthStrictness = "deep"
)

// LengthProfile bounds the loops of one length class.
type LengthProfile struct {
	MinChapters int `json:"min_chapters" yaml:"min_chapters" mapstructure:"min_chapters"`
	MaxChapters int `json:"max_chapters" yaml:"max_chapters" mapstructure:"max_chapters"`

	// SearchRounds is the run-wide search budget, Research included.
	SearchRounds int `json:"search_rounds" yaml:"search_rounds" mapstructure:"search_rounds"`

	// ScoreThreshold is the minimum review score (0-100) for acceptance.
	ScoreThreshold int `json:"score_threshold" yaml:"score_threshold" mapstructure:"score_threshold"`

	// Strictness selects whether depth expansion runs on every chapter.
	Strictness DepthStrictness `json:"strictness" yaml:"strictness" mapstructure:"strictness"`

	// TargetWords is the default per-chapter target depth.
	TargetWords int `json:"target_words" yaml:"target_words" mapstructure:"target_words"`
}

// PipelineConfig holds the workflow engine settings. It is passed explicitly
// to the engine and every worker.
type PipelineConfig struct {
	// Lengths maps each length class to its profile.
	Lengths map[LengthClass]LengthProfile `json:"lengths" yaml:"lengths" mapstructure:"lengths"`

	// MaxRevisions is the number of failed reviews before a chapter is forced (default 2).
	MaxRevisions int `json:"max_revisions" yaml:"max_revisions" mapstructure:"max_revisions"`

	// MaxExpansionPasses bounds depth expansion per draft version (default 2).
	MaxExpansionPasses int `json:"max_expansion_passes" yaml:"max_expansion_passes" mapstructure:"max_expansion_passes"`

	// Concurrency bounds simultaneous chapter stage invocations (default 3).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// RetryAttempts is the number of retries after a transient failure (default 3).
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts" mapstructure:"retry_attempts"`

	// RetryBase is the initial backoff interval (default 1s).
	RetryBase time.Duration `json:"retry_base" yaml:"retry_base" mapstructure:"retry_base"`

	// RetryMaxInterval caps a single backoff wait (default 30s).
	RetryMaxInterval time.Duration `json:"retry_max_interval" yaml:"retry_max_interval" mapstructure:"retry_max_interval"`

	// CallTimeout bounds every capability call (default 2m).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`

	// FindingsPerPrompt caps the findings quoted into a drafting prompt (default 8).
	FindingsPerPrompt int `json:"findings_per_prompt" yaml:"findings_per_prompt" mapstructure:"findings_per_prompt"`

	// EventBuffer is the per-run progress buffer size (default 256).
	EventBuffer int `json:"event_buffer" yaml:"event_buffer" mapstructure:"event_buffer"`
}

// Profile returns the profile for a length class.
func (c PipelineConfig) Profile(l LengthClass) (LengthProfile, error) {
	p, ok := c.Lengths[l]
	if !ok {
		return LengthProfile{}, fmt.Errorf("no length profile for %q", l)
	}
	return p, nil
}

// Validate checks the bounds every loop relies on.
func (c PipelineConfig) Validate() error {
	if c.MaxRevisions < 1 {
		return fmt.Errorf("max_revisions must be at least 1, got %d", c.MaxRevisions)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative")
	}
	for _, l := range []LengthClass{LengthShort, LengthMedium, LengthLong} {
		p, err := c.Profile(l)
		if err != nil {
			return err
		}
		if p.MinChapters < 1 || p.MaxChapters < p.MinChapters {
			return fmt.Errorf("%s: invalid chapter range %d-%d", l, p.MinChapters, p.MaxChapters)
		}
		if p.SearchRounds < 1 {
			return fmt.Errorf("%s: search_rounds must be at least 1", l)
		}
		if p.ScoreThreshold < 0 || p.ScoreThreshold > 100 {
			return fmt.Errorf("%s: score_threshold must be within 0-100", l)
		}
	}
	return nil
}

// KnowledgeConfig holds settings for the supplementary knowledge index.
type KnowledgeConfig struct {
	// Dir holds the SQLite index (index/knowledge.db) and exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the number of chunks retrieved per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ArchiveConfig holds settings for the completed-run archive.
type ArchiveConfig struct {
	// Dir holds the archive database.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// OutputDir receives the Markdown and HTML files of completed runs.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// LogConfig selects the log level and format (console, json, or auto).
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// NATSConfig enables publishing progress events to NATS when URL is set.
type NATSConfig struct {
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// SubjectPrefix is prepended to "<run id>.progress" (default "article.runs").
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// Config groups all settings of the article-engine binary.
type Config struct {
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	AI        AIConfig        `json:"ai" yaml:"ai" mapstructure:"ai"`
	Image     ImageConfig     `json:"image" yaml:"image" mapstructure:"image"`
	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge" mapstructure:"knowledge"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive" mapstructure:"archive"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
	NATS      NATSConfig      `json:"nats" yaml:"nats" mapstructure:"nats"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// DefaultLengths returns the built-in length profiles.
func DefaultLengths() map[LengthClass]LengthProfile {
	return map[LengthClass]LengthProfile{
		LengthShort:  {MinChapters: 3, MaxChapters: 4, SearchRounds: 3, ScoreThreshold: 70, Strictness: DepthShallow, TargetWords: 300},
		LengthMedium: {MinChapters: 4, MaxChapters: 6, SearchRounds: 5, ScoreThreshold: 75, Strictness: DepthMedium, TargetWords: 600},
		LengthLong:   {MinChapters: 6, MaxChapters: 10, SearchRounds: 8, ScoreThreshold: 80, Strictness: DepthDeep, TargetWords: 1000},
	}
}

// DefaultPipelineConfig returns the engine defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Lengths:            DefaultLengths(),
		MaxRevisions:       2,
		MaxExpansionPasses: 2,
		Concurrency:        3,
		RetryAttempts:      3,
		RetryBase:          time.Second,
		RetryMaxInterval:   30 * time.Second,
		CallTimeout:        2 * time.Minute,
		FindingsPerPrompt:  8,
		EventBuffer:        256,
	}
}

// DefaultConfig returns the defaults for every section.
func DefaultConfig() Config {
	return Config{
		Pipeline: DefaultPipelineConfig(),
		AI:       AIConfig{Model: "gpt-4o-mini"},
		Image:    ImageConfig{AIConfig: AIConfig{Model: "dall-e-3"}, Size: "1024x1024"},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, UserAgent: "article-engine/0.1"},
			MaxResults: 5,
			PageChars:  4000,
		},
		Knowledge: KnowledgeConfig{Dir: "knowledge", MaxResults: 5},
		Archive:   ArchiveConfig{Dir: "archive", OutputDir: "output"},
		Log:       LogConfig{Level: "info", Format: "auto"},
		NATS:      NATSConfig{SubjectPrefix: "article.runs"},
	}
}
