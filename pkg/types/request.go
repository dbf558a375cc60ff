// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data structures shared by the pipeline stages,
// the workflow engine, and the CLI.
package types

import (
	"fmt"
	"strings"
)

// ArticleType selects the overall shape of the generated document.
type ArticleType string

const (
	ArticleTutorial       ArticleType = "tutorial"
	ArticleProblemSolving ArticleType = "problem-solving"
	ArticleComparative    ArticleType = "comparative"
)

// LengthClass selects the size profile of the generated document.
type LengthClass string

const (
	LengthShort  LengthClass = "short"
	LengthMedium LengthClass = "medium"
	LengthLong   LengthClass = "long"
)

// Audience tunes vocabulary and assumed background.
type Audience string

const (
	AudienceBeginner     Audience = "beginner"
	AudienceIntermediate Audience = "intermediate"
	AudienceAdvanced     Audience = "advanced"
)

// KnowledgeRef points at supplementary material supplied with a request.
// Path may be a plain file path or a doublestar glob ("notes/**/*.md").
type KnowledgeRef struct {
	Path string `json:"path" yaml:"path"`

	// Title overrides the source label used in citations.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// DocumentRequest is the immutable input of one run.
type DocumentRequest struct {
	// Topic is the subject of the document.
	Topic string `json:"topic" yaml:"topic"`

	// ArticleType is tutorial, problem-solving, or comparative.
	ArticleType ArticleType `json:"article_type" yaml:"article_type"`

	// Length is short, medium, or long.
	Length LengthClass `json:"length" yaml:"length"`

	// Audience defaults to intermediate.
	Audience Audience `json:"audience,omitempty" yaml:"audience,omitempty"`

	// ImageStyle is passed through to image generation.
	ImageStyle string `json:"image_style,omitempty" yaml:"image_style,omitempty"`

	// Knowledge lists optional supplementary knowledge references.
	Knowledge []KnowledgeRef `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
}

// Normalize returns a copy with defaults filled and whitespace trimmed.
func (r DocumentRequest) Normalize() DocumentRequest {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.ArticleType == "" {
		r.ArticleType = ArticleTutorial
	}
	if r.Length == "" {
		r.Length = LengthMedium
	}
	if r.Audience == "" {
		r.Audience = AudienceIntermediate
	}
	r.Knowledge = append([]KnowledgeRef(nil), r.Knowledge...)
	return r
}

// Validate reports the first problem with the request, if any.
func (r DocumentRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	switch r.ArticleType {
	case ArticleTutorial, ArticleProblemSolving, ArticleComparative:
	default:
		return fmt.Errorf("unknown article type %q", r.ArticleType)
	}
	switch r.Length {
	case LengthShort, LengthMedium, LengthLong:
	default:
		return fmt.Errorf("unknown length class %q", r.Length)
	}
	switch r.Audience {
	case "", AudienceBeginner, AudienceIntermediate, AudienceAdvanced:
	default:
		return fmt.Errorf("unknown audience %q", r.Audience)
	}
	for i, k := range r.Knowledge {
		if strings.TrimSpace(k.Path) == "" {
			return fmt.Errorf("knowledge reference %d has no path", i)
		}
	}
	return nil
}

// WantsCode reports whether the article type normally carries code samples.
func (r DocumentRequest) WantsCode() bool {
	return r.ArticleType == ArticleTutorial || r.ArticleType == ArticleProblemSolving
}
