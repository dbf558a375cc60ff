// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ChapterStatus tracks a chapter through drafting and review.
type ChapterStatus string

const (
	StatusPending  ChapterStatus = "pending"
	StatusDrafted  ChapterStatus = "drafted"
	StatusExpanded ChapterStatus = "expanded"
	StatusReviewed ChapterStatus = "reviewed"
	StatusAccepted ChapterStatus = "accepted"
	StatusRejected ChapterStatus = "rejected"

	// StatusForced marks a chapter accepted with its last content after the
	// revision budget ran out or a stage degraded it.
	StatusForced ChapterStatus = "rejected-but-forced"
)

// Terminal reports whether no further stage runs for the chapter.
func (s ChapterStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusForced
}

// ChapterSpec is one entry of the outline.
type ChapterSpec struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`

	// TargetDepth is the expected chapter length in words.
	TargetDepth int `json:"target_depth" yaml:"target_depth"`

	// CodeBlocks is the number of code samples the chapter should carry.
	CodeBlocks int `json:"code_blocks,omitempty" yaml:"code_blocks,omitempty"`

	// ImageHint is the illustration type the outline suggested (e.g. "flowchart").
	ImageHint string `json:"image_hint,omitempty" yaml:"image_hint,omitempty"`
}

// Outline is the ordered plan of the document.
type Outline struct {
	Title        string        `json:"title" yaml:"title"`
	Subtitle     string        `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Introduction string        `json:"introduction,omitempty" yaml:"introduction,omitempty"`
	Chapters     []ChapterSpec `json:"chapters" yaml:"chapters"`
	Conclusion   []string      `json:"conclusion,omitempty" yaml:"conclusion,omitempty"`
}

// ChapterIDs returns the chapter ids in outline order.
func (o Outline) ChapterIDs() []string {
	ids := make([]string, len(o.Chapters))
	for i, c := range o.Chapters {
		ids[i] = c.ID
	}
	return ids
}

// Chapter is the working record of one chapter.
type Chapter struct {
	ID     string        `json:"id" yaml:"id"`
	Title  string        `json:"title" yaml:"title"`
	Draft  string        `json:"draft" yaml:"draft"`
	Status ChapterStatus `json:"status" yaml:"status"`

	// Revisions counts failed reviews.
	Revisions int `json:"revisions" yaml:"revisions"`

	// ExpansionPasses counts depth expansions of the current draft.
	ExpansionPasses int `json:"expansion_passes" yaml:"expansion_passes"`

	Score       int      `json:"score" yaml:"score"`
	Scored      bool     `json:"scored" yaml:"scored"`
	ReviewNotes []string `json:"review_notes,omitempty" yaml:"review_notes,omitempty"`

	// ReviewedHash fingerprints the draft that produced Score.
	ReviewedHash string `json:"reviewed_hash,omitempty" yaml:"reviewed_hash,omitempty"`

	// DegradedReason is set when a stage failure forced the chapter.
	DegradedReason string `json:"degraded_reason,omitempty" yaml:"degraded_reason,omitempty"`
}

// Finding is one piece of research evidence with its citation.
type Finding struct {
	ID        string  `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title"`
	URL       string  `json:"url" yaml:"url"`
	Snippet   string  `json:"snippet" yaml:"snippet"`
	Source    string  `json:"source" yaml:"source"`
	Query     string  `json:"query,omitempty" yaml:"query,omitempty"`
	Round     int     `json:"round" yaml:"round"`
	Score     float64 `json:"score" yaml:"score"`
	ChapterID string  `json:"chapter_id,omitempty" yaml:"chapter_id,omitempty"`
}

// GapKind categorizes a knowledge gap.
type GapKind string

const (
	GapMissingData  GapKind = "missing_data"
	GapVagueConcept GapKind = "vague_concept"
	GapNoExample    GapKind = "no_example"
)

// KnowledgeGap is a question the current findings cannot answer.
type KnowledgeGap struct {
	ID          string  `json:"id" yaml:"id"`
	ChapterID   string  `json:"chapter_id,omitempty" yaml:"chapter_id,omitempty"`
	Kind        GapKind `json:"kind" yaml:"kind"`
	Description string  `json:"description" yaml:"description"`
	Query       string  `json:"query" yaml:"query"`
}

// IllustrationKind selects how an illustration is rendered.
type IllustrationKind string

const (
	IllustrationMermaid IllustrationKind = "mermaid"
	IllustrationImage   IllustrationKind = "ai_image"
)

// Illustration fills one [IMAGE: ...] placeholder. The document cover is
// an Illustration with no ChapterID.
type Illustration struct {
	// ID is the placeholder key, stable across re-drafts of the same text.
	ID          string           `json:"id" yaml:"id"`
	ChapterID   string           `json:"chapter_id" yaml:"chapter_id"`
	Kind        IllustrationKind `json:"kind" yaml:"kind"`
	ImageType   string           `json:"image_type" yaml:"image_type"`
	Description string           `json:"description" yaml:"description"`

	// Content is mermaid source or an image URL.
	Content string `json:"content" yaml:"content"`
	MIME    string `json:"mime,omitempty" yaml:"mime,omitempty"`
	Data    []byte `json:"-" yaml:"-"`
}

// CodeSnippet fills one [CODE: ...] placeholder.
type CodeSnippet struct {
	ID          string `json:"id" yaml:"id"`
	ChapterID   string `json:"chapter_id" yaml:"chapter_id"`
	Description string `json:"description" yaml:"description"`
	Language    string `json:"language" yaml:"language"`
	Code        string `json:"code" yaml:"code"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Artifacts groups the enrichment products of one chapter.
type Artifacts struct {
	Illustrations []Illustration `json:"illustrations,omitempty" yaml:"illustrations,omitempty"`
	Code          []CodeSnippet  `json:"code,omitempty" yaml:"code,omitempty"`
}

// FinalChapter is a chapter as it appears in the assembled document.
type FinalChapter struct {
	ID        string        `json:"id" yaml:"id"`
	Title     string        `json:"title" yaml:"title"`
	Status    ChapterStatus `json:"status" yaml:"status"`
	Score     int           `json:"score" yaml:"score"`
	Revisions int           `json:"revisions" yaml:"revisions"`
	Content   string        `json:"content" yaml:"content"`
}

// Citation is a numbered reference in the assembled document.
type Citation struct {
	Index  int    `json:"index" yaml:"index"`
	Title  string `json:"title" yaml:"title"`
	URL    string `json:"url" yaml:"url"`
	Source string `json:"source" yaml:"source"`
}

// FinalDocument is the output of the Assemble stage.
type FinalDocument struct {
	RunID          string               `json:"run_id" yaml:"run_id"`
	Title          string               `json:"title" yaml:"title"`
	Subtitle       string               `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Cover          *Illustration        `json:"cover,omitempty" yaml:"cover,omitempty"`
	Markdown       string               `json:"markdown" yaml:"markdown"`
	HTML           string               `json:"html" yaml:"html"`
	Chapters       []FinalChapter       `json:"chapters" yaml:"chapters"`
	Artifacts      map[string]Artifacts `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Citations      []Citation           `json:"citations,omitempty" yaml:"citations,omitempty"`
	Degraded       []string             `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	WordCount      int                  `json:"word_count" yaml:"word_count"`
	ReadingMinutes int                  `json:"reading_minutes" yaml:"reading_minutes"`
	SearchRounds   int                  `json:"search_rounds" yaml:"search_rounds"`
	CreatedAt      time.Time            `json:"created_at" yaml:"created_at"`
}

// ChapterIDs returns the chapter ids in document order.
func (d *FinalDocument) ChapterIDs() []string {
	ids := make([]string, len(d.Chapters))
	for i, c := range d.Chapters {
		ids[i] = c.ID
	}
	return ids
}
