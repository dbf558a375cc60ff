// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// KnowledgeChunk is a heading-delimited section of a supplementary knowledge file.
type KnowledgeChunk struct {
	// ID is a stable identifier, unchanged across re-ingestion of unchanged content.
	ID string `json:"id" yaml:"id"`

	// Source is the file path the chunk came from.
	Source string `json:"source" yaml:"source"`

	// Title labels the source in citations; defaults to the file name.
	Title string `json:"title" yaml:"title"`

	// Heading is the nearest heading above the chunk.
	Heading string `json:"heading" yaml:"heading"`

	// Content is the chunk text.
	Content string `json:"content" yaml:"content"`

	// Position is the zero-based chunk index within its source.
	Position int `json:"position" yaml:"position"`
}
