// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/article-engine/pkg/types"
)

const exportLimit = 100000

// ExportYAML writes the matching chunks to <dir>/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	chunks, err := s.exportChunks(ctx, opts)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(s.ExportPath("yaml"), data, 0o644)
}

// ExportJSON writes the matching chunks to <dir>/index/export.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	chunks, err := s.exportChunks(ctx, opts)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(s.ExportPath("json"), data, 0o644)
}

// ExportPath returns the export file path for ext ("yaml" or "json").
func (s *Store) ExportPath(ext string) string {
	return filepath.Join(s.dir, indexDir, "export."+ext)
}

func (s *Store) exportChunks(ctx context.Context, opts QueryOptions) ([]types.KnowledgeChunk, error) {
	opts.MaxResults = exportLimit
	results, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	chunks := make([]types.KnowledgeChunk, len(results))
	for i, r := range results {
		chunks[i] = r.KnowledgeChunk
	}
	return chunks, nil
}
