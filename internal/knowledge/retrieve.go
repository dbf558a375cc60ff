// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdiddy/article-engine/pkg/types"
)

// QueryOptions holds parameters for knowledge queries.
type QueryOptions struct {
	// Query is free text; it is tokenised into an FTS5 OR query.
	Query string

	// Sources restricts results to these file paths.
	Sources []string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Result is a chunk with its FTS rank (lower is better).
type Result struct {
	types.KnowledgeChunk
	Rank float64 `json:"rank" yaml:"rank"`
}

// Retrieve returns chunks matching opts, best first. Without a query,
// chunks are listed by source and position.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]Result, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	match := ftsQuery(opts.Query)
	var (
		qb   strings.Builder
		args []any
	)
	if match != "" {
		qb.WriteString(
			`SELECT c.id, c.source, COALESCE(src.title, ''), COALESCE(c.heading, ''), c.content, c.position, chunks_fts.rank
			FROM chunks_fts
			JOIN chunks c ON c.rowid = chunks_fts.rowid
			LEFT JOIN sources src ON src.path = c.source
			WHERE chunks_fts MATCH ?`)
		args = append(args, match)
	} else {
		qb.WriteString(
			`SELECT c.id, c.source, COALESCE(src.title, ''), COALESCE(c.heading, ''), c.content, c.position, 0 AS rank
			FROM chunks c
			LEFT JOIN sources src ON src.path = c.source
			WHERE 1=1`)
	}

	if len(opts.Sources) > 0 {
		qb.WriteString(` AND c.source IN (?` + strings.Repeat(`, ?`, len(opts.Sources)-1) + `)`)
		for _, src := range opts.Sources {
			args = append(args, src)
		}
	}

	if match != "" {
		qb.WriteString(` ORDER BY chunks_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY c.source, c.position`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Source, &r.Title, &r.Heading, &r.Content, &r.Position, &r.Rank); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery quotes each word of text and joins them with OR, so user input
// never reaches the FTS5 query syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.ToLower(w)
		if len([]rune(w)) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "how": true, "what": true,
	"why": true, "is": true, "are": true, "of": true, "to": true, "in": true, "on": true,
	"an": true, "or": true, "by": true, "vs": true,
}

// Lookup indexes refs if needed and returns up to max matching chunks as
// findings. With no refs the whole index is searched.
func (s *Store) Lookup(ctx context.Context, refs []types.KnowledgeRef, query string, max int) ([]types.Finding, error) {
	var sources []string
	if len(refs) > 0 {
		summary, err := s.Ingest(ctx, refs, io.Discard)
		if err != nil {
			return nil, fmt.Errorf("indexing knowledge: %w", err)
		}
		if len(summary.Sources) == 0 {
			return nil, nil
		}
		sources = summary.Sources
	}

	results, err := s.Retrieve(ctx, QueryOptions{Query: query, Sources: sources, MaxResults: max})
	if err != nil {
		return nil, err
	}
	findings := make([]types.Finding, 0, len(results))
	for i, r := range results {
		title := r.Title
		if r.Heading != "" {
			title = r.Title + ": " + r.Heading
		}
		findings = append(findings, types.Finding{
			ID:      r.ID,
			Title:   title,
			URL:     fmt.Sprintf("knowledge://%s#%d", r.Source, r.Position),
			Snippet: r.Content,
			Source:  "knowledge",
			Query:   query,
			Score:   1.0 - float64(i)/float64(len(results)+1),
		})
	}
	return findings, nil
}
