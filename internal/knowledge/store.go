// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge indexes supplementary Markdown and text files into a
// SQLite full-text index and serves them as findings.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/article-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "knowledge.db"
)

// supportedExt lists the file types Ingest reads.
var supportedExt = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// Store manages the knowledge SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int

	// ingestMu serialises ingestion; lookups from concurrent runs share
	// the same sources.
	ingestMu sync.Mutex
}

// NewStore opens or creates dir/index/knowledge.db and its schema.
func NewStore(cfg types.KnowledgeConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.Dir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	s := &Store{db: db, dir: cfg.Dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			path TEXT PRIMARY KEY,
			title TEXT,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL REFERENCES sources(path),
			heading TEXT,
			content TEXT NOT NULL,
			position INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE chunks_fts USING fts5(heading, content, content=chunks, content_rowid=rowid)`,
		`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
		END`,
		`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, heading, content) VALUES('delete', old.rowid, old.heading, old.content);
		END`,
		`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, heading, content) VALUES('delete', old.rowid, old.heading, old.content);
			INSERT INTO chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from one ingestion run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
	// Sources lists every matched file, indexed or not.
	Sources []string
}

// Total returns the number of files processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest indexes the files matched by refs. Paths may be doublestar globs.
// Files whose modification time is unchanged since the last ingest are
// skipped. Progress lines go to w.
func (s *Store) Ingest(ctx context.Context, refs []types.KnowledgeRef, w io.Writer) (IngestSummary, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	files, err := expand(refs)
	if err != nil {
		return IngestSummary{}, err
	}

	var summary IngestSummary
	changed := false
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Sources = append(summary.Sources, f.path)

		info, err := os.Stat(f.path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", f.path, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM sources WHERE path = ?`, f.path,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", f.path)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		data, err := os.ReadFile(f.path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", f.path, err)
			summary.Failed++
			continue
		}

		chunks := Chunk(f.path, f.title, string(data))
		if err := s.ingestSource(ctx, f.path, f.title, modTime, chunks); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", f.path, err)
			summary.Failed++
			continue
		}
		changed = true
		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d chunks)\n", f.path, len(chunks))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s (%d chunks)\n", f.path, len(chunks))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if changed {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}
	return summary, nil
}

func (s *Store) ingestSource(ctx context.Context, path, title, modTime string, chunks []types.KnowledgeChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, path); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sources (path, title, file_mod_time) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET title=excluded.title, file_mod_time=excluded.file_mod_time`,
		path, title, modTime,
	); err != nil {
		return fmt.Errorf("upserting source: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, source, heading, content, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Heading, c.Content, c.Position); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

type sourceFile struct {
	path  string
	title string
}

// expand resolves refs to a sorted, de-duplicated list of supported files.
func expand(refs []types.KnowledgeRef) ([]sourceFile, error) {
	seen := make(map[string]bool)
	var out []sourceFile
	for _, ref := range refs {
		pattern := strings.TrimSpace(ref.Path)
		if pattern == "" {
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("knowledge path %q matched no files", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() || !supportedExt[strings.ToLower(filepath.Ext(m))] {
				continue
			}
			m = filepath.Clean(m)
			if seen[m] {
				continue
			}
			seen[m] = true
			title := ref.Title
			if title == "" || len(matches) > 1 {
				title = filepath.Base(m)
			}
			out = append(out, sourceFile{path: m, title: title})
		}
	}
	return out, nil
}
