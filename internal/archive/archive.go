// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps finished runs and their documents in SQLite.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/article-engine/pkg/types"
)

const dbFile = "archive.db"

// ErrNotFound is returned by Load for an unknown run id.
var ErrNotFound = errors.New("run not archived")

// Store is the SQLite run archive. It implements supervisor.Archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates <cfg.Dir>/archive.db and its schema.
func Open(cfg types.ArchiveConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(cfg.Dir, dbFile)+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db}
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
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			request TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			error TEXT,
			degraded TEXT,
			title TEXT,
			word_count INTEGER,
			document TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chapters (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT,
			status TEXT NOT NULL,
			score INTEGER,
			revisions INTEGER,
			content TEXT,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS citations (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			title TEXT,
			url TEXT NOT NULL,
			source TEXT,
			PRIMARY KEY (run_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_url ON citations(url)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save records run and, for a succeeded run, its document. Saving the same
// run id again replaces the earlier record.
func (s *Store) Save(ctx context.Context, run types.WorkflowRun, doc *types.FinalDocument) error {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	degraded, err := json.Marshal(run.Degraded)
	if err != nil {
		return fmt.Errorf("marshaling degraded list: %w", err)
	}
	var (
		docJSON   sql.NullString
		title     sql.NullString
		wordCount sql.NullInt64
	)
	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling document: %w", err)
		}
		docJSON = sql.NullString{String: string(data), Valid: true}
		title = sql.NullString{String: doc.Title, Valid: true}
		wordCount = sql.NullInt64{Int64: int64(doc.WordCount), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("replacing run %s: %w", run.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, topic, request, status, stage, started_at, ended_at, error, degraded, title, word_count, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Request.Topic, string(req), string(run.Status), run.Stage,
		formatTime(run.StartedAt), formatTime(run.EndedAt), run.Error, string(degraded),
		title, wordCount, docJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	if doc != nil {
		for i, c := range doc.Chapters {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO chapters (run_id, id, position, title, status, score, revisions, content)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, c.ID, i, c.Title, string(c.Status), c.Score, c.Revisions, c.Content)
			if err != nil {
				return fmt.Errorf("inserting chapter %s: %w", c.ID, err)
			}
		}
		for _, c := range doc.Citations {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO citations (run_id, idx, title, url, source) VALUES (?, ?, ?, ?, ?)`,
				run.ID, c.Index, c.Title, c.URL, c.Source)
			if err != nil {
				return fmt.Errorf("inserting citation %d: %w", c.Index, err)
			}
		}
	}
	return tx.Commit()
}

// ListOptions filters List.
type ListOptions struct {
	// Status keeps only runs with this status. Empty keeps all.
	Status types.RunStatus

	// Limit caps the number of runs returned, newest first. Zero means 50.
	Limit int
}

// Summary is one row of List.
type Summary struct {
	types.WorkflowRun
	Title     string
	WordCount int
}

// List returns archived runs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if opts.Status != "" {
		where = `WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	return s.summaries(ctx, where+` ORDER BY started_at DESC, id LIMIT ?`, append(args, limit)...)
}

func (s *Store) summaries(ctx context.Context, tail string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request, status, stage, started_at, ended_at, error, degraded, title, word_count FROM runs `+tail,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			req       string
			stage     sql.NullString
			started   string
			ended     sql.NullString
			runErr    sql.NullString
			degraded  sql.NullString
			title     sql.NullString
			wordCount sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &req, &sum.Status, &stage, &started, &ended, &runErr, &degraded, &title, &wordCount); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if err := json.Unmarshal([]byte(req), &sum.Request); err != nil {
			return nil, fmt.Errorf("decoding request of %s: %w", sum.ID, err)
		}
		if degraded.Valid && degraded.String != "" {
			if err := json.Unmarshal([]byte(degraded.String), &sum.Degraded); err != nil {
				return nil, fmt.Errorf("decoding degraded list of %s: %w", sum.ID, err)
			}
		}
		sum.Stage = stage.String
		sum.StartedAt = parseTime(started)
		sum.EndedAt = parseTime(ended.String)
		sum.Error = runErr.String
		sum.Title = title.String
		sum.WordCount = int(wordCount.Int64)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Record is an archived run with its document, if any.
type Record struct {
	Run      types.WorkflowRun    `json:"run" yaml:"run"`
	Document *types.FinalDocument `json:"document,omitempty" yaml:"document,omitempty"`
}

// Load returns the archived run id. A run id prefix is accepted when it is
// unambiguous.
func (s *Store) Load(ctx context.Context, id string) (Record, error) {
	fullID, err := s.resolve(ctx, id)
	if err != nil {
		return Record{}, err
	}
	sums, err := s.summaries(ctx, `WHERE id = ?`, fullID)
	if err != nil {
		return Record{}, err
	}
	if len(sums) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, fullID)
	}
	rec := Record{Run: sums[0].WorkflowRun}

	var doc sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, fullID).Scan(&doc); err != nil {
		return Record{}, fmt.Errorf("loading document of %s: %w", fullID, err)
	}
	if doc.Valid && doc.String != "" {
		rec.Document = &types.FinalDocument{}
		if err := json.Unmarshal([]byte(doc.String), rec.Document); err != nil {
			return Record{}, fmt.Errorf("decoding document of %s: %w", fullID, err)
		}
	}
	return rec, nil
}

func (s *Store) resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id = ? OR id LIKE ? LIMIT 2`, id, id+"%")
	if err != nil {
		return "", fmt.Errorf("resolving run %s: %w", id, err)
	}
	defer rows.Close()
	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", err
		}
		if m == id {
			return m, nil
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("run id prefix %q is ambiguous", id)
}

// Chapters returns the archived chapters of a run in document order.
func (s *Store) Chapters(ctx context.Context, runID string) ([]types.FinalChapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, score, revisions, content FROM chapters WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying chapters: %w", err)
	}
	defer rows.Close()
	var out []types.FinalChapter
	for rows.Next() {
		var c types.FinalChapter
		if err := rows.Scan(&c.ID, &c.Title, &c.Status, &c.Score, &c.Revisions, &c.Content); err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CitedBy returns the ids of runs that cite url.
func (s *Store) CitedBy(ctx context.Context, url string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT c.run_id FROM citations c JOIN runs r ON r.id = c.run_id
		 WHERE c.url = ? ORDER BY r.started_at DESC`, url)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExportYAML writes the archived record of id to w.
func (s *Store) ExportYAML(ctx context.Context, id string, w io.Writer) error {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
