// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/internal/archive"
	"github.com/pdiddy/article-engine/pkg/types"
)

func TestPrinterLine(t *testing.T) {
	tests := []struct {
		name string
		evt  types.ProgressEvent
		want string
	}{
		{
			name: "stage with chapter",
			evt:  types.ProgressEvent{Seq: 7, Kind: types.EventStageStarted, Stage: "draft", ChapterID: "ch-02"},
			want: "   7 stage.started     draft ch-02",
		},
		{
			name: "degraded carries error",
			evt:  types.ProgressEvent{Seq: 12, Kind: types.EventChapterDegraded, ChapterID: "ch-01", Error: "review failed"},
			want: "  12 chapter.degraded  ch-01  (review failed)",
		},
		{
			name: "message",
			evt:  types.ProgressEvent{Seq: 2, Kind: types.EventSearchRound, Message: "round 1 of 3"},
			want: "   2 search.round       round 1 of 3",
		},
		{
			name: "percent",
			evt:  types.ProgressEvent{Seq: 30, Kind: types.EventStageCompleted, Stage: "review", ChapterID: "ch-03", Percent: 92},
			want: "  30 stage.completed   review ch-03  [92%]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newPrinter(&buf, false, false).Append(tt.evt)
			assert.Equal(t, tt.want+"\n", buf.String())
		})
	}
}

func TestPrinterColor(t *testing.T) {
	text.EnableColors()
	var buf bytes.Buffer
	newPrinter(&buf, false, true).Append(types.ProgressEvent{Seq: 1, Kind: types.EventRunFailed})
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "run.failed")
}

func TestPrinterJSONDropsDocument(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true, false)
	p.Append(types.ProgressEvent{Seq: 1, RunID: "r1", Kind: types.EventRunStarted})
	p.Append(types.ProgressEvent{Seq: 2, RunID: "r1", Kind: types.EventRunCompleted, Document: &types.FinalDocument{Title: "T"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var evt types.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &evt))
	assert.Equal(t, types.EventRunCompleted, evt.Kind)
	assert.Nil(t, evt.Document)
}

func newRunFlags(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addRunFlags(cmd)
	for k, v := range set {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return cmd
}

func TestRequestFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]string
		args    []string
		want    types.DocumentRequest
		wantErr string
	}{
		{
			name: "defaults",
			args: []string{"Go", "channels"},
			want: types.DocumentRequest{
				Topic:       "Go channels",
				ArticleType: types.ArticleTutorial,
				Length:      types.LengthMedium,
				Audience:    types.AudienceIntermediate,
			},
		},
		{
			name:  "explicit",
			flags: map[string]string{"type": "comparative", "length": "long", "audience": "advanced", "knowledge": "notes/*.md,extra.md"},
			args:  []string{"Rust vs Go"},
			want: types.DocumentRequest{
				Topic:       "Rust vs Go",
				ArticleType: types.ArticleComparative,
				Length:      types.LengthLong,
				Audience:    types.AudienceAdvanced,
				Knowledge:   []types.KnowledgeRef{{Path: "notes/*.md"}, {Path: "extra.md"}},
			},
		},
		{name: "bad length", flags: map[string]string{"length": "huge"}, args: []string{"x"}, wantErr: "unknown length class"},
		{name: "blank topic", args: []string{"  "}, wantErr: "topic is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestFromFlags(newRunFlags(t, tt.flags), tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyRunFlags(t *testing.T) {
	cfg := types.DefaultConfig()
	applyRunFlags(newRunFlags(t, map[string]string{"offline": "true", "output-dir": "out", "nats-url": "nats://localhost:4222"}), &cfg)
	assert.True(t, cfg.AI.Offline)
	assert.Equal(t, "out", cfg.Archive.OutputDir)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Image.Enabled)
}

func TestFormatRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(nil, &buf)
	assert.Equal(t, "No runs archived.\n", buf.String())

	buf.Reset()
	formatRuns([]archive.Summary{{
		WorkflowRun: types.WorkflowRun{
			ID:        "3f2a9c1e-aaaa-4000-8000-000000000001",
			Request:   types.DocumentRequest{Topic: "Go channels"},
			Status:    types.RunSucceeded,
			StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Degraded:  []string{"ch-02"},
		},
		Title:     "Go Channels",
		WordCount: 1200,
	}}, &buf)
	out := buf.String()
	assert.Contains(t, out, "3f2a9c1e")
	assert.NotContains(t, out, "aaaa")
	assert.Contains(t, out, "Go channels")
	assert.Contains(t, out, "1200")
}

func TestFormatRecordWithoutDocument(t *testing.T) {
	var buf bytes.Buffer
	formatRecord(archive.Record{Run: types.WorkflowRun{
		ID:     "run-1",
		Status: types.RunFailed,
		Stage:  "research",
		Error:  "research: fatal: search unavailable",
	}}, &buf)
	out := buf.String()
	assert.Contains(t, out, "failed at stage research")
	assert.Contains(t, out, "search unavailable")
	assert.NotContains(t, out, "Title:")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "a b", clip("a\n\n  b", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
}

func TestRunOffline(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	rootCmd.SetArgs([]string{
		"run", "--offline", "--no-archive", "--length", "short",
		"--output-dir", out,
		"--secrets-dir", filepath.Join(dir, "secrets"),
		"--env-file", filepath.Join(dir, ".env"),
		"--log-level", "error",
		"Go channels",
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	md, err := filepath.Glob(filepath.Join(out, "*.md"))
	require.NoError(t, err)
	require.Len(t, md, 1)
	data, err := os.ReadFile(md[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "# ")
}
