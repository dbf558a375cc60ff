// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/archive"
	"github.com/pdiddy/article-engine/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived runs",
	Long: `Runs reads the SQLite archive of finished runs. Every run is recorded
whatever its outcome, with its chapters and citations when it produced a
document. Run ids may be abbreviated to any unambiguous prefix.`,
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE:  runRunsList,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(context.Background(), archive.ListOptions{Status: types.RunStatus(status), Limit: limit})
	if err != nil {
		return err
	}
	formatRuns(runs, os.Stdout)
	return nil
}

func formatRuns(runs []archive.Summary, w io.Writer) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs archived.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Started", "Status", "Topic", "Words", "Degraded"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortRunID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.Request.Topic,
			r.WordCount,
			len(r.Degraded),
		})
	}
	t.Render()
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one archived run and its chapters",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		return store.ExportYAML(ctx, args[0], os.Stdout)
	}
	rec, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	formatRecord(rec, os.Stdout)
	return nil
}

func formatRecord(rec archive.Record, w io.Writer) {
	run := rec.Run
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Topic:    %s (%s, %s, %s)\n", run.Request.Topic, run.Request.ArticleType, run.Request.Length, run.Request.Audience)
	fmt.Fprintf(w, "Status:   %s at stage %s\n", run.Status, run.Stage)
	fmt.Fprintf(w, "Duration: %s\n", run.Duration().Round(time.Second))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	if len(run.Degraded) > 0 {
		fmt.Fprintf(w, "Degraded: %s\n", strings.Join(run.Degraded, ", "))
	}
	if rec.Document == nil {
		return
	}
	doc := rec.Document
	fmt.Fprintf(w, "Title:    %s (%d words, %d citations)\n\n", doc.Title, doc.WordCount, len(doc.Citations))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Status", "Score", "Revisions"})
	for _, ch := range doc.Chapters {
		t.AppendRow(table.Row{ch.ID, ch.Title, ch.Status, ch.Score, ch.Revisions})
	}
	t.Render()
}

// --- cited subcommand ---

var runsCitedCmd = &cobra.Command{
	Use:   "cited <url>",
	Short: "List runs whose articles cite a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.CitedBy(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No archived run cites that URL.")
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func openArchive(cmd *cobra.Command) (*archive.Store, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("archive-dir"); dir != "" {
		cfg.Archive.Dir = dir
	}
	return archive.Open(cfg.Archive)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.PersistentFlags().String("archive-dir", "", "archive directory (default from config)")

	runsListCmd.Flags().String("status", "", "filter by status: succeeded, failed, cancelled")
	runsListCmd.Flags().Int("limit", 0, "maximum runs to list (0 = 50)")

	runsShowCmd.Flags().Bool("yaml", false, "print the full record, document included, as YAML")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCitedCmd)

	rootCmd.AddCommand(runsCmd)
}
