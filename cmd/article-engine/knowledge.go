// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/knowledge"
	"github.com/pdiddy/article-engine/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the supplementary knowledge index (ingest, query, export)",
	Long: `Knowledge manages a local SQLite index of supplementary notes. Files are
split into chunks by heading and indexed with FTS5. Runs given --knowledge
draw findings from the same index.`,
}

// --- ingest subcommand ---

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest <path-or-glob>...",
	Short: "Index files into the knowledge index",
	Long: `Ingest reads each file (doublestar globs such as "notes/**/*.md" are
expanded), splits it into chunks, and indexes them. Unchanged files are
skipped on subsequent runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKnowledgeIngest,
}

func runKnowledgeIngest(cmd *cobra.Command, args []string) error {
	store, err := openKnowledge(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	refs := make([]types.KnowledgeRef, 0, len(args))
	for _, a := range args {
		refs = append(refs, types.KnowledgeRef{Path: a})
	}
	summary, err := store.Ingest(context.Background(), refs, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- query subcommand ---

var knowledgeQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the knowledge index",
	RunE:  runKnowledgeQuery,
}

func runKnowledgeQuery(cmd *cobra.Command, args []string) error {
	store, err := openKnowledge(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Retrieve(context.Background(), queryOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	formatResults(results, os.Stdout)
	return nil
}

func formatResults(results []knowledge.Result, w io.Writer) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Source", "Heading", "Content"})
	for i, r := range results {
		t.AppendRow(table.Row{i + 1, r.Title, r.Heading, clip(r.Content, 60)})
	}
	t.Render()
	fmt.Fprintf(w, "%d results\n", len(results))
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export [text]",
	Short: "Export the knowledge index to YAML or JSON",
	RunE:  runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openKnowledge(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	switch format {
	case "yaml", "":
		err = store.ExportYAML(context.Background(), opts)
		format = "yaml"
	case "json":
		err = store.ExportJSON(context.Background(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", store.ExportPath(format))
	return nil
}

// --- shared helpers ---

func openKnowledge(cmd *cobra.Command) (*knowledge.Store, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("knowledge-dir"); dir != "" {
		cfg.Knowledge.Dir = dir
	}
	return knowledge.NewStore(cfg.Knowledge)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	sources, _ := cmd.Flags().GetStringSlice("source")
	limit, _ := cmd.Flags().GetInt("limit")
	return knowledge.QueryOptions{
		Query:      strings.Join(args, " "),
		Sources:    sources,
		MaxResults: limit,
	}
}

func clip(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func init() {
	knowledgeCmd.PersistentFlags().String("knowledge-dir", "", "knowledge directory (default from config)")

	knowledgeQueryCmd.Flags().StringSlice("source", nil, "restrict to these source files")
	knowledgeQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	knowledgeQueryCmd.Flags().Bool("json", false, "output results as JSON")

	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	knowledgeExportCmd.Flags().StringSlice("source", nil, "restrict to these source files")
	knowledgeExportCmd.Flags().Int("limit", 0, "maximum chunks to export (0 = all)")

	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeQueryCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
