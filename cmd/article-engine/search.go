// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run the research search on its own",
	Long: `Search sends a query through the configured backends (web search API,
optionally arXiv) the way the research stage does. With --sites the query is
also fanned out to the preferred technical sites. Results are deduplicated
by URL and title and ranked by score.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetBool("offline"); v {
		cfg.AI.Offline = true
	}
	max, _ := cmd.Flags().GetInt("max-results")
	if max <= 0 {
		max = cfg.Search.MaxResults
	}

	query := strings.Join(args, " ")
	queries := []string{query}
	if sites, _ := cmd.Flags().GetBool("sites"); sites {
		queries = append(queries, search.SiteQueries(query, query)...)
	}

	out, err := search.Gather(context.Background(), newSearcher(cfg, logger), queries, max)
	if err != nil {
		return err
	}
	for _, e := range out.Errors {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return search.FormatJSON(out, os.Stdout)
	}
	search.FormatTable(out, os.Stdout)
	return nil
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "hits kept per query (default from config)")
	searchCmd.Flags().Bool("sites", false, "also query the preferred technical sites")
	searchCmd.Flags().Bool("offline", false, "use canned results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
