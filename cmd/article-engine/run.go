// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/archive"
	"github.com/pdiddy/article-engine/internal/engine"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/metrics"
	"github.com/pdiddy/article-engine/internal/progress"
	"github.com/pdiddy/article-engine/internal/render"
	"github.com/pdiddy/article-engine/internal/supervisor"
	"github.com/pdiddy/article-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Generate an article for a topic",
	Long: `Run executes the full pipeline for one topic and prints progress as it goes.
On success the Markdown, HTML and BibTeX files are written to the output
directory. Chapters that were forced or degraded are listed at the end.

Press Ctrl-C to cancel; the partial run is still archived.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArticle,
}

func runArticle(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	req, err := requestFromFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := newDeps(ctx, cfg, req.Knowledge, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer closeDeps()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
		defer srv.Close()
	}

	eng, err := engine.New(cfg.Pipeline, deps, engine.WithLogger(logger), engine.WithMetrics(m))
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	opts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(m),
		supervisor.WithEventBuffer(cfg.Pipeline.EventBuffer),
		supervisor.WithSink(newPrinter(os.Stdout, asJSON, !asJSON && logging.IsTerminal(os.Stdout))),
	}
	if noArchive, _ := cmd.Flags().GetBool("no-archive"); !noArchive {
		store, err := archive.Open(cfg.Archive)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, supervisor.WithArchive(store))
	}
	if cfg.NATS.URL != "" {
		nc, err := progress.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()
		opts = append(opts, supervisor.WithSink(progress.NATSSink{Conn: nc, Prefix: cfg.NATS.SubjectPrefix, Logger: logger}))
	}

	sup := supervisor.New(eng, opts...)
	id, err := sup.SubmitRun(ctx, req)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sup.Cancel(id)
	}()

	run, err := sup.Wait(context.Background(), id)
	if err != nil {
		return err
	}
	doc, err := sup.GetResult(id)
	if err != nil {
		return fmt.Errorf("run %s %s: %w", id, run.Status, err)
	}

	paths, err := render.WriteFiles(cfg.Archive.OutputDir, doc)
	if err != nil {
		return err
	}
	if asJSON {
		return nil
	}
	fmt.Fprintf(os.Stdout, "\n%s (%d words, %d chapters, %s)\n", doc.Title, doc.WordCount, len(doc.Chapters), run.Duration().Round(time.Second))
	for _, p := range paths {
		fmt.Fprintln(os.Stdout, "  wrote", p)
	}
	if len(doc.Degraded) > 0 {
		fmt.Fprintf(os.Stdout, "  degraded chapters: %s\n", strings.Join(doc.Degraded, ", "))
	}
	return nil
}

// applyRunFlags lets command-line flags override the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *types.Config) {
	if v, _ := cmd.Flags().GetBool("offline"); v {
		cfg.AI.Offline = true
	}
	if v, _ := cmd.Flags().GetBool("images"); v {
		cfg.Image.Enabled = true
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.Archive.OutputDir = v
	}
	if v, _ := cmd.Flags().GetString("nats-url"); v != "" {
		cfg.NATS.URL = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func requestFromFlags(cmd *cobra.Command, args []string) (types.DocumentRequest, error) {
	articleType, _ := cmd.Flags().GetString("type")
	length, _ := cmd.Flags().GetString("length")
	audience, _ := cmd.Flags().GetString("audience")
	style, _ := cmd.Flags().GetString("image-style")
	paths, _ := cmd.Flags().GetStringSlice("knowledge")

	req := types.DocumentRequest{
		Topic:       strings.Join(args, " "),
		ArticleType: types.ArticleType(articleType),
		Length:      types.LengthClass(length),
		Audience:    types.Audience(audience),
		ImageStyle:  style,
	}
	for _, p := range paths {
		req.Knowledge = append(req.Knowledge, types.KnowledgeRef{Path: p})
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// addRunFlags defines the run flags on cmd.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "tutorial", "article type: tutorial, problem-solving, comparative")
	cmd.Flags().String("length", "medium", "length class: short, medium, long")
	cmd.Flags().String("audience", "intermediate", "audience: beginner, intermediate, advanced")
	cmd.Flags().String("image-style", "", "style hint passed to image generation")
	cmd.Flags().StringSlice("knowledge", nil, "supplementary notes (file or glob, repeatable)")
	cmd.Flags().Bool("offline", false, "use the built-in generator and canned search results")
	cmd.Flags().Bool("images", false, "generate ai_image illustrations")
	cmd.Flags().String("output-dir", "", "directory for the rendered article (default from config)")
	cmd.Flags().String("nats-url", "", "publish progress events to this NATS server")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Bool("json", false, "print progress events as JSON lines")
	cmd.Flags().Bool("no-archive", false, "do not record the run in the archive")
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
