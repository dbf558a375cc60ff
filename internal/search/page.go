// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"

	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/pkg/types"
)

const maxPageBytes = 2 << 20

// PageEnricher downloads search hits and replaces their snippets with the
// page's main content as Markdown.
type PageEnricher struct {
	Client    *http.Client
	UserAgent string
	// MaxChars caps the text kept per page.
	MaxChars int
	Logger   *slog.Logger

	once sync.Once
	conv *md.Converter
}

// NewPageEnricher builds an enricher from cfg.
func NewPageEnricher(cfg types.SearchConfig, logger *slog.Logger) *PageEnricher {
	return &PageEnricher{
		Client:    httputil.NewClient(cfg.HTTPConfig),
		UserAgent: cfg.UserAgent,
		MaxChars:  cfg.PageChars,
		Logger:    logger,
	}
}

// Enrich fetches every hit concurrently. Failures keep the original snippet.
func (e *PageEnricher) Enrich(ctx context.Context, hits []types.SearchHit) {
	var wg sync.WaitGroup
	for i := range hits {
		if hits[i].Source == "arxiv" || hits[i].URL == "" {
			continue
		}
		wg.Add(1)
		go func(h *types.SearchHit) {
			defer wg.Done()
			text, err := e.Fetch(ctx, h.URL)
			if err != nil {
				if e.Logger != nil {
					e.Logger.Debug("page fetch failed", logging.String("url", h.URL), logging.Error(err))
				}
				return
			}
			if text != "" {
				h.Snippet = text
			}
		}(&hits[i])
	}
	wg.Wait()
}

// Fetch downloads url and returns its main content as Markdown.
func (e *PageEnricher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	resp, err := httputil.DoWithRetry(ctx, e.Client, req, 1)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus("page", resp); err != nil {
		return "", err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return e.Convert(raw)
}

// Convert turns an HTML page into trimmed Markdown of its main content.
func (e *PageEnricher) Convert(page []byte) (string, error) {
	e.once.Do(func() {
		e.conv = md.NewConverter("", true, nil)
		e.conv.Use(plugin.GitHubFlavored())
	})
	out, err := e.conv.ConvertString(mainContent(string(page)))
	if err != nil {
		return "", err
	}
	out = collapseBlank(out)
	if e.MaxChars > 0 {
		if r := []rune(out); len(r) > e.MaxChars {
			out = string(r[:e.MaxChars])
		}
	}
	return out, nil
}

var noiseTags = map[string]bool{
	"nav": true, "header": true, "footer": true, "aside": true, "script": true,
	"style": true, "noscript": true, "iframe": true, "form": true, "button": true,
}

// mainContent returns the HTML of <main>, <article>, or a body stripped of
// navigation and scripts.
func mainContent(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return page
	}
	for _, tag := range []string{"main", "article"} {
		if n := findTag(doc, tag); n != nil {
			return render(n)
		}
	}
	stripNoise(doc)
	if body := findTag(doc, "body"); body != nil {
		return render(body)
	}
	return render(doc)
}

func findTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func stripNoise(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && noiseTags[c.Data] {
			n.RemoveChild(c)
		} else {
			stripNoise(c)
		}
		c = next
	}
}

func render(n *html.Node) string {
	var sb strings.Builder
	html.Render(&sb, n)
	return sb.String()
}

func collapseBlank(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
