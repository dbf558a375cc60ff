// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/article-engine/pkg/types"
)

// printer is a progress sink that writes one line per event, or one JSON
// object per line when asJSON is set.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
	color  bool
}

func newPrinter(w io.Writer, asJSON, color bool) *printer {
	return &printer{w: w, asJSON: asJSON, color: color}
}

func (p *printer) Append(evt types.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asJSON {
		evt.Document = nil
		data, err := json.Marshal(evt)
		if err != nil {
			return
		}
		fmt.Fprintln(p.w, string(data))
		return
	}
	fmt.Fprintln(p.w, p.line(evt))
}

func (p *printer) line(evt types.ProgressEvent) string {
	kind := fmt.Sprintf("%-17s", evt.Kind)
	if p.color {
		kind = kindColors(evt.Kind).Sprint(kind)
	}
	s := fmt.Sprintf("%4d %s", evt.Seq, kind)
	if evt.Stage != "" {
		s += " " + evt.Stage
	}
	if evt.ChapterID != "" {
		s += " " + evt.ChapterID
	}
	if evt.Message != "" {
		s += "  " + evt.Message
	}
	if evt.Error != "" {
		s += "  (" + evt.Error + ")"
	}
	if evt.Percent > 0 {
		s += fmt.Sprintf("  [%d%%]", evt.Percent)
	}
	return s
}

func kindColors(k types.EventKind) text.Colors {
	switch k {
	case types.EventRunCompleted, types.EventChapterAccepted:
		return text.Colors{text.FgGreen}
	case types.EventRunFailed:
		return text.Colors{text.FgRed, text.Bold}
	case types.EventChapterDegraded, types.EventGapsDropped, types.EventStageRetrying, types.EventRunCancelled, types.EventCoverSkipped:
		return text.Colors{text.FgYellow}
	case types.EventSearchRound, types.EventChapterInserted:
		return text.Colors{text.FgCyan}
	default:
		return text.Colors{text.Faint}
	}
}
