// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/pkg/types"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Append(evt types.ProgressEvent) {
	if s.Logger == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldRunID, evt.RunID),
		logging.String("kind", string(evt.Kind)),
	}
	if evt.Stage != "" {
		attrs = append(attrs, logging.String(logging.FieldStage, evt.Stage))
	}
	if evt.ChapterID != "" {
		attrs = append(attrs, logging.String(logging.FieldChapterID, evt.ChapterID))
	}
	if evt.Attempt > 0 {
		attrs = append(attrs, logging.Int(logging.FieldAttempt, evt.Attempt))
	}
	msg := evt.Message
	if msg == "" {
		msg = string(evt.Kind)
	}
	switch {
	case evt.Kind == types.EventRunFailed || evt.Kind == types.EventChapterDegraded:
		attrs = append(attrs, logging.String("error", evt.Error))
		s.Logger.Warn(msg, logging.Args(attrs...)...)
	case evt.Kind == types.EventStageStarted || evt.Kind == types.EventStageCompleted:
		s.Logger.Debug(msg, logging.Args(attrs...)...)
	default:
		s.Logger.Info(msg, logging.Args(attrs...)...)
	}
}

// Publisher is the subset of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subj string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes events as JSON on "<prefix>.<run id>.progress".
// The assembled document is not included; subscribers fetch it by run id.
type NATSSink struct {
	Conn   Publisher
	Prefix string
	Logger *slog.Logger
}

// Subject returns the subject events of runID are published on.
func (s NATSSink) Subject(runID string) string {
	prefix := strings.TrimSuffix(s.Prefix, ".")
	if prefix == "" {
		prefix = "article.runs"
	}
	return prefix + "." + runID + ".progress"
}

func (s NATSSink) Append(evt types.ProgressEvent) {
	if s.Conn == nil {
		return
	}
	evt.Document = nil
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.Conn.Publish(s.Subject(evt.RunID), data); err != nil && s.Logger != nil {
		logging.WarnWithContext(s.Logger, "progress publish failed", "nats_publish",
			logging.String(logging.FieldRunID, evt.RunID),
			logging.Error(err),
		)
	}
}

// ConnectNATS dials url for use with NATSSink.
func ConnectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name("article-engine"))
}
