package pasteup

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/pasteup/internal/sink"
	"github.com/hazyhaar/pasteup/report"
)

// Sink is the output interface for upload reports.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink calling fn for each report.
func NewCallbackSink(fn func(ctx context.Context, u report.Upload) error) Sink {
	return sink.NewCallback(fn)
}
