// Package sink delivers upload reports to the supervising side: JSON lines,
// a webhook, an in-process callback or an SQLite journal.
package sink

import (
	"context"

	"github.com/hazyhaar/pasteup/report"
)

// Sink receives one report per delivered (or dropped) payload.
type Sink interface {
	Send(ctx context.Context, u report.Upload) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const envelopeUpload = "upload_complete"
