package sink

import (
	"context"

	"github.com/hazyhaar/pasteup/report"
)

// UploadFunc is called for each report, in process.
type UploadFunc func(ctx context.Context, u report.Upload) error

// Callback delivers reports through a Go function call.
type Callback struct {
	fn UploadFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn UploadFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, u report.Upload) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, u)
}

func (c *Callback) Close() error { return nil }
