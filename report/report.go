// Package report defines the records pasteup emits after each paste. It is
// the contract between the pipeline and whatever supervises it: sinks,
// HTTP callers, MCP clients.
package report

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/pasteup/dom"
)

// Source identifies how a payload entered the pipeline.
type Source string

const (
	SourcePaste Source = "paste" // editor surface listener
	SourceHTTP  Source = "http"  // POST /api/paste
	SourceMCP   Source = "mcp"   // pasteup_paste tool
)

// Reason classifies a failed upload.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNotAcquired     Reason = "not_acquired"
	ReasonInjectionFailed Reason = "injection_failed"
	ReasonInvalidPayload  Reason = "invalid_payload"
	ReasonCanceled        Reason = "canceled"
	ReasonOther           Reason = "other"
)

// Upload is the outcome of one payload delivery ("uploadComplete").
type Upload struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	PageURL      string `json:"page_url,omitempty"`
	Source       Source `json:"source"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int    `json:"size"`
	Digest       string `json:"digest,omitempty"` // blake2b-256 hex
	Success      bool   `json:"success"`
	Reason       Reason `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	FromCache    bool   `json:"from_cache,omitempty"`
	Attempts     int    `json:"attempts"`
	Provocations int    `json:"provocations,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	Timestamp    int64  `json:"timestamp"` // epoch milliseconds
}

// ReasonOf maps a pipeline error to its Reason.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, dom.ErrInvalidPayload):
		return ReasonInvalidPayload
	case errors.Is(err, dom.ErrInjectionFailed):
		return ReasonInjectionFailed
	case errors.Is(err, dom.ErrNotAcquired):
		return ReasonNotAcquired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	}
	return ReasonOther
}

// Marshal serialises an Upload to JSON.
func Marshal(u *Upload) ([]byte, error) {
	return json.Marshal(u)
}

// Unmarshal deserialises an Upload from JSON.
func Unmarshal(data []byte) (*Upload, error) {
	var u Upload
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Status is a snapshot of the running pipeline.
type Status struct {
	SessionID string   `json:"session_id"`
	PageURL   string   `json:"page_url,omitempty"`
	Bound     bool     `json:"bound"`
	Cached    bool     `json:"cached"`
	Strategy  string   `json:"strategy,omitempty"`
	Started   int64    `json:"started"` // epoch milliseconds
	Recent    []Upload `json:"recent,omitempty"`
}
