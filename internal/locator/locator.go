// Package locator finds the upload control of a host document by running a
// fixed chain of discovery strategies. It only reads the document.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pasteup/dom"
)

// Strategy names the discovery rule that produced a Target.
type Strategy string

const (
	StrategyAcceptImage    Strategy = "accept-image"
	StrategyFirstFileInput Strategy = "first-file-input"
	StrategySecondary      Strategy = "secondary"
	StrategyCache          Strategy = "cache"
)

// FileInputSelector matches every file-accepting control.
const FileInputSelector = `input[type="file"]`

// DefaultSecondarySelectors are tried, in order, when no file input exists.
var DefaultSecondarySelectors = []string{
	`input[accept*="image"]`,
	`input[accept*="png"]`,
	`input[accept*="jpg"]`,
	`input[accept*="jpeg"]`,
	`[data-testid*="upload"]`,
	`[data-testid*="file"]`,
	`.file-input`,
	`.upload-input`,
}

// Target is a reference to the upload control. The host document owns the
// element; pasteup only ever sets its file payload.
type Target struct {
	Element  dom.Element
	ID       string
	Strategy Strategy
	FoundAt  time.Time
}

// Config configures a Locator.
type Config struct {
	// SecondarySelectors overrides DefaultSecondarySelectors.
	SecondarySelectors []string
	Logger             *slog.Logger
}

// Locator runs the strategy chain against one document.
type Locator struct {
	doc       dom.Document
	secondary []string
	logger    *slog.Logger
}

// New creates a Locator for doc.
func New(doc dom.Document, cfg Config) *Locator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.SecondarySelectors) == 0 {
		cfg.SecondarySelectors = DefaultSecondarySelectors
	}
	return &Locator{doc: doc, secondary: cfg.SecondarySelectors, logger: cfg.Logger}
}

// Locate returns the upload target, or nil when no strategy matches.
// Not finding a target is an expected outcome and is not an error; an error
// means the document could not be read.
func (l *Locator) Locate(ctx context.Context) (*Target, error) {
	inputs, err := l.doc.QueryAll(ctx, FileInputSelector)
	if err != nil {
		return nil, fmt.Errorf("locator: query file inputs: %w", err)
	}

	for _, in := range inputs {
		accept, ok, err := in.Attr(ctx, "accept")
		if err != nil {
			l.logger.Debug("locator: read accept failed", "error", err)
			continue
		}
		if ok && strings.Contains(accept, "image") {
			return l.target(ctx, in, StrategyAcceptImage)
		}
	}

	if len(inputs) > 0 {
		return l.target(ctx, inputs[0], StrategyFirstFileInput)
	}

	for _, sel := range l.secondary {
		els, err := l.doc.QueryAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("locator: query %q: %w", sel, err)
		}
		if len(els) > 0 {
			return l.target(ctx, els[0], StrategySecondary)
		}
	}

	return nil, nil
}

func (l *Locator) target(ctx context.Context, el dom.Element, s Strategy) (*Target, error) {
	id, err := el.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("locator: identity: %w", err)
	}
	l.logger.Debug("locator: target found", "strategy", s, "id", id)
	return &Target{Element: el, ID: id, Strategy: s, FoundAt: time.Now()}, nil
}
