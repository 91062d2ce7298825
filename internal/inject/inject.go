// Package inject places a file payload into an upload control and replays
// the event sequence a user-driven file selection would have produced.
//
// The receiving framework is unknown and gives no acknowledgement, so every
// step runs regardless of how the previous one went. Each one covers a
// different listener convention:
//
//  1. file list assignment (the control's own state)
//  2. bubbling input + change (listeners on the control or delegated above)
//  3. change with event.target pinned (frameworks reading the acting element
//     from the event)
//  4. focus + blur (frameworks committing on blur)
//  5. bubbling change at every ancestor below body (listeners on wrappers)
package inject

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/locator"
	"github.com/hazyhaar/pasteup/internal/metrics"
)

// Engine runs the injection protocol.
type Engine struct {
	doc     dom.Document
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Engine whose liveness checks run against doc.
func New(doc dom.Document, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{doc: doc, metrics: m, logger: logger}
}

// Inject delivers p into t. It fails with dom.ErrInjectionFailed only when
// t is detached before or during the file assignment; in that case no event
// is dispatched. Later steps are best effort.
func (e *Engine) Inject(ctx context.Context, t *locator.Target, p *dom.Payload) error {
	if err := p.Validate(); err != nil {
		e.metrics.Injection("invalid")
		return fmt.Errorf("inject: %w", err)
	}
	if t == nil {
		return fmt.Errorf("inject: no target: %w", dom.ErrInjectionFailed)
	}
	if !e.live(ctx, t) {
		e.metrics.Injection("detached")
		return fmt.Errorf("inject: target %s: %w", t.ID, dom.ErrInjectionFailed)
	}

	el := t.Element
	if err := el.SetFiles(ctx, []*dom.Payload{p}); err != nil {
		if !e.live(ctx, t) {
			e.metrics.Injection("detached")
			return fmt.Errorf("inject: set files on %s: %w", t.ID, dom.ErrInjectionFailed)
		}
		e.logger.Warn("inject: set files failed, continuing", "id", t.ID, "error", err)
	}

	e.step(ctx, t, el, dom.Event{Type: dom.EventInput, Bubbles: true, Cancelable: true})
	e.step(ctx, t, el, dom.Event{Type: dom.EventChange, Bubbles: true, Cancelable: true})
	e.step(ctx, t, el, dom.Event{Type: dom.EventChange, Bubbles: true, Cancelable: true, PinTarget: true})

	if err := el.Focus(ctx); err != nil {
		e.logger.Debug("inject: focus failed", "id", t.ID, "error", err)
	}
	if err := el.Blur(ctx); err != nil {
		e.logger.Debug("inject: blur failed", "id", t.ID, "error", err)
	}

	ancestors, err := el.Ancestors(ctx)
	if err != nil {
		e.logger.Debug("inject: ancestors failed", "id", t.ID, "error", err)
	}
	for _, a := range ancestors {
		e.step(ctx, t, a, dom.Event{Type: dom.EventChange, Bubbles: true, Cancelable: true})
	}

	e.metrics.Injection("injected")
	e.logger.Info("inject: payload delivered",
		"id", t.ID, "strategy", t.Strategy,
		"name", p.Name, "type", p.Type, "size", p.Size(),
		"ancestors", len(ancestors))
	return nil
}

func (e *Engine) step(ctx context.Context, t *locator.Target, el dom.Element, ev dom.Event) {
	if err := el.Dispatch(ctx, ev); err != nil {
		e.logger.Debug("inject: dispatch failed",
			"id", t.ID, "event", ev.Type, "pinned", ev.PinTarget, "error", err)
	}
}

func (e *Engine) live(ctx context.Context, t *locator.Target) bool {
	if t.Element == nil {
		return false
	}
	ok, err := e.doc.Contains(ctx, t.Element)
	if err != nil {
		e.logger.Debug("inject: liveness check failed", "id", t.ID, "error", err)
		return false
	}
	return ok
}
