// Package observer turns a document's raw child-list mutation stream into
// debounced change signals. It never reads or writes pasteup state itself:
// callers decide what a change means (bind the paste surface, warm the
// target cache).
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pasteup/dom"
)

// Config for creating an Observer.
type Config struct {
	// DebounceWindow closes a batch after this much quiet. Default: 250ms.
	DebounceWindow time.Duration
	// DebounceMax flushes a batch early at this many mutated nodes. Default: 1000.
	DebounceMax int
	// Name labels log lines ("surface", "target").
	Name   string
	Logger *slog.Logger
}

// Observer watches one subtree of one document.
type Observer struct {
	doc    dom.Document
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	stopSub   func()
	debouncer *debouncer
	batches   uint64
}

// New creates an Observer for doc. Call Observe to start.
func New(doc dom.Document, cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "document"
	}
	return &Observer{doc: doc, cfg: cfg, logger: cfg.Logger}
}

// Observe subscribes to mutations under the first element matching root
// and calls onChange once per debounced batch. A previous observation is
// replaced. Fails with dom.ErrRootNotFound when root is absent.
func (o *Observer) Observe(ctx context.Context, root string, onChange func()) error {
	d := newDebouncer(debounceConfig{
		Window:    o.cfg.DebounceWindow,
		MaxBuffer: o.cfg.DebounceMax,
	}, func(n int) {
		o.mu.Lock()
		o.batches++
		seq := o.batches
		o.mu.Unlock()
		o.logger.Debug("observer: mutation batch", "observer", o.cfg.Name, "nodes", n, "seq", seq)
		onChange()
	})

	stop, err := o.doc.Subscribe(ctx, root, func(n int) { d.add(n) })
	if err != nil {
		return fmt.Errorf("observer: %s: %w", o.cfg.Name, err)
	}

	o.mu.Lock()
	prevStop, prevDeb := o.stopSub, o.debouncer
	o.stopSub, o.debouncer = stop, d
	o.mu.Unlock()

	if prevStop != nil {
		prevStop()
		prevDeb.stop()
	}
	o.logger.Info("observer: watching", "observer", o.cfg.Name, "root", root)
	return nil
}

// Stop deregisters. Pending mutations are dropped.
func (o *Observer) Stop() {
	o.mu.Lock()
	stop, d := o.stopSub, o.debouncer
	o.stopSub, o.debouncer = nil, nil
	o.mu.Unlock()

	if stop != nil {
		stop()
		d.stop()
		o.logger.Debug("observer: stopped", "observer", o.cfg.Name)
	}
}

// Batches returns how many change signals have been emitted.
func (o *Observer) Batches() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batches
}
