// Package cache remembers the last upload target the locator produced and
// checks it is still attached every time it is read.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/locator"
)

// Cache holds at most one target. It never searches. Only the acquisition
// loop writes to it; every read re-validates liveness.
type Cache struct {
	doc    dom.Document
	cur    atomic.Pointer[locator.Target]
	logger *slog.Logger
}

// New creates an empty Cache whose liveness checks run against doc.
func New(doc dom.Document, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{doc: doc, logger: logger}
}

// Get returns the cached target if it is still attached, nil otherwise.
// A detached entry is cleared. A failed check returns nil but keeps the
// entry for the next read.
func (c *Cache) Get(ctx context.Context) *locator.Target {
	t := c.cur.Load()
	if t == nil {
		return nil
	}
	live, err := c.doc.Contains(ctx, t.Element)
	if err != nil {
		c.logger.Debug("cache: liveness check failed", "id", t.ID, "error", err)
		return nil
	}
	if !live {
		c.cur.CompareAndSwap(t, nil)
		c.logger.Debug("cache: target detached", "id", t.ID)
		return nil
	}
	return t
}

// Set replaces the cached target.
func (c *Cache) Set(t *locator.Target) {
	c.cur.Store(t)
}

// Clear drops the cached target.
func (c *Cache) Clear() {
	c.cur.Store(nil)
}

// Peek returns the cached target without checking liveness.
func (c *Cache) Peek() *locator.Target {
	return c.cur.Load()
}
