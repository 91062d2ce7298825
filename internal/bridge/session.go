package bridge

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/idgen"
	"github.com/hazyhaar/pasteup/internal/acquire"
	"github.com/hazyhaar/pasteup/internal/cache"
	"github.com/hazyhaar/pasteup/internal/inject"
	"github.com/hazyhaar/pasteup/internal/locator"
	"github.com/hazyhaar/pasteup/internal/metrics"
)

// Session is the state one binding of the bridge owns: the target cache and
// the loop that writes it. It replaces page-global variables; a new binding
// starts from an empty cache.
type Session struct {
	ID      string
	Started time.Time

	cache  *cache.Cache
	loop   *acquire.Loop
	engine *inject.Engine
}

func newSession(target dom.Document, lc locator.Config, ac acquire.Config, m *metrics.Metrics, logger *slog.Logger) *Session {
	id := idgen.Session()
	logger = logger.With("session", id)
	lc.Logger = logger
	ac.Logger = logger
	ac.Metrics = m

	c := cache.New(target, logger)
	return &Session{
		ID:      id,
		Started: time.Now(),
		cache:   c,
		loop:    acquire.New(target, locator.New(target, lc), c, ac),
		engine:  inject.New(target, m, logger),
	}
}

// Cached returns the cached target without a liveness check.
func (s *Session) Cached() *locator.Target { return s.cache.Peek() }

// Loop returns the session's acquisition loop.
func (s *Session) Loop() *acquire.Loop { return s.loop }
