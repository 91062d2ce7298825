// Package bridge connects the editor's paste signal to the acquisition loop
// and the injection engine. Payloads from every source (editor paste, HTTP,
// MCP) go through one worker, so they are delivered in arrival order.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/idgen"
	"github.com/hazyhaar/pasteup/internal/acquire"
	"github.com/hazyhaar/pasteup/internal/locator"
	"github.com/hazyhaar/pasteup/internal/metrics"
	"github.com/hazyhaar/pasteup/internal/notify"
	"github.com/hazyhaar/pasteup/internal/sink"
	"github.com/hazyhaar/pasteup/report"
)

// DefaultEditorSelector matches the TipTap/ProseMirror editor surface.
const DefaultEditorSelector = `.tiptap.ProseMirror[contenteditable="true"]`

// ErrNotStarted is returned by Forward before Start or after Close.
var ErrNotStarted = errors.New("bridge: not started")

// Config configures a Bridge.
type Config struct {
	// EditorSelector locates the editable surface. Default: DefaultEditorSelector.
	EditorSelector string
	// QueueSize bounds pastes waiting for the worker. Default: 16.
	QueueSize int
	// PageURL is stamped on reports.
	PageURL string

	Locator locator.Config
	Acquire acquire.Config

	Notifier notify.Notifier
	Sink     sink.Sink
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.EditorSelector == "" {
		c.EditorSelector = DefaultEditorSelector
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Notifier == nil {
		c.Notifier = notify.Nop{}
	}
	if c.Sink == nil {
		c.Sink = sink.NewCallback(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type job struct {
	ctx     context.Context
	payload *dom.Payload
	item    *dom.PasteItem
	source  report.Source
	reply   chan result
}

type result struct {
	upload *report.Upload
	err    error
}

// Bridge binds the paste listener and owns the session.
type Bridge struct {
	surface dom.Surface
	target  dom.Document
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	session *Session
	unbind  func()
	queue   chan job
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Bridge. The paste listener goes on surface; the upload
// control is searched in target. Both may be the same document.
func New(surface dom.Surface, target dom.Document, cfg Config) *Bridge {
	cfg.defaults()
	return &Bridge{surface: surface, target: target, cfg: cfg, logger: cfg.Logger}
}

// Start launches the delivery worker. ctx bounds its lifetime.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue != nil {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	b.queue = make(chan job, b.cfg.QueueSize)
	b.stop = cancel
	b.wg.Add(1)
	go b.work(wctx, b.queue)
}

// Close unbinds, stops the worker and waits for it.
func (b *Bridge) Close() {
	b.Unbind()
	b.mu.Lock()
	stop := b.stop
	b.queue, b.stop = nil, nil
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
	b.wg.Wait()
}

// Bind installs the paste listener on the editor surface and opens a new
// session. Calling Bind while bound does nothing.
func (b *Bridge) Bind(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unbind != nil {
		return nil
	}
	unbind, err := b.surface.ListenPaste(ctx, b.cfg.EditorSelector, b.HandlePaste)
	if err != nil {
		return fmt.Errorf("bridge: bind %q: %w", b.cfg.EditorSelector, err)
	}
	b.unbind = unbind
	if b.session == nil {
		b.session = b.newSessionLocked()
	}
	b.logger.Info("bridge: paste listener bound", "selector", b.cfg.EditorSelector, "session", b.session.ID)
	return nil
}

// Bound reports whether the paste listener is installed.
func (b *Bridge) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbind != nil
}

// Unbind removes the paste listener and ends the session.
func (b *Bridge) Unbind() {
	b.mu.Lock()
	unbind := b.unbind
	b.unbind = nil
	var sid string
	if b.session != nil {
		sid = b.session.ID
	}
	b.session = nil
	b.mu.Unlock()

	if unbind != nil {
		unbind()
		b.logger.Info("bridge: paste listener unbound", "session", sid)
	}
}

// Session returns the current session, opening one if needed.
func (b *Bridge) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		b.session = b.newSessionLocked()
	}
	return b.session
}

func (b *Bridge) newSessionLocked() *Session {
	return newSession(b.target, b.cfg.Locator, b.cfg.Acquire, b.cfg.Metrics, b.logger)
}

// HandlePaste is the dom.PasteHandler bound to the surface. It asks for the
// default paste to be suppressed iff an image is attached, and queues the
// first image. Other content is left to the editor.
func (b *Bridge) HandlePaste(items []dom.PasteItem) bool {
	var img *dom.PasteItem
	for i := range items {
		if dom.IsImageType(items[i].Type) {
			img = &items[i]
			break
		}
	}
	if img == nil {
		b.cfg.Metrics.Paste("ignored")
		return false
	}
	b.cfg.Metrics.Paste("image")

	b.mu.Lock()
	q := b.queue
	b.mu.Unlock()
	if q == nil {
		b.logger.Warn("bridge: paste dropped, worker not started", "name", img.Name)
		return true
	}

	item := *img
	select {
	case q <- job{item: &item, source: report.SourcePaste}:
	default:
		b.logger.Warn("bridge: paste dropped, queue full", "name", item.Name)
	}
	return true
}

// Forward delivers p through the worker and waits for the outcome.
func (b *Bridge) Forward(ctx context.Context, p *dom.Payload, src report.Source) (*report.Upload, error) {
	b.mu.Lock()
	q := b.queue
	b.mu.Unlock()
	if q == nil {
		return nil, ErrNotStarted
	}

	reply := make(chan result, 1)
	select {
	case q <- job{ctx: ctx, payload: p, source: src, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.upload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch warms the session cache with one locator pass.
func (b *Bridge) Prefetch(ctx context.Context) (*locator.Target, error) {
	return b.Session().Loop().Prefetch(ctx)
}

func (b *Bridge) work(ctx context.Context, q chan job) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q:
			jctx := ctx
			if j.ctx != nil {
				jctx = j.ctx
			}
			u, err := b.deliver(jctx, j)
			if j.reply != nil {
				j.reply <- result{upload: u, err: err}
			}
		}
	}
}

// deliver runs acquire then inject for one job and reports the outcome.
// Every failure is terminal for the job.
func (b *Bridge) deliver(ctx context.Context, j job) (*report.Upload, error) {
	start := time.Now()
	s := b.Session()

	p := j.payload
	var perr error
	if j.item != nil {
		p, perr = dom.NewPayload(j.item.Name, j.item.Type, j.item.Data)
	} else if p != nil {
		perr = p.Validate()
	} else {
		perr = fmt.Errorf("%w: empty job", dom.ErrInvalidPayload)
	}

	u := report.Upload{
		ID:        idgen.Upload(),
		SessionID: s.ID,
		PageURL:   b.cfg.PageURL,
		Source:    j.source,
		Timestamp: start.UnixMilli(),
	}
	if p != nil {
		u.Name, u.Type, u.Size, u.Digest = p.Name, p.Type, p.Size(), p.Digest()
	} else if j.item != nil {
		u.Name, u.Type, u.Size = j.item.Name, j.item.Type, len(j.item.Data)
	}

	err := perr
	if err == nil {
		b.show(ctx, "Uploading "+u.Name+"…", notify.Info)
		var res *acquire.Result
		res, err = s.loop.Acquire(ctx)
		if res != nil {
			u.Attempts, u.Provocations, u.FromCache = res.Attempts, res.Provocations, res.FromCache
		}
		if err == nil {
			u.Strategy = string(res.Target.Strategy)
			if res.FromCache {
				u.Strategy = string(locator.StrategyCache)
			}
			err = s.engine.Inject(ctx, res.Target, p)
		}
	}

	u.Success = err == nil
	u.Reason = report.ReasonOf(err)
	if err != nil {
		u.Error = err.Error()
	}
	u.DurationMS = time.Since(start).Milliseconds()

	if u.Success {
		b.show(ctx, "Image uploaded: "+u.Name, notify.Success)
		b.logger.Info("bridge: upload complete", "id", u.ID, "name", u.Name, "source", u.Source)
	} else {
		b.show(ctx, "Image upload failed: "+string(u.Reason), notify.Error)
		b.logger.Warn("bridge: upload dropped", "id", u.ID, "name", u.Name,
			"source", u.Source, "reason", u.Reason, "error", err)
	}

	// Reporting must not depend on the job's context having survived.
	if serr := b.cfg.Sink.Send(context.WithoutCancel(ctx), u); serr != nil {
		b.logger.Warn("bridge: report not delivered", "id", u.ID, "error", serr)
	}
	return &u, err
}

func (b *Bridge) show(ctx context.Context, msg string, sev notify.Severity) {
	if err := b.cfg.Notifier.Show(ctx, msg, sev); err != nil {
		b.logger.Debug("bridge: notification failed", "error", err)
	}
}
