// Package pasteup routes images pasted into a rich-text editor into the
// host page's file-upload control, as if the person had picked the file
// themselves. The host page owns its DOM and mounts the control lazily;
// pasteup finds it, provokes it when needed, and drives the page's own
// upload handling with synthetic events.
//
// A Service drives a Chrome page through rod, or any dom.Page supplied by
// the caller. Each delivered (or dropped) payload produces a report.Upload
// sent to the configured sinks.
package pasteup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/acquire"
	"github.com/hazyhaar/pasteup/internal/bridge"
	"github.com/hazyhaar/pasteup/internal/browser"
	"github.com/hazyhaar/pasteup/internal/config"
	"github.com/hazyhaar/pasteup/internal/locator"
	"github.com/hazyhaar/pasteup/internal/metrics"
	"github.com/hazyhaar/pasteup/internal/notify"
	"github.com/hazyhaar/pasteup/internal/observer"
	"github.com/hazyhaar/pasteup/internal/sink"
	"github.com/hazyhaar/pasteup/report"
)

// Service is the top-level orchestrator. It owns the browser (when it
// launched one), the observers, the bridge and the sinks.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sinkR    *sink.Router
	journal  *sink.Journal

	mgr *browser.Manager
	tab *browser.Tab

	surface dom.Page
	target  dom.Document
	clock   acquire.Clock

	mu       sync.Mutex
	bridge   *bridge.Bridge
	boundID  string
	surfObs  *observer.Observer
	tgtObs   *observer.Observer
	tgtOn    bool
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	pageURL  string
	notifier notify.Notifier
}

// Option customises a Service.
type Option func(*Service)

// WithPage makes the Service drive page instead of launching Chrome.
// target is where the upload control lives; nil means page itself.
func WithPage(page dom.Page, target dom.Document) Option {
	return func(s *Service) {
		s.surface = page
		s.target = target
		if s.target == nil {
			s.target = page
		}
	}
}

// WithNotifier replaces the notifier. The browser notifier is the default.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock sets the acquisition loop clock.
func WithClock(c acquire.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithSinks adds sinks beyond those named in the configuration.
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) {
		for _, k := range sinks {
			s.sinkR.Add(k)
		}
	}
}

// New creates a Service from configuration. Sinks named in cfg are opened
// here; a sqlite sink failing to open is an error.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.MustNew(reg),
		sinkR:    sink.NewRouter(logger),
		pageURL:  cfg.Page.URL,
	}
	if err := s.openSinks(); err != nil {
		s.sinkR.Close()
		return nil, err
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) openSinks() error {
	for _, sc := range s.cfg.Sinks {
		switch sc.Type {
		case "stdout":
			s.sinkR.Add(sink.NewStdout(os.Stdout))
		case "webhook":
			s.sinkR.Add(sink.NewWebhook(sc.URL,
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookBackoff(sc.Backoff),
				sink.WithWebhookLogger(s.logger)))
		case "sqlite":
			j, err := sink.OpenJournal(sc.Path)
			if err != nil {
				return fmt.Errorf("pasteup: %w", err)
			}
			s.journal = j
			s.sinkR.Add(j)
		default:
			return fmt.Errorf("pasteup: unknown sink type %q", sc.Type)
		}
	}
	return nil
}

// Start attaches to the page and begins watching for the editor. Without
// WithPage it launches (or connects to) Chrome and opens the configured URL.
// A missing editor is not an error: the observers bind it when it appears.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.bridge != nil {
		s.mu.Unlock()
		return errors.New("pasteup: already started")
	}
	s.mu.Unlock()

	if s.surface == nil {
		if err := s.openBrowser(ctx); err != nil {
			return err
		}
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if !s.cfg.Notify.On() {
		s.notifier = notify.Nop{}
	}

	rctx, cancel := context.WithCancel(ctx)
	b := bridge.New(s.surface, s.target, bridge.Config{
		EditorSelector: s.cfg.Page.EditorSelector,
		PageURL:        s.pageURL,
		Locator:        locator.Config{SecondarySelectors: s.cfg.Locator.SecondarySelectors},
		Acquire: acquire.Config{
			MaxAttempts:      s.cfg.Acquire.MaxAttempts,
			Delay:            s.cfg.Acquire.Delay,
			ProvokePause:     s.cfg.Acquire.ProvokePause,
			MaxProvocations:  s.cfg.Acquire.MaxProvocations,
			TriggerSelectors: s.cfg.Acquire.TriggerSelectors,
			TriggerKeywords:  s.cfg.Acquire.TriggerKeywords,
			Clock:            s.clock,
		},
		Notifier: s.notifier,
		Sink:     s.sinkR,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})
	b.Start(rctx)

	obsCfg := func(name string) observer.Config {
		return observer.Config{
			DebounceWindow: s.cfg.Observer.Window,
			DebounceMax:    s.cfg.Observer.MaxBuffer,
			Name:           name,
			Logger:         s.logger,
		}
	}

	s.mu.Lock()
	s.bridge = b
	s.surfObs = observer.New(s.surface, obsCfg("surface"))
	s.tgtObs = observer.New(s.target, obsCfg("target"))
	s.started = time.Now()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.surfObs.Observe(rctx, s.cfg.Page.ObserveRoot, func() { s.onSurfaceChange(rctx) }); err != nil {
		s.logger.Warn("pasteup: surface observer", "error", err)
	}
	s.observeTarget(rctx)
	s.onSurfaceChange(rctx)

	go s.warmup(rctx)

	s.logger.Info("pasteup: started",
		"url", s.pageURL,
		"editor", s.cfg.Page.EditorSelector,
		"target_frame", s.cfg.Page.TargetFrame)
	return nil
}

func (s *Service) openBrowser(ctx context.Context) error {
	s.mgr = browser.NewManager(browser.Config{
		RemoteURL:        s.cfg.Browser.Remote,
		Bin:              s.cfg.Browser.Bin,
		ResourceBlocking: s.cfg.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealth(s.cfg.Browser.Stealth),
		XvfbDisplay:      s.cfg.Browser.XvfbDisplay,
		Logger:           s.logger,
	})
	if _, err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("pasteup: start browser: %w", err)
	}

	var err error
	if s.mgr.Remote() {
		s.tab, err = browser.AttachTab(ctx, s.mgr, s.cfg.Page.URL)
	} else {
		if s.cfg.Page.URL == "" {
			err = errors.New("page.url is required to open a tab")
		} else {
			s.tab, err = browser.OpenTab(ctx, s.mgr, s.cfg.Page.URL)
		}
	}
	if err != nil {
		s.mgr.Close()
		return fmt.Errorf("pasteup: %w", err)
	}

	s.pageURL = s.tab.PageURL
	s.surface = s.tab.Document("")
	s.target = s.surface
	if s.cfg.Page.TargetFrame != "" {
		s.target = s.tab.Document(s.cfg.Page.TargetFrame)
	}
	if s.notifier == nil {
		s.notifier = s.tab.Notifier(s.cfg.Notify.Duration)
	}
	return nil
}

// onSurfaceChange keeps the paste listener on the live editor element. A
// remounted editor gets a fresh binding and therefore a fresh session.
func (s *Service) onSurfaceChange(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return
	}

	id := s.editorIdentity(ctx)
	switch {
	case id == "" && s.bridge.Bound():
		s.bridge.Unbind()
		s.boundID = ""
		s.logger.Info("pasteup: editor removed")
	case id != "" && id != s.boundID:
		if s.bridge.Bound() {
			s.bridge.Unbind()
		}
		if err := s.bridge.Bind(ctx); err != nil {
			s.logger.Debug("pasteup: bind editor", "error", err)
			return
		}
		s.boundID = id
	}
}

func (s *Service) editorIdentity(ctx context.Context) string {
	els, err := s.surface.QueryAll(ctx, s.cfg.Page.EditorSelector)
	if err != nil || len(els) == 0 {
		return ""
	}
	id, err := els[0].Identity(ctx)
	if err != nil {
		return ""
	}
	return id
}

// observeTarget watches the upload document and warms the target cache
// when it changes. With a target frame the root can be missing for a
// while; warm-up retries.
func (s *Service) observeTarget(ctx context.Context) {
	s.mu.Lock()
	if s.tgtOn {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.tgtObs.Observe(ctx, s.cfg.Page.ObserveRoot, func() { s.prefetch(ctx) })
	if err != nil {
		s.logger.Debug("pasteup: target observer", "error", err)
		return
	}
	s.mu.Lock()
	s.tgtOn = true
	s.mu.Unlock()
	s.prefetch(ctx)
}

// prefetch runs one locator pass when the cache is cold.
func (s *Service) prefetch(ctx context.Context) {
	s.mu.Lock()
	b := s.bridge
	s.mu.Unlock()
	if b == nil || ctx.Err() != nil || b.Session().Cached() != nil {
		return
	}
	if _, err := b.Prefetch(ctx); err != nil {
		s.logger.Debug("pasteup: prefetch", "error", err)
	}
}

// warmup re-checks the editor and the target periodically for a while
// after start, for pages whose mutations the observers missed.
func (s *Service) warmup(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.cfg.Warmup.Interval)
	defer t.Stop()
	for i := 0; i < s.cfg.Warmup.Ticks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.onSurfaceChange(ctx)
			s.observeTarget(ctx)
			s.prefetch(ctx)
		}
	}
	s.logger.Debug("pasteup: warm-up done", "ticks", s.cfg.Warmup.Ticks)
}

// Paste delivers p as if it had been pasted, and waits for the outcome.
func (s *Service) Paste(ctx context.Context, p *dom.Payload, src report.Source) (*report.Upload, error) {
	s.mu.Lock()
	b := s.bridge
	s.mu.Unlock()
	if b == nil {
		return nil, bridge.ErrNotStarted
	}
	return b.Forward(ctx, p, src)
}

// Status reports the current session.
func (s *Service) Status(ctx context.Context) report.Status {
	s.mu.Lock()
	b := s.bridge
	started := s.started
	s.mu.Unlock()

	st := report.Status{PageURL: s.pageURL, Started: started.UnixMilli()}
	if b == nil {
		return st
	}
	sess := b.Session()
	st.SessionID = sess.ID
	st.Bound = b.Bound()
	if t := sess.Cached(); t != nil {
		st.Cached = true
		st.Strategy = string(t.Strategy)
	}
	if s.journal != nil {
		recent, err := s.journal.Recent(ctx, 10)
		if err != nil {
			s.logger.Debug("pasteup: recent uploads", "error", err)
		}
		st.Recent = recent
	}
	return st
}

// Gatherer exposes the Service's metrics registry.
func (s *Service) Gatherer() prometheus.Gatherer { return s.registry }

// Stop unbinds, stops observers and workers, closes sinks and, when the
// Service launched it, Chrome.
func (s *Service) Stop() {
	s.mu.Lock()
	b, cancel, done := s.bridge, s.cancel, s.done
	surfObs, tgtObs := s.surfObs, s.tgtObs
	s.bridge = nil
	s.mu.Unlock()

	if surfObs != nil {
		surfObs.Stop()
	}
	if tgtObs != nil {
		tgtObs.Stop()
	}
	if b != nil {
		b.Close()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	s.sinkR.Close()
	if s.tab != nil {
		s.tab.Close()
	}
	if s.mgr != nil {
		s.mgr.Close()
	}
	s.logger.Info("pasteup: stopped")
}
