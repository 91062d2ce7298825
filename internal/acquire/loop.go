// Package acquire turns the locator and the target cache into a bounded
// acquisition: retry with a fixed delay, then try to provoke the host page
// into mounting its upload control by clicking plausible triggers.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/cache"
	"github.com/hazyhaar/pasteup/internal/locator"
	"github.com/hazyhaar/pasteup/internal/metrics"
)

// DefaultTriggerSelectors lists elements that may open an upload dialog.
var DefaultTriggerSelectors = []string{
	`[data-testid*="upload"]`,
	`[aria-label*="upload"]`,
	`[aria-label*="file"]`,
	`[class*="upload"]`,
	`[class*="file-upload"]`,
	`[id*="upload"]`,
	`button`,
}

// DefaultTriggerKeywords must appear in a trigger's text.
var DefaultTriggerKeywords = []string{"upload", "file"}

// Config configures a Loop.
type Config struct {
	// MaxAttempts bounds locator invocations before provocation. Default: 20.
	MaxAttempts int
	// Delay between attempts. Default: 1s.
	Delay time.Duration
	// ProvokePause follows each trigger click. Default: 2s.
	ProvokePause time.Duration
	// MaxProvocations bounds trigger clicks per acquisition. Default: 10.
	MaxProvocations int

	TriggerSelectors []string
	TriggerKeywords  []string

	Clock   Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 20
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.ProvokePause <= 0 {
		c.ProvokePause = 2 * time.Second
	}
	if c.MaxProvocations <= 0 {
		c.MaxProvocations = 10
	}
	if len(c.TriggerSelectors) == 0 {
		c.TriggerSelectors = DefaultTriggerSelectors
	}
	if len(c.TriggerKeywords) == 0 {
		c.TriggerKeywords = DefaultTriggerKeywords
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Budget bounds the time one acquisition spends suspended between
// attempts and after clicks. Locator and trigger round trips are not
// counted against it.
func (c Config) Budget() time.Duration {
	return time.Duration(c.MaxAttempts)*c.Delay + time.Duration(c.MaxProvocations)*c.ProvokePause
}

// Result describes one finished acquisition.
type Result struct {
	Target       *locator.Target
	State        State
	Path         []State
	Attempts     int
	Provocations int
	FromCache    bool
	Elapsed      time.Duration
}

// Loop acquires the upload target of one document. The loop is the only
// writer of its cache.
type Loop struct {
	doc   dom.Document
	loc   *locator.Locator
	cache *cache.Cache
	cfg   Config
	log   *slog.Logger
}

// New creates a Loop.
func New(doc dom.Document, loc *locator.Locator, c *cache.Cache, cfg Config) *Loop {
	cfg.defaults()
	return &Loop{doc: doc, loc: loc, cache: c, cfg: cfg, log: cfg.Logger}
}

// Config returns the effective configuration.
func (l *Loop) Config() Config { return l.cfg }

// run is the per-call attempt state. It is discarded when Acquire returns.
type run struct {
	state      State
	path       []State
	attempts   int
	provoked   int
	triggers   []dom.Element
	enumerated bool
	next       int
	target     *locator.Target
	fromCache  bool
	start      time.Time
	slept      time.Duration
}

func (l *Loop) advance(r *run, sig Signal) {
	to, ok := Next(r.state, sig)
	if !ok {
		l.log.Error("acquire: invalid transition", "state", r.state, "signal", sig)
		to = Failed
	}
	r.state = to
	r.path = append(r.path, to)
}

func (l *Loop) result(r *run) *Result {
	return &Result{
		Target:       r.target,
		State:        r.state,
		Path:         r.path,
		Attempts:     r.attempts,
		Provocations: r.provoked,
		FromCache:    r.fromCache,
		Elapsed:      l.cfg.Clock.Now().Sub(r.start),
	}
}

// Acquire returns a live upload target or an error wrapping
// dom.ErrNotAcquired once retries and provocation are exhausted.
func (l *Loop) Acquire(ctx context.Context) (*Result, error) {
	now := l.cfg.Clock.Now()
	r := &run{state: Idle, path: []State{Idle}, start: now}

	for {
		switch r.state {
		case Idle:
			if t := l.cache.Get(ctx); t != nil {
				r.target, r.fromCache = t, true
				l.advance(r, Found)
				continue
			}
			l.advance(r, Miss)

		case Searching:
			r.attempts++
			if t := l.locate(ctx); t != nil {
				l.found(r, t)
				continue
			}
			if r.attempts >= l.cfg.MaxAttempts {
				l.log.Info("acquire: attempts exhausted, provoking", "attempts", r.attempts)
				l.advance(r, Exhausted)
				continue
			}
			if err := l.sleep(ctx, r, l.cfg.Delay); err != nil {
				return l.fail(r, err)
			}
			l.advance(r, Tick)

		case Provoking:
			if !r.enumerated {
				r.triggers = l.triggers(ctx)
				r.enumerated = true
				l.log.Info("acquire: provocation candidates", "count", len(r.triggers))
			}
			if r.next >= len(r.triggers) {
				l.advance(r, Exhausted)
				continue
			}
			el := r.triggers[r.next]
			r.next++
			r.provoked++
			l.cfg.Metrics.Provocation()
			if err := el.Click(ctx); err != nil {
				l.log.Debug("acquire: trigger click failed", "error", err)
			}
			if err := l.sleep(ctx, r, l.cfg.ProvokePause); err != nil {
				return l.fail(r, err)
			}
			if t := l.locate(ctx); t != nil {
				l.found(r, t)
				continue
			}
			l.advance(r, Tick)

		case Acquired:
			res := l.result(r)
			strategy := string(res.Target.Strategy)
			if res.FromCache {
				strategy = string(locator.StrategyCache)
			}
			l.cfg.Metrics.Acquisition("acquired", strategy, res.Attempts)
			l.log.Info("acquire: target acquired",
				"strategy", strategy, "id", res.Target.ID,
				"attempts", res.Attempts, "provocations", res.Provocations,
				"elapsed", res.Elapsed)
			return res, nil

		case Failed:
			return l.fail(r, nil)
		}
	}
}

func (l *Loop) found(r *run, t *locator.Target) {
	l.cache.Set(t)
	r.target = t
	l.advance(r, Found)
}

func (l *Loop) fail(r *run, cause error) (*Result, error) {
	if r.state != Failed {
		r.state = Failed
		r.path = append(r.path, Failed)
	}
	res := l.result(r)
	l.cfg.Metrics.Acquisition("failed", "", res.Attempts)
	if cause != nil {
		l.log.Warn("acquire: aborted", "attempts", res.Attempts, "error", cause)
		return res, fmt.Errorf("acquire: %w", cause)
	}
	l.log.Warn("acquire: no upload target",
		"attempts", res.Attempts, "provocations", res.Provocations, "elapsed", res.Elapsed)
	return res, fmt.Errorf("acquire: after %d attempts and %d provocations: %w",
		res.Attempts, res.Provocations, dom.ErrNotAcquired)
}

// sleep suspends on the loop clock unless that would overdraw the budget.
func (l *Loop) sleep(ctx context.Context, r *run, d time.Duration) error {
	if r.slept+d > l.cfg.Budget() {
		return fmt.Errorf("budget %s spent: %w", l.cfg.Budget(), dom.ErrNotAcquired)
	}
	if err := l.cfg.Clock.Sleep(ctx, d); err != nil {
		return err
	}
	r.slept += d
	return nil
}

func (l *Loop) locate(ctx context.Context) *locator.Target {
	t, err := l.loc.Locate(ctx)
	if err != nil {
		l.log.Warn("acquire: locate failed", "error", err)
		return nil
	}
	return t
}

// triggers collects candidate upload triggers in selector order, keeping
// elements whose text mentions a keyword, without duplicates.
func (l *Loop) triggers(ctx context.Context) []dom.Element {
	seen := make(map[string]bool)
	var out []dom.Element
	for _, sel := range l.cfg.TriggerSelectors {
		els, err := l.doc.QueryAll(ctx, sel)
		if err != nil {
			l.log.Debug("acquire: query trigger failed", "selector", sel, "error", err)
			continue
		}
		for _, el := range els {
			text, err := el.Text(ctx)
			if err != nil || !l.mentionsKeyword(text) {
				continue
			}
			id, err := el.Identity(ctx)
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, el)
			if len(out) >= l.cfg.MaxProvocations {
				return out
			}
		}
	}
	return out
}

func (l *Loop) mentionsKeyword(text string) bool {
	text = strings.ToLower(text)
	for _, k := range l.cfg.TriggerKeywords {
		if strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Prefetch fills the cache with one locator pass when it holds no live
// target. It never sleeps and never provokes.
func (l *Loop) Prefetch(ctx context.Context) (*locator.Target, error) {
	if t := l.cache.Get(ctx); t != nil {
		return t, nil
	}
	t, err := l.loc.Locate(ctx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		l.cache.Set(t)
		l.log.Debug("acquire: prefetched target", "strategy", t.Strategy, "id", t.ID)
	}
	return t, nil
}
