package observer

import (
	"sync"
	"time"
)

// debounceConfig controls how raw mutation signals are grouped.
type debounceConfig struct {
	// Window is the quiet period that closes a batch. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many nodes accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer counts mutated nodes and fires flushFn once per batch, when the
// window expires or the buffer fills. Safe for concurrent add.
type debouncer struct {
	cfg     debounceConfig
	mu      sync.Mutex
	pending int
	timer   *time.Timer
	gen     uint64
	flushFn func(n int)
}

func newDebouncer(cfg debounceConfig, flushFn func(n int)) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// add records n mutated nodes. Returns true if it triggered an immediate
// flush (buffer full).
func (d *debouncer) add(n int) bool {
	if n <= 0 {
		n = 1
	}
	d.mu.Lock()
	d.pending += n
	if d.pending >= d.cfg.MaxBuffer {
		d.mu.Unlock()
		d.flush()
		return true
	}

	// (Re)start the window timer. gen discards timers stopped too late.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.cfg.Window, func() { d.expire(gen) })
	d.mu.Unlock()
	return false
}

func (d *debouncer) expire(gen uint64) {
	d.mu.Lock()
	stale := gen != d.gen
	d.mu.Unlock()
	if !stale {
		d.flush()
	}
}

// flush emits the pending batch, if any, and resets.
func (d *debouncer) flush() {
	d.mu.Lock()
	n := d.pending
	d.pending = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.mu.Unlock()

	if n > 0 {
		d.flushFn(n)
	}
}

// stop drops any pending batch without emitting it.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.pending = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.mu.Unlock()
}
