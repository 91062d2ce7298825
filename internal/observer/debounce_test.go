package observer

import (
	"sync"
	"testing"
	"time"
)

type flushes struct {
	mu  sync.Mutex
	got []int
}

func (f *flushes) add(n int) {
	f.mu.Lock()
	f.got = append(f.got, n)
	f.mu.Unlock()
}

func (f *flushes) snapshot() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.got...)
}

func TestDebouncer_WindowGroupsBurst(t *testing.T) {
	var f flushes
	d := newDebouncer(debounceConfig{Window: 30 * time.Millisecond, MaxBuffer: 100}, f.add)

	for i := 0; i < 5; i++ {
		d.add(2)
	}
	time.Sleep(120 * time.Millisecond)

	got := f.snapshot()
	if len(got) != 1 || got[0] != 10 {
		t.Errorf("flushes: got %v, want [10]", got)
	}
}

func TestDebouncer_MaxBufferFlushesEarly(t *testing.T) {
	var f flushes
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 5}, f.add)

	if d.add(3) {
		t.Error("add(3) should not flush")
	}
	if !d.add(3) {
		t.Error("add(3) past the buffer should flush")
	}
	got := f.snapshot()
	if len(got) != 1 || got[0] != 6 {
		t.Errorf("flushes: got %v, want [6]", got)
	}
}

func TestDebouncer_ZeroCountsAsOne(t *testing.T) {
	var f flushes
	d := newDebouncer(debounceConfig{Window: 10 * time.Millisecond}, f.add)
	d.add(0)
	time.Sleep(60 * time.Millisecond)
	if got := f.snapshot(); len(got) != 1 || got[0] != 1 {
		t.Errorf("flushes: got %v, want [1]", got)
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var f flushes
	d := newDebouncer(debounceConfig{Window: 20 * time.Millisecond}, f.add)
	d.add(4)
	d.stop()
	time.Sleep(60 * time.Millisecond)
	if got := f.snapshot(); len(got) != 0 {
		t.Errorf("flushes after stop: got %v, want none", got)
	}
}

func TestDebouncer_Defaults(t *testing.T) {
	d := newDebouncer(debounceConfig{}, func(int) {})
	if d.cfg.Window != 250*time.Millisecond || d.cfg.MaxBuffer != 1000 {
		t.Errorf("defaults: %+v", d.cfg)
	}
}
