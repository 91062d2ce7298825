package acquire

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/cache"
	"github.com/hazyhaar/pasteup/internal/htmldoc"
	"github.com/hazyhaar/pasteup/internal/locator"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newLoop(doc *htmldoc.Document, clock Clock) *Loop {
	loc := locator.New(doc, locator.Config{})
	return New(doc, loc, cache.New(doc, nil), Config{Clock: clock})
}

func TestAcquire_FoundImmediately(t *testing.T) {
	doc := htmldoc.MustParse(`<body><input type="file" accept="image/*"></body>`)
	clock := NewVirtualClock(epoch)

	res, err := newLoop(doc, clock).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if res.State != Acquired || res.Attempts != 1 || res.FromCache {
		t.Errorf("result = %+v", res)
	}
	if res.Target.Strategy != locator.StrategyAcceptImage {
		t.Errorf("strategy: got %s", res.Target.Strategy)
	}
	if got := clock.Sleeps(); len(got) != 0 {
		t.Errorf("slept %v, want no sleep", got)
	}
	want := []State{Idle, Searching, Acquired}
	if !equalPath(res.Path, want) {
		t.Errorf("path: got %v, want %v", res.Path, want)
	}
}

func TestAcquire_CacheHit(t *testing.T) {
	doc := htmldoc.MustParse(`<body><input type="file"></body>`)
	l := newLoop(doc, NewVirtualClock(epoch))
	ctx := context.Background()

	first, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache || second.Attempts != 0 {
		t.Errorf("second acquisition should come from cache: %+v", second)
	}
	if second.Target.ID != first.Target.ID {
		t.Errorf("cached target %s, want %s", second.Target.ID, first.Target.ID)
	}
	if !equalPath(second.Path, []State{Idle, Acquired}) {
		t.Errorf("path: got %v", second.Path)
	}
}

func TestAcquire_CacheDetachedRelocates(t *testing.T) {
	doc := htmldoc.MustParse(`<body><div id="dlg"><input type="file" accept="image/*"></div></body>`)
	l := newLoop(doc, NewVirtualClock(epoch))
	ctx := context.Background()

	first, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.Remove(doc.First("#dlg")); err != nil {
		t.Fatal(err)
	}
	if err := doc.Append("body", `<input type="file" accept="image/png" id="fresh">`); err != nil {
		t.Fatal(err)
	}

	second, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.FromCache {
		t.Error("detached target must not be served from cache")
	}
	if second.Target.ID == first.Target.ID {
		t.Error("expected a new target identity")
	}
	id, _, _ := second.Target.Element.Attr(ctx, "id")
	if id != "fresh" {
		t.Errorf("target id attr: got %q, want fresh", id)
	}
}

func TestAcquire_BoundedFailure(t *testing.T) {
	doc := htmldoc.MustParse(`<body><p>nothing to upload into</p><button>Send</button></body>`)
	clock := NewVirtualClock(epoch)

	res, err := newLoop(doc, clock).Acquire(context.Background())
	if !errors.Is(err, dom.ErrNotAcquired) {
		t.Fatalf("error: got %v, want ErrNotAcquired", err)
	}
	if res.State != Failed || res.Target != nil {
		t.Errorf("result = %+v", res)
	}
	if res.Attempts != 20 {
		t.Errorf("attempts: got %d, want 20", res.Attempts)
	}
	if res.Provocations != 0 {
		t.Errorf("provocations: got %d, want 0 (no trigger mentions a keyword)", res.Provocations)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 19 {
		t.Fatalf("sleeps: got %d, want 19", len(sleeps))
	}
	for i, d := range sleeps {
		if d != time.Second {
			t.Errorf("sleep %d: got %s, want 1s", i, d)
		}
	}
	if res.Elapsed != 19*time.Second {
		t.Errorf("elapsed: got %s, want 19s", res.Elapsed)
	}
	last := res.Path[len(res.Path)-2:]
	if !equalPath(last, []State{Provoking, Failed}) {
		t.Errorf("path tail: got %v", last)
	}
}

func TestAcquire_ProvocationMountsTarget(t *testing.T) {
	doc := htmldoc.MustParse(`<body>
		<button id="send">Send</button>
		<button id="attach">Upload file</button>
	</body>`)
	clicks := map[string]int{}
	for _, id := range []string{"send", "attach"} {
		id := id
		err := doc.On("#"+id, dom.EventClick, func(htmldoc.Delivery) {
			clicks[id]++
			if id == "attach" {
				doc.Append("body", `<input type="file" accept="image/*">`)
			}
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	clock := NewVirtualClock(epoch)

	res, err := newLoop(doc, clock).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if res.State != Acquired || res.Provocations != 1 {
		t.Errorf("result = %+v", res)
	}
	if clicks["attach"] != 1 || clicks["send"] != 0 {
		t.Errorf("clicks = %v", clicks)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 20 || sleeps[19] != 2*time.Second {
		t.Errorf("sleeps: got %v, want 19x1s then 2s", sleeps)
	}
	if res.Path[len(res.Path)-1] != Acquired || res.Path[len(res.Path)-2] != Provoking {
		t.Errorf("path: got %v", res.Path)
	}
}

func TestAcquire_TriggersDedupedAndCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<body>`)
	// Matched by both [class*="upload"] and button: clicked once.
	b.WriteString(`<button class="upload-btn" id="dup">Upload</button>`)
	for i := 0; i < 12; i++ {
		b.WriteString(`<button class="x">Attach file</button>`)
	}
	b.WriteString(`</body>`)
	doc := htmldoc.MustParse(b.String())

	dup := 0
	doc.On("#dup", dom.EventClick, func(htmldoc.Delivery) { dup++ })

	res, err := newLoop(doc, NewVirtualClock(epoch)).Acquire(context.Background())
	if !errors.Is(err, dom.ErrNotAcquired) {
		t.Fatalf("error: got %v", err)
	}
	if res.Provocations != 10 {
		t.Errorf("provocations: got %d, want 10", res.Provocations)
	}
	if dup != 1 {
		t.Errorf("duplicate trigger clicked %d times, want 1", dup)
	}
}

// slowDoc charges every query to the clock, like a CDP round trip.
type slowDoc struct {
	*htmldoc.Document
	clock *VirtualClock
	cost  time.Duration
}

func (d slowDoc) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	d.clock.Advance(d.cost)
	return d.Document.QueryAll(ctx, selector)
}

func TestAcquire_RoundTripsDoNotEatBudget(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<body>`)
	for i := 0; i < 10; i++ {
		b.WriteString(`<button>Upload file</button>`)
	}
	b.WriteString(`</body>`)
	clock := NewVirtualClock(epoch)
	doc := slowDoc{htmldoc.MustParse(b.String()), clock, 250 * time.Millisecond}

	loc := locator.New(doc, locator.Config{})
	l := New(doc, loc, cache.New(doc, nil), Config{Clock: clock})
	res, err := l.Acquire(context.Background())
	if !errors.Is(err, dom.ErrNotAcquired) {
		t.Fatalf("error: got %v", err)
	}
	if res.Provocations != 10 {
		t.Errorf("provocations: got %d, want 10", res.Provocations)
	}
	if got := len(clock.Sleeps()); got != 29 {
		t.Errorf("sleeps: got %d, want 19 delays and 10 pauses", got)
	}
	if res.Elapsed <= l.Config().Budget() {
		t.Errorf("elapsed %s should include round trips beyond the %s budget", res.Elapsed, l.Config().Budget())
	}
}

func TestAcquire_Canceled(t *testing.T) {
	doc := htmldoc.MustParse(`<body></body>`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newLoop(doc, NewVirtualClock(epoch)).Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	if res.State != Failed {
		t.Errorf("state: got %s", res.State)
	}
}

func TestPrefetch(t *testing.T) {
	doc := htmldoc.MustParse(`<body></body>`)
	clock := NewVirtualClock(epoch)
	l := newLoop(doc, clock)
	ctx := context.Background()

	got, err := l.Prefetch(ctx)
	if err != nil || got != nil {
		t.Fatalf("Prefetch on empty page: %v %v", got, err)
	}
	doc.Append("body", `<input type="file">`)
	got, err = l.Prefetch(ctx)
	if err != nil || got == nil {
		t.Fatalf("Prefetch: %v %v", got, err)
	}

	res, err := l.Acquire(ctx)
	if err != nil || !res.FromCache {
		t.Errorf("Acquire after prefetch: %+v %v", res, err)
	}
	if len(clock.Sleeps()) != 0 {
		t.Error("Prefetch must not sleep")
	}
}

func TestBudget(t *testing.T) {
	cfg := Config{}
	cfg.defaults()
	if got := cfg.Budget(); got != 40*time.Second {
		t.Errorf("Budget: got %s, want 40s", got)
	}
}

func equalPath(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
