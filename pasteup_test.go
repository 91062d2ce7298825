package pasteup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/acquire"
	"github.com/hazyhaar/pasteup/internal/bridge"
	"github.com/hazyhaar/pasteup/internal/htmldoc"
	"github.com/hazyhaar/pasteup/internal/notify"
	"github.com/hazyhaar/pasteup/report"
)

const editorDiv = `<div class="tiptap ProseMirror" contenteditable="true" id="ed"></div>`

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type collector struct {
	mu  sync.Mutex
	got []report.Upload
}

func (c *collector) send(_ context.Context, u report.Upload) error {
	c.mu.Lock()
	c.got = append(c.got, u)
	c.mu.Unlock()
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *collector) last() report.Upload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got[len(c.got)-1]
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sinks = []SinkConfig{{Type: "sqlite", Path: ":memory:"}}
	cfg.Observer.Window = 10 * time.Millisecond
	cfg.Warmup.Interval = 10 * time.Millisecond
	cfg.Warmup.Ticks = 3
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startService(t *testing.T, doc *htmldoc.Document, c *collector) *Service {
	t.Helper()
	svc, err := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithPage(doc, nil),
		WithClock(acquire.NewVirtualClock(time.Unix(0, 0))),
		WithNotifier(notify.NewRecorder(nil, 0)),
		WithSinks(NewCallbackSink(c.send)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestService_BindsLateEditorAndInjects(t *testing.T) {
	doc := htmldoc.MustParse(`<body><main id="app"><input type="file" accept="image/*" id="in"></main></body>`)
	c := &collector{}
	svc := startService(t, doc, c)
	ctx := context.Background()

	if svc.Status(ctx).Bound {
		t.Fatal("bound before the editor exists")
	}
	waitFor(t, "target prefetch", func() bool { return svc.Status(ctx).Cached })

	if err := doc.Append("#app", editorDiv); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "editor binding", func() bool { return svc.Status(ctx).Bound })

	prevented, err := doc.Paste("#ed", dom.PasteItem{Name: "shot.png", Type: "image/png", Data: pngBytes})
	if err != nil || !prevented {
		t.Fatalf("Paste: prevented=%v err=%v", prevented, err)
	}
	waitFor(t, "upload report", func() bool { return c.len() == 1 })

	u := c.last()
	if !u.Success || u.Source != report.SourcePaste || u.Strategy != "cache" {
		t.Errorf("report = %+v", u)
	}
	if files := doc.Files(doc.First("#in")); len(files) != 1 || files[0].Name != "shot.png" {
		t.Errorf("files = %+v", files)
	}

	st := svc.Status(ctx)
	if len(st.Recent) != 1 || st.Recent[0].ID != u.ID {
		t.Errorf("journal recent = %+v", st.Recent)
	}
}

func TestService_RemountedEditorRebinds(t *testing.T) {
	doc := htmldoc.MustParse(`<body><main id="app">` + editorDiv + `</main></body>`)
	svc := startService(t, doc, &collector{})
	ctx := context.Background()

	waitFor(t, "initial binding", func() bool { return svc.Status(ctx).Bound })
	first := svc.Status(ctx).SessionID

	if err := doc.Remove(doc.First("#ed")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "unbind", func() bool { return !svc.Status(ctx).Bound })

	doc.Append("#app", editorDiv)
	waitFor(t, "rebinding", func() bool {
		st := svc.Status(ctx)
		return st.Bound && st.SessionID != first
	})
}

func TestService_TargetFrame(t *testing.T) {
	top := htmldoc.MustParse(`<body>` + editorDiv + `</body>`)
	frame := htmldoc.MustParse(`<body><form><input type="file" accept="image/png" id="in"></form></body>`)
	c := &collector{}
	svc, err := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithPage(top, frame),
		WithClock(acquire.NewVirtualClock(time.Unix(0, 0))),
		WithNotifier(notify.NewRecorder(nil, 0)),
		WithSinks(NewCallbackSink(c.send)),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	waitFor(t, "editor binding", func() bool { return svc.Status(ctx).Bound })
	if _, err := top.Paste("#ed", dom.PasteItem{Name: "shot.png", Type: "image/png", Data: pngBytes}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "upload report", func() bool { return c.len() == 1 })

	if !c.last().Success {
		t.Errorf("report = %+v", c.last())
	}
	if files := frame.Files(frame.First("#in")); len(files) != 1 || files[0].Name != "shot.png" {
		t.Errorf("frame files = %+v", files)
	}
	if top.First("input") != nil {
		t.Error("top document gained an input")
	}
}

func TestService_PasteWithoutEditor(t *testing.T) {
	doc := htmldoc.MustParse(`<body><form><input type="file"></form></body>`)
	c := &collector{}
	svc := startService(t, doc, c)

	p, _ := dom.NewPayload("api.png", "image/png", pngBytes)
	u, err := svc.Paste(context.Background(), p, report.SourceHTTP)
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if !u.Success || u.Source != report.SourceHTTP {
		t.Errorf("report = %+v", u)
	}
	if c.len() != 1 {
		t.Errorf("callback sink got %d reports", c.len())
	}
}

func TestService_NotAcquired(t *testing.T) {
	doc := htmldoc.MustParse(`<body>` + editorDiv + `</body>`)
	svc := startService(t, doc, &collector{})

	p, _ := dom.NewPayload("", "", pngBytes)
	u, err := svc.Paste(context.Background(), p, report.SourceMCP)
	if !errors.Is(err, dom.ErrNotAcquired) {
		t.Fatalf("error: got %v", err)
	}
	if u.Reason != report.ReasonNotAcquired || u.Name != dom.DefaultName {
		t.Errorf("report = %+v", u)
	}
}

func TestService_NotStarted(t *testing.T) {
	cfg := testConfig()
	cfg.Sinks = nil
	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := dom.NewPayload("a.png", "image/png", pngBytes)
	if _, err := svc.Paste(context.Background(), p, report.SourceHTTP); !errors.Is(err, bridge.ErrNotStarted) {
		t.Errorf("error: got %v", err)
	}
	svc.Stop()
}

func TestNew_BadSink(t *testing.T) {
	cfg := testConfig()
	cfg.Sinks = []SinkConfig{{Type: "carrier-pigeon"}}
	if _, err := New(cfg, nil); err == nil {
		t.Error("unknown sink type accepted")
	}
}
