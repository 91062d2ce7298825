package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/htmldoc"
	"github.com/hazyhaar/pasteup/internal/locator"
)

const page = `<body><form id="f"><input type="file" accept="image/*"></form></body>`

func TestCache_EmptyGet(t *testing.T) {
	c := New(htmldoc.MustParse(page), nil)
	if got := c.Get(context.Background()); got != nil {
		t.Errorf("Get on empty cache: got %+v", got)
	}
}

func TestCache_SetGet(t *testing.T) {
	doc := htmldoc.MustParse(page)
	ctx := context.Background()
	tgt, err := locator.New(doc, locator.Config{}).Locate(ctx)
	if err != nil || tgt == nil {
		t.Fatalf("Locate: %v %v", tgt, err)
	}

	c := New(doc, nil)
	c.Set(tgt)
	if got := c.Get(ctx); got != tgt {
		t.Errorf("Get: got %+v, want %+v", got, tgt)
	}
}

// flakyDoc fails liveness checks while down is set.
type flakyDoc struct {
	*htmldoc.Document
	down bool
}

func (d *flakyDoc) Contains(ctx context.Context, el dom.Element) (bool, error) {
	if d.down {
		return false, errors.New("cdp: connection reset")
	}
	return d.Document.Contains(ctx, el)
}

func TestCache_CheckErrorKeepsEntry(t *testing.T) {
	doc := &flakyDoc{Document: htmldoc.MustParse(page)}
	ctx := context.Background()
	tgt, _ := locator.New(doc, locator.Config{}).Locate(ctx)

	c := New(doc, nil)
	c.Set(tgt)
	doc.down = true
	if got := c.Get(ctx); got != nil {
		t.Errorf("Get during failed check: got %+v", got)
	}
	if c.Peek() != tgt {
		t.Fatal("failed check evicted a live target")
	}
	doc.down = false
	if got := c.Get(ctx); got != tgt {
		t.Errorf("Get after recovery: got %+v, want %+v", got, tgt)
	}
}

func TestCache_StaleEntryCleared(t *testing.T) {
	doc := htmldoc.MustParse(page)
	ctx := context.Background()
	tgt, _ := locator.New(doc, locator.Config{}).Locate(ctx)

	c := New(doc, nil)
	c.Set(tgt)
	if err := doc.Remove(doc.First("form")); err != nil {
		t.Fatal(err)
	}

	if got := c.Get(ctx); got != nil {
		t.Errorf("Get after detach: got %+v, want nil", got)
	}
	if c.Peek() != nil {
		t.Error("stale entry should have been cleared")
	}
}

func TestCache_PeekSkipsLiveness(t *testing.T) {
	doc := htmldoc.MustParse(page)
	tgt, _ := locator.New(doc, locator.Config{}).Locate(context.Background())

	c := New(doc, nil)
	c.Set(tgt)
	doc.Remove(doc.First("form"))
	if c.Peek() != tgt {
		t.Error("Peek should return the entry without checking it")
	}
	c.Clear()
	if c.Peek() != nil {
		t.Error("Clear should drop the entry")
	}
}
