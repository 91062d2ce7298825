package browser

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/pasteup/dom"
)

var (
	//go:embed js/observe.js
	observeJS string
	//go:embed js/unobserve.js
	unobserveJS string
	//go:embed js/paste.js
	pasteJS string
	//go:embed js/unpaste.js
	unpasteJS string
	//go:embed js/setfiles.js
	setFilesJS string
	//go:embed js/dispatch.js
	dispatchJS string
	//go:embed js/notify.js
	notifyJS string
)

// Document is a live page, or one iframe inside it, seen as a dom.Document
// and dom.Surface.
type Document struct {
	tab    *Tab
	frame  string // iframe selector, empty for the top document
	logger *slog.Logger
}

// frameDoc resolves the rod page backing this document. The iframe is
// resolved on every call: host pages remount them.
func (d *Document) frameDoc(ctx context.Context) (*rod.Page, error) {
	p := d.tab.Page.Context(ctx)
	if d.frame == "" {
		return p, nil
	}
	el, err := p.Sleeper(rod.NotFoundSleeper).Element(d.frame)
	if err != nil {
		return nil, fmt.Errorf("browser: frame %q: %w", d.frame, err)
	}
	f, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("browser: frame %q: %w", d.frame, err)
	}
	return f.Context(ctx), nil
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	p, err := d.frameDoc(ctx)
	if err != nil {
		return nil, err
	}
	els, err := p.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}

// Contains implements dom.Document. A handle whose remote object is gone
// (navigation, frame teardown) is reported as detached.
func (d *Document) Contains(ctx context.Context, el dom.Element) (bool, error) {
	e, ok := el.(*Element)
	if !ok || e == nil {
		return false, nil
	}
	res, err := e.el.Context(ctx).Eval(`() => this.isConnected`)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return res.Value.Bool(), nil
}

// Subscribe implements dom.Document with an injected MutationObserver.
func (d *Document) Subscribe(ctx context.Context, root string, fn func(n int)) (func(), error) {
	if err := d.tab.hub.start(ctx); err != nil {
		return nil, err
	}
	el, err := d.first(ctx, root)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("browser: subscribe %q: %w", root, dom.ErrRootNotFound)
	}

	id := d.tab.hub.register(func(m message) {
		if m.Kind == "mutation" {
			fn(m.N)
		}
	})
	if _, err := el.Context(ctx).Eval(observeJS, id); err != nil {
		d.tab.hub.unregister(id)
		return nil, fmt.Errorf("browser: inject observer: %w", err)
	}
	d.logger.Debug("browser: observing", "root", root, "frame", d.frame, "sub", id)

	return func() {
		d.tab.hub.unregister(id)
		// The observer lives in the element's document, which may be a frame.
		if _, err := el.Eval(unobserveJS, id); err != nil {
			d.logger.Debug("browser: disconnect observer", "sub", id, "error", err)
		}
	}, nil
}

// ListenPaste implements dom.Surface. Decoded image data is handed to h on
// the binding goroutine. The default action is suppressed in page, before
// h runs, whenever an image file is attached. A listener left on the
// element by an earlier process is removed first.
func (d *Document) ListenPaste(ctx context.Context, selector string, h dom.PasteHandler) (func(), error) {
	if err := d.tab.hub.start(ctx); err != nil {
		return nil, err
	}
	el, err := d.first(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("browser: listen paste %q: %w", selector, dom.ErrSurfaceNotFound)
	}

	id := d.tab.hub.register(func(m message) {
		if m.Kind == "paste" {
			h(decodeItems(m.Items))
		}
	})
	res, err := el.Context(ctx).Eval(pasteJS, id)
	if err != nil {
		d.tab.hub.unregister(id)
		return nil, fmt.Errorf("browser: inject paste listener: %w", err)
	}
	if res.Value.Bool() {
		d.logger.Info("browser: replaced stale paste listener", "selector", selector, "id", id)
	}

	return func() {
		d.tab.hub.unregister(id)
		if _, err := el.Eval(unpasteJS, id); err != nil {
			d.logger.Debug("browser: remove paste listener", "error", err)
		}
	}, nil
}

func (d *Document) first(ctx context.Context, selector string) (*rod.Element, error) {
	p, err := d.frameDoc(ctx)
	if err != nil {
		return nil, err
	}
	el, err := p.Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return el, nil
}

// decodeItems turns binding items into paste items. Image entries whose
// data does not decode are dropped.
func decodeItems(in []jsItem) []dom.PasteItem {
	out := make([]dom.PasteItem, 0, len(in))
	for _, it := range in {
		item := dom.PasteItem{Name: it.Name, Type: it.Type}
		if it.Data != "" {
			data, err := base64.StdEncoding.DecodeString(it.Data)
			if err != nil {
				continue
			}
			item.Data = data
		}
		out = append(out, item)
	}
	return out
}
