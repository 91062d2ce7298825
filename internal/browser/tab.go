package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pasteup/internal/notify"
)

// Tab wraps the Rod page holding the editor.
type Tab struct {
	Page    *rod.Page
	PageURL string

	hub    *hub
	router *rod.HijackRouter
	owned  bool
}

// OpenTab creates a new stealth tab and navigates to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, PageURL: pageURL, owned: true}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	t.hub = newHub(page, mgr.cfg.Logger)
	return t, nil
}

// AttachTab finds an open page whose URL contains match. It is used with a
// remote Chrome where the editor is already open and signed in.
func AttachTab(ctx context.Context, mgr *Manager, match string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || string(info.Type) != "page" {
			continue
		}
		if match == "" || strings.Contains(info.URL, match) {
			mgr.cfg.Logger.Info("browser: attached to page", "url", info.URL)
			return &Tab{Page: p, PageURL: info.URL, hub: newHub(p, mgr.cfg.Logger)}, nil
		}
	}
	return nil, fmt.Errorf("browser: no open page matches %q", match)
}

// Document returns the tab's top document, or the iframe matching frame.
func (t *Tab) Document(frame string) *Document {
	return &Document{tab: t, frame: frame, logger: t.hub.logger}
}

// Notifier returns a notify.Notifier that draws into the top document.
func (t *Tab) Notifier(d time.Duration) *Notifier {
	if d <= 0 {
		d = notify.DefaultDuration
	}
	return &Notifier{tab: t, duration: d}
}

// Close closes the tab if pasteup opened it. Attached pages stay open.
func (t *Tab) Close() error {
	if t.hub != nil {
		t.hub.close()
	}
	if t.router != nil {
		t.router.Stop()
	}
	if t.owned && t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// Notifier shows notifications as a fixed element in the page.
type Notifier struct {
	tab      *Tab
	duration time.Duration
}

// Show replaces any live notification with message.
func (n *Notifier) Show(ctx context.Context, message string, sev notify.Severity) error {
	_, err := n.tab.Page.Context(ctx).Eval(notifyJS, notify.Sanitize(message), string(sev), n.duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("browser: notify: %w", err)
	}
	return nil
}
