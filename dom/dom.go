// Package dom defines the host-document capability pasteup drives. The host
// page is untrusted and owned by someone else: everything here is a handle
// into state pasteup does not control.
//
// Two backends implement these interfaces: a live rod page (or one of its
// embedded frames) and an in-memory HTML tree used by tests and dry runs.
package dom

import "context"

// Document is a queryable, observable document tree.
type Document interface {
	// QueryAll returns every element matching a CSS selector, in document
	// order. No match is an empty slice, not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Contains reports whether el is still attached to this document.
	// Handles that can no longer be resolved report false.
	Contains(ctx context.Context, el Element) (bool, error)

	// Subscribe calls fn for every raw batch of child-list mutations under
	// the first element matching root, at any depth. It returns
	// ErrRootNotFound when root matches nothing.
	Subscribe(ctx context.Context, root string, fn func(n int)) (stop func(), err error)
}

// Element is a handle on one element of a Document.
type Element interface {
	// Identity is stable for the lifetime of the underlying node, across
	// handles obtained by separate queries.
	Identity(ctx context.Context) (string, error)

	Attr(ctx context.Context, name string) (value string, ok bool, err error)

	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)

	// SetFiles replaces the element's selected file list so that reading it
	// back yields exactly files.
	SetFiles(ctx context.Context, files []*Payload) error

	Dispatch(ctx context.Context, ev Event) error
	Focus(ctx context.Context) error
	Blur(ctx context.Context) error

	// Click is a synthetic activation, equivalent to el.click() in page.
	Click(ctx context.Context) error

	// Ancestors lists parents from the nearest outward, stopping before the
	// document body.
	Ancestors(ctx context.Context) ([]Element, error)
}

// Event describes a synthetic notification.
type Event struct {
	Type       string
	Bubbles    bool
	Cancelable bool

	// PinTarget redefines event.target as the dispatching element, for
	// frameworks that re-derive the acting element from the event.
	PinTarget bool
}

// Common event names.
const (
	EventInput  = "input"
	EventChange = "change"
	EventFocus  = "focus"
	EventBlur   = "blur"
	EventClick  = "click"
)

// PasteItem is one file entry attached to a paste.
type PasteItem struct {
	Name string
	Type string
	Data []byte
}

// PasteHandler inspects a paste and reports whether its default action must
// be suppressed. It runs on the surface's event goroutine and must not block.
type PasteHandler func(items []PasteItem) (preventDefault bool)

// Surface is an editable region that can be bound to a paste listener.
type Surface interface {
	// ListenPaste binds h to the first element matching selector. A paste
	// listener already on that element, including one left by an earlier
	// process, is replaced; callers keep their own binding idempotent.
	// ErrSurfaceNotFound when nothing matches.
	ListenPaste(ctx context.Context, selector string, h PasteHandler) (unbind func(), err error)
}

// Page is a document that also hosts the editable surface.
type Page interface {
	Document
	Surface
}
