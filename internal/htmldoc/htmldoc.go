// Package htmldoc is an in-memory dom.Document over golang.org/x/net/html.
// It models the parts of a live page pasteup relies on: selector queries in
// document order, attachment, child-list mutations, selected files,
// synthetic event delivery with bubbling, and paste listeners.
//
// It backs the unit tests and the -locate dry run of the command.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/pasteup/dom"
)

// Delivery records one event reaching one node.
type Delivery struct {
	Type       string
	Target     string // identity of the dispatching element
	Current    string // identity of the node the event reached
	Bubbles    bool
	Cancelable bool
	Pinned     bool
}

// Document is a mutable in-memory document. Safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	ids      map[*html.Node]string
	nextID   int
	files    map[*html.Node][]*dom.Payload
	handlers map[*html.Node][]handler
	subs     map[int]*subscription
	nextSub  int
	pastes   map[*html.Node]*pasteListener
	log      []Delivery
	focused  *html.Node
}

type handler struct {
	typ string
	fn  func(Delivery)
}

type subscription struct {
	root *html.Node
	fn   func(n int)
}

// Parse builds a Document from an HTML stream.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{
		root:     root,
		ids:      make(map[*html.Node]string),
		files:    make(map[*html.Node][]*dom.Payload),
		handlers: make(map[*html.Node][]handler),
		subs:     make(map[int]*subscription),
		pastes:   make(map[*html.Node]*pasteListener),
	}, nil
}

// MustParse is Parse on a string, panicking on error. Test helper.
func MustParse(s string) *Document {
	d, err := Parse(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return d
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := d.findLocked(selector)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &Element{doc: d, n: n}
	}
	return out, nil
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := d.findLocked(selector)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return &Element{doc: d, n: nodes[0]}
}

func (d *Document) findLocked(selector string) ([]*html.Node, error) {
	if _, err := cascadia.Compile(selector); err != nil {
		return nil, fmt.Errorf("htmldoc: selector %q: %w", selector, err)
	}
	return goquery.NewDocumentFromNode(d.root).Find(selector).Nodes, nil
}

// Contains implements dom.Document.
func (d *Document) Contains(_ context.Context, el dom.Element) (bool, error) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attachedLocked(e.n), nil
}

func (d *Document) attachedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Subscribe implements dom.Document. Callbacks run synchronously on the
// goroutine that mutated the document.
func (d *Document) Subscribe(_ context.Context, root string, fn func(n int)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := d.findLocked(root)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("htmldoc: subscribe %q: %w", root, dom.ErrRootNotFound)
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = &subscription{root: nodes[0], fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}, nil
}

// Append parses fragment and appends it to the first element matching
// parentSelector, notifying subscribers.
func (d *Document) Append(parentSelector, fragment string) error {
	d.mu.Lock()
	nodes, err := d.findLocked(parentSelector)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if len(nodes) == 0 {
		d.mu.Unlock()
		return fmt.Errorf("htmldoc: append: no element matches %q", parentSelector)
	}
	parent := nodes[0]
	children, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("htmldoc: append: %w", err)
	}
	for _, c := range children {
		parent.AppendChild(c)
	}
	notify := d.subscribersLocked(parent)
	d.mu.Unlock()

	for _, fn := range notify {
		fn(len(children))
	}
	return nil
}

// Remove detaches el from the document, notifying subscribers.
func (d *Document) Remove(el dom.Element) error {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return fmt.Errorf("htmldoc: remove: foreign element")
	}
	d.mu.Lock()
	parent := e.n.Parent
	if parent == nil {
		d.mu.Unlock()
		return nil
	}
	notify := d.subscribersLocked(parent)
	parent.RemoveChild(e.n)
	d.mu.Unlock()

	for _, fn := range notify {
		fn(1)
	}
	return nil
}

func (d *Document) subscribersLocked(changed *html.Node) []func(int) {
	var out []func(int)
	for _, s := range d.subs {
		for p := changed; p != nil; p = p.Parent {
			if p == s.root {
				out = append(out, s.fn)
				break
			}
		}
	}
	return out
}

// On registers fn for deliveries of typ reaching any element currently
// matching selector. Handlers run after the delivery is recorded, outside
// the document lock, so they may mutate the document.
func (d *Document) On(selector, typ string, fn func(Delivery)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := d.findLocked(selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		d.handlers[n] = append(d.handlers[n], handler{typ: typ, fn: fn})
	}
	return nil
}

// Deliveries returns every recorded delivery, oldest first.
func (d *Document) Deliveries() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Delivery(nil), d.log...)
}

// Count returns how many deliveries of typ reached el.
func (d *Document) Count(el dom.Element, typ string) int {
	e, ok := el.(*Element)
	if !ok {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.identityLocked(e.n)
	n := 0
	for _, dl := range d.log {
		if dl.Current == id && dl.Type == typ {
			n++
		}
	}
	return n
}

// Files returns the selected file list of el.
func (d *Document) Files(el dom.Element) []*dom.Payload {
	e, ok := el.(*Element)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*dom.Payload(nil), d.files[e.n]...)
}

type pasteListener struct{ h dom.PasteHandler }

// ListenPaste implements dom.Surface. A newer listener replaces the one
// already on the element; the older unbind then does nothing.
func (d *Document) ListenPaste(_ context.Context, selector string, h dom.PasteHandler) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := d.findLocked(selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("htmldoc: listen paste %q: %w", selector, dom.ErrSurfaceNotFound)
	}
	n := nodes[0]
	l := &pasteListener{h: h}
	d.pastes[n] = l
	return func() {
		d.mu.Lock()
		if d.pastes[n] == l {
			delete(d.pastes, n)
		}
		d.mu.Unlock()
	}, nil
}

// Paste simulates a paste on the first element matching selector and
// returns whether the bound listener prevented the default action.
func (d *Document) Paste(selector string, items ...dom.PasteItem) (bool, error) {
	d.mu.Lock()
	nodes, err := d.findLocked(selector)
	if err != nil {
		d.mu.Unlock()
		return false, err
	}
	if len(nodes) == 0 {
		d.mu.Unlock()
		return false, fmt.Errorf("htmldoc: paste %q: %w", selector, dom.ErrSurfaceNotFound)
	}
	l := d.pastes[nodes[0]]
	d.mu.Unlock()
	if l == nil || l.h == nil {
		return false, nil
	}
	return l.h(items), nil
}

// Focused returns the currently focused element, or nil.
func (d *Document) Focused() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focused == nil {
		return nil
	}
	return &Element{doc: d, n: d.focused}
}

func (d *Document) identityLocked(n *html.Node) string {
	id, ok := d.ids[n]
	if !ok {
		d.nextID++
		id = "n" + strconv.Itoa(d.nextID)
		d.ids[n] = id
	}
	return id
}

// dispatch records ev at n and, when it bubbles, at every ancestor element.
func (d *Document) dispatch(n *html.Node, ev dom.Event) {
	d.mu.Lock()
	target := d.identityLocked(n)
	var fire []func()
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			break
		}
		dl := Delivery{
			Type:       ev.Type,
			Target:     target,
			Current:    d.identityLocked(cur),
			Bubbles:    ev.Bubbles,
			Cancelable: ev.Cancelable,
			Pinned:     ev.PinTarget,
		}
		d.log = append(d.log, dl)
		for _, h := range d.handlers[cur] {
			if h.typ == ev.Type {
				fn := h.fn
				fire = append(fire, func() { fn(dl) })
			}
		}
		if !ev.Bubbles {
			break
		}
	}
	d.mu.Unlock()

	for _, f := range fire {
		f()
	}
}

// Element is a handle on a node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*Element)(nil)

func (e *Element) Identity(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.identityLocked(e.n), nil
}

func (e *Element) Attr(_ context.Context, name string) (string, bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, a := range e.n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return goquery.NewDocumentFromNode(e.n).Text(), nil
}

func (e *Element) SetFiles(_ context.Context, files []*dom.Payload) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.files[e.n] = append([]*dom.Payload(nil), files...)
	return nil
}

func (e *Element) Dispatch(_ context.Context, ev dom.Event) error {
	e.doc.dispatch(e.n, ev)
	return nil
}

func (e *Element) Focus(context.Context) error {
	e.doc.mu.Lock()
	e.doc.focused = e.n
	e.doc.mu.Unlock()
	e.doc.dispatch(e.n, dom.Event{Type: dom.EventFocus})
	return nil
}

func (e *Element) Blur(context.Context) error {
	e.doc.mu.Lock()
	if e.doc.focused == e.n {
		e.doc.focused = nil
	}
	e.doc.mu.Unlock()
	e.doc.dispatch(e.n, dom.Event{Type: dom.EventBlur})
	return nil
}

func (e *Element) Click(context.Context) error {
	e.doc.dispatch(e.n, dom.Event{Type: dom.EventClick, Bubbles: true, Cancelable: true})
	return nil
}

func (e *Element) Ancestors(context.Context) ([]dom.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var out []dom.Element
	for p := e.n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if p.DataAtom == atom.Body || p.DataAtom == atom.Html {
			break
		}
		out = append(out, &Element{doc: e.doc, n: p})
	}
	return out, nil
}

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return e.n.Data }
