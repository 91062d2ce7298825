package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// bindingName is the page global the injected scripts call into.
const bindingName = "__pasteup_binding"

// message is what the injected scripts send through the binding.
type message struct {
	Kind  string   `json:"kind"` // mutation | paste
	ID    string   `json:"id"`
	N     int      `json:"n,omitempty"`
	Items []jsItem `json:"items,omitempty"`
}

type jsItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"` // base64, empty for non-image files
}

// hub owns the page binding and routes its calls to subscribers by ID.
// One hub serves every Document opened on the same page.
type hub struct {
	page   *rod.Page
	logger *slog.Logger

	once   sync.Once
	err    error
	nextID atomic.Uint64
	mu     sync.Mutex
	subs   map[string]func(message)
	cancel context.CancelFunc
}

func newHub(page *rod.Page, logger *slog.Logger) *hub {
	return &hub{page: page, logger: logger, subs: make(map[string]func(message))}
}

// start installs the binding and the event listener once.
func (h *hub) start(ctx context.Context) error {
	h.once.Do(func() {
		if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(h.page); err != nil {
			h.err = fmt.Errorf("browser: add binding: %w", err)
			return
		}
		lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		h.cancel = cancel
		wait := h.page.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			h.dispatch(e.Payload)
		})
		go wait()
		h.logger.Debug("browser: binding installed", "name", bindingName)
	})
	return h.err
}

// register returns a fresh subscription ID routed to fn.
func (h *hub) register(fn func(message)) string {
	id := "s" + strconv.FormatUint(h.nextID.Add(1), 10)
	h.mu.Lock()
	h.subs[id] = fn
	h.mu.Unlock()
	return id
}

func (h *hub) unregister(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *hub) dispatch(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		h.logger.Warn("browser: parse binding payload", "error", err)
		return
	}
	h.mu.Lock()
	fn := h.subs[m.ID]
	h.mu.Unlock()
	if fn == nil {
		return
	}
	fn(m)
}

func (h *hub) close() {
	if h.cancel != nil {
		h.cancel()
	}
}
