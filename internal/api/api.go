// Package api is the pasteup control plane: a small HTTP API for external
// supervisors, an MCP endpoint exposing the same operations as tools, the
// bundled test asset and Prometheus metrics.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/shield"
	"github.com/hazyhaar/pasteup/report"
)

//go:embed assets
var assetFS embed.FS

// Assets is the bundled asset tree, rooted at its files.
var Assets, _ = fs.Sub(assetFS, "assets")

// TestImage is the name of the bundled test image.
const TestImage = "test-image.png"

// DefaultMaxBody caps POST /api/paste bodies.
const DefaultMaxBody = 32 << 20

// Pipeline is what the control plane drives.
type Pipeline interface {
	Paste(ctx context.Context, p *dom.Payload, src report.Source) (*report.Upload, error)
	Status(ctx context.Context) report.Status
}

// Config configures the handler.
type Config struct {
	Pipeline Pipeline
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// MCP mounts the streamable MCP endpoint on /mcp.
	MCP     bool
	MaxBody int64
	Version string
	Logger  *slog.Logger
}

// New builds the control-plane router.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	h := &handler{p: cfg.Pipeline, logger: cfg.Logger}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(cfg.Logger, cfg.MaxBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/status", h.status)
	r.Post("/api/paste", h.paste)
	r.Get("/api/image-url", h.imageURL)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServerFS(Assets)))

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.MCP {
		srv := NewMCPServer(cfg.Pipeline, cfg.Version, cfg.Logger)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

type handler struct {
	p      Pipeline
	logger *slog.Logger
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.p.Status(r.Context()))
}

// paste takes the raw image as the body. Content-Type is the image MIME;
// application/octet-stream or none means sniff.
func (h *handler) paste(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", mbe.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty body"))
		return
	}

	p, err := dom.NewPayload(r.URL.Query().Get("name"), mediaType(r.Header.Get("Content-Type")), data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err)
		return
	}

	u, err := h.p.Paste(r.Context(), p, report.SourceHTTP)
	if u == nil {
		if err == nil {
			err = errors.New("no report")
		}
		shield.GetLogger(r.Context()).Warn("api: paste rejected", "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, statusFor(u.Reason), u)
}

func (h *handler) imageURL(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = TestImage
	}
	if _, err := fs.Stat(Assets, name); err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("asset %q not found", name))
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: path.Join("/assets", name)}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "url": u.String()})
}

func statusFor(reason report.Reason) int {
	switch reason {
	case report.ReasonNone:
		return http.StatusOK
	case report.ReasonInvalidPayload:
		return http.StatusUnsupportedMediaType
	case report.ReasonNotAcquired, report.ReasonCanceled:
		return http.StatusServiceUnavailable
	case report.ReasonInjectionFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "application/octet-stream" {
		return ""
	}
	return mt
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
