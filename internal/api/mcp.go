package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pasteup/dom"
	"github.com/hazyhaar/pasteup/internal/kit"
	"github.com/hazyhaar/pasteup/report"
)

// NewMCPServer returns an MCP server with the pasteup tools registered.
func NewMCPServer(p Pipeline, version string, logger *slog.Logger) *mcp.Server {
	if version == "" {
		version = "dev"
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "pasteup", Version: version}, nil)
	RegisterMCP(srv, p, logger)
	return srv
}

// RegisterMCP registers the pasteup tools on an MCP server.
func RegisterMCP(srv *mcp.Server, p Pipeline, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	registerPasteTool(srv, p, logger)
	registerStatusTool(srv, p, logger)
	registerImageURLTool(srv, logger)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- paste ---

type pasteReq struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Data  string `json:"data"`  // base64
	Asset string `json:"asset"` // bundled asset name, instead of data
}

func registerPasteTool(srv *mcp.Server, p Pipeline, logger *slog.Logger) {
	tool := &mcp.Tool{
		Name:        "pasteup_paste",
		Description: "Upload an image into the page's file-upload control, as if it had been pasted into the editor.",
		InputSchema: inputSchema(map[string]any{
			"name":  map[string]any{"type": "string", "description": "File name. Default: pasted-image.png"},
			"type":  map[string]any{"type": "string", "description": "Image MIME type. Sniffed when empty"},
			"data":  map[string]any{"type": "string", "description": "Base64 image bytes"},
			"asset": map[string]any{"type": "string", "description": "Name of a bundled asset to upload instead of data, e.g. test-image.png"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pasteReq)
		payload, err := r.payload()
		if err != nil {
			return nil, err
		}
		u, err := p.Paste(ctx, payload, report.SourceMCP)
		if u == nil {
			return nil, err
		}
		// A failed upload is still a report, not a tool error.
		return u, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, tool.Name)(endpoint), kit.DecodeJSON[pasteReq]())
}

func (r *pasteReq) payload() (*dom.Payload, error) {
	switch {
	case r.Asset != "" && r.Data != "":
		return nil, errors.New("data and asset are exclusive")
	case r.Asset != "":
		data, err := fs.ReadFile(Assets, r.Asset)
		if err != nil {
			return nil, fmt.Errorf("asset %q not found", r.Asset)
		}
		name := r.Name
		if name == "" {
			name = r.Asset
		}
		return dom.NewPayload(name, r.Type, data)
	case r.Data != "":
		data, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return dom.NewPayload(r.Name, r.Type, data)
	}
	return nil, errors.New("one of data or asset is required")
}

// --- status ---

type statusReq struct{}

func registerStatusTool(srv *mcp.Server, p Pipeline, logger *slog.Logger) {
	tool := &mcp.Tool{
		Name:        "pasteup_status",
		Description: "Report the paste session, whether the editor listener is bound, the cached upload control, and recent uploads.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return p.Status(ctx), nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, tool.Name)(endpoint), kit.DecodeJSON[statusReq]())
}

// --- image url ---

type imageURLReq struct {
	Name string `json:"name"`
	Base string `json:"base"`
}

func registerImageURLTool(srv *mcp.Server, logger *slog.Logger) {
	tool := &mcp.Tool{
		Name:        "pasteup_image_url",
		Description: "Return the URL of a bundled asset served by the control plane.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Asset name. Default: test-image.png"},
			"base": map[string]any{"type": "string", "description": "Control-plane base URL, e.g. http://127.0.0.1:8790"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*imageURLReq)
		name := r.Name
		if name == "" {
			name = TestImage
		}
		if _, err := fs.Stat(Assets, name); err != nil {
			return nil, fmt.Errorf("asset %q not found", name)
		}
		return map[string]string{"name": name, "url": r.Base + "/assets/" + name}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, tool.Name)(endpoint), kit.DecodeJSON[imageURLReq]())
}
