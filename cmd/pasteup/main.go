// Command pasteup routes images pasted into a TipTap editor into the host
// page's upload control.
//
// Usage:
//
//	pasteup -config pasteup.yaml                 # run from YAML config
//	pasteup -url https://app.example/editor      # open one page, defaults
//	pasteup -remote ws://127.0.0.1:9222/... -url app.example
//	pasteup -locate page.html                    # dry run: which control would be used
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/pasteup"
	"github.com/hazyhaar/pasteup/internal/api"
	"github.com/hazyhaar/pasteup/internal/htmldoc"
	"github.com/hazyhaar/pasteup/internal/locator"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to pasteup.yaml config file")
	pageURL := flag.String("url", "", "host page URL (overrides page.url)")
	remote := flag.String("remote", "", "DevTools URL of a running Chrome (overrides browser.remote)")
	locateFile := flag.String("locate", "", "run the locator on an HTML file and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath, *pageURL, *remote)
	if err != nil {
		logger.Error("pasteup: config", "error", err)
		os.Exit(1)
	}

	if *locateFile != "" {
		err = runLocate(ctx, logger, cfg, *locateFile)
	} else {
		err = run(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("pasteup: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, pageURL, remote string) (*pasteup.Config, error) {
	cfg := pasteup.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = pasteup.LoadConfigFile(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if pageURL != "" {
		cfg.Page.URL = pageURL
	}
	if remote != "" {
		cfg.Browser.Remote = remote
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *pasteup.Config) error {
	if cfg.Page.URL == "" && cfg.Browser.Remote == "" {
		fmt.Fprintln(os.Stderr, "usage: pasteup -config <file> | -url <url> [-remote <devtools-url>] | -locate <file.html>")
		os.Exit(2)
	}

	svc, err := pasteup.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer svc.Stop()

	if cfg.HTTP.Addr == "off" {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.New(api.Config{
			Pipeline: svc,
			Gatherer: svc.Gatherer(),
			MCP:      cfg.HTTP.MCP,
			Version:  version,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("pasteup: listening", "addr", cfg.HTTP.Addr, "mcp", cfg.HTTP.MCP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pasteup: shutdown", "error", err)
	}
	return nil
}

// locateResult is what -locate prints.
type locateResult struct {
	Found    bool              `json:"found"`
	Strategy locator.Strategy  `json:"strategy,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

func runLocate(ctx context.Context, logger *slog.Logger, cfg *pasteup.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := htmldoc.Parse(f)
	if err != nil {
		return err
	}
	t, err := locator.New(doc, locator.Config{
		SecondarySelectors: cfg.Locator.SecondarySelectors,
		Logger:             logger,
	}).Locate(ctx)
	if err != nil {
		return err
	}

	var res locateResult
	if t != nil {
		res.Found = true
		res.Strategy = t.Strategy
		if el, ok := t.Element.(*htmldoc.Element); ok {
			res.Tag = el.Tag()
		}
		res.Attrs = make(map[string]string)
		for _, name := range []string{"id", "name", "type", "accept", "class", "data-testid"} {
			if v, ok, _ := t.Element.Attr(ctx, name); ok {
				res.Attrs[name] = v
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
