// Package config handles pasteup configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pasteup configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Page     PageConfig     `yaml:"page"`
	Locator  LocatorConfig  `yaml:"locator"`
	Acquire  AcquireConfig  `yaml:"acquire"`
	Observer ObserverConfig `yaml:"observer"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`  // DevTools URL of a running Chrome
	Stealth          string   `yaml:"stealth"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`
	Bin              string   `yaml:"bin"`
	ResourceBlocking []string `yaml:"resource_blocking"` // fonts | media | stylesheets
}

// PageConfig defines the host page.
type PageConfig struct {
	URL            string `yaml:"url"`
	EditorSelector string `yaml:"editor_selector"`
	// TargetFrame selects an iframe holding the upload control. Empty means
	// the editor's own document.
	TargetFrame string `yaml:"target_frame"`
	ObserveRoot string `yaml:"observe_root"`
}

// LocatorConfig overrides the secondary selector list.
type LocatorConfig struct {
	SecondarySelectors []string `yaml:"secondary_selectors"`
}

// AcquireConfig bounds the acquisition loop.
type AcquireConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	Delay            time.Duration `yaml:"delay"`
	ProvokePause     time.Duration `yaml:"provoke_pause"`
	MaxProvocations  int           `yaml:"max_provocations"`
	TriggerSelectors []string      `yaml:"trigger_selectors"`
	TriggerKeywords  []string      `yaml:"trigger_keywords"`
}

// ObserverConfig controls mutation batching.
type ObserverConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// WarmupConfig controls the periodic surface check after startup.
type WarmupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Ticks    int           `yaml:"ticks"`
}

// NotifyConfig controls in-page notifications.
type NotifyConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Duration time.Duration `yaml:"duration"`
}

// On reports whether notifications are shown. Default: true.
func (n NotifyConfig) On() bool { return n.Enabled == nil || *n.Enabled }

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook | sqlite
	URL     string        `yaml:"url"`  // for webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Path    string        `yaml:"path"` // for sqlite
}

// HTTPConfig controls the control-plane listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // "off" disables the listener
	MCP  bool   `yaml:"mcp"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		case "sqlite":
			if s.Path == "" {
				return fmt.Errorf("config: sinks[%d]: sqlite needs path", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Page.EditorSelector == "" {
		c.Page.EditorSelector = `.tiptap.ProseMirror[contenteditable="true"]`
	}
	if c.Page.ObserveRoot == "" {
		c.Page.ObserveRoot = "body"
	}
	if c.Acquire.MaxAttempts <= 0 {
		c.Acquire.MaxAttempts = 20
	}
	if c.Acquire.Delay <= 0 {
		c.Acquire.Delay = time.Second
	}
	if c.Acquire.ProvokePause <= 0 {
		c.Acquire.ProvokePause = 2 * time.Second
	}
	if c.Acquire.MaxProvocations <= 0 {
		c.Acquire.MaxProvocations = 10
	}
	if c.Observer.Window <= 0 {
		c.Observer.Window = 250 * time.Millisecond
	}
	if c.Observer.MaxBuffer <= 0 {
		c.Observer.MaxBuffer = 1000
	}
	if c.Warmup.Interval <= 0 {
		c.Warmup.Interval = 2 * time.Second
	}
	if c.Warmup.Ticks <= 0 {
		c.Warmup.Ticks = 30
	}
	if c.Notify.Duration <= 0 {
		c.Notify.Duration = 3 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8790"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Backoff <= 0 {
			c.Sinks[i].Backoff = 500 * time.Millisecond
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}
