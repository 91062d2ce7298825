package pasteup

import (
	"github.com/hazyhaar/pasteup/internal/config"
)

// Config is the top-level pasteup configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines the host page.
type PageConfig = config.PageConfig

// AcquireConfig bounds the acquisition loop.
type AcquireConfig = config.AcquireConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
