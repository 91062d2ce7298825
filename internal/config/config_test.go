package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Browser.Stealth != "headless" {
		t.Errorf("stealth = %q", cfg.Browser.Stealth)
	}
	if cfg.Acquire.MaxAttempts != 20 || cfg.Acquire.Delay != time.Second {
		t.Errorf("acquire = %+v", cfg.Acquire)
	}
	if cfg.Acquire.ProvokePause != 2*time.Second || cfg.Acquire.MaxProvocations != 10 {
		t.Errorf("provoke = %+v", cfg.Acquire)
	}
	if cfg.Warmup.Interval != 2*time.Second || cfg.Warmup.Ticks != 30 {
		t.Errorf("warmup = %+v", cfg.Warmup)
	}
	if !cfg.Notify.On() || cfg.Notify.Duration != 3*time.Second {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if cfg.Page.ObserveRoot != "body" {
		t.Errorf("observe_root = %q", cfg.Page.ObserveRoot)
	}
}

func TestLoadFile(t *testing.T) {
	yml := `
browser:
  remote: ws://127.0.0.1:9222
page:
  url: https://chat.example.com/
  target_frame: iframe#composer
acquire:
  max_attempts: 5
  delay: 200ms
notify:
  enabled: false
sinks:
  - type: webhook
    url: http://localhost:9000/hook
  - type: sqlite
    path: /tmp/pasteup.db
http:
  addr: 127.0.0.1:9999
  mcp: true
`
	path := filepath.Join(t.TempDir(), "pasteup.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Remote != "ws://127.0.0.1:9222" {
		t.Errorf("remote = %q", cfg.Browser.Remote)
	}
	if cfg.Page.TargetFrame != "iframe#composer" {
		t.Errorf("target_frame = %q", cfg.Page.TargetFrame)
	}
	if cfg.Acquire.MaxAttempts != 5 || cfg.Acquire.Delay != 200*time.Millisecond {
		t.Errorf("acquire = %+v", cfg.Acquire)
	}
	if cfg.Acquire.MaxProvocations != 10 {
		t.Errorf("max_provocations default lost: %d", cfg.Acquire.MaxProvocations)
	}
	if cfg.Notify.On() {
		t.Error("notify should be disabled")
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[0].Retries != 3 {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if !cfg.HTTP.MCP || cfg.HTTP.Addr != "127.0.0.1:9999" {
		t.Errorf("http = %+v", cfg.HTTP)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"stealth":      "browser:\n  stealth: visible\n",
		"webhook url":  "sinks:\n  - type: webhook\n",
		"sqlite path":  "sinks:\n  - type: sqlite\n",
		"unknown sink": "sinks:\n  - type: nats\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(yml)); err == nil {
				t.Fatal("expected error")
			} else if !strings.HasPrefix(err.Error(), "config:") {
				t.Errorf("err = %v", err)
			}
		})
	}
}
