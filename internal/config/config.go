// Package config holds all chatscribe configuration: yaml file with
// environment overrides, defaults matching the capture engine's tuned
// constants.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
	Storage StorageConfig `yaml:"storage"`
	Export  ExportConfig  `yaml:"export"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig configures the Chrome attachment.
type BrowserConfig struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// CaptureConfig tunes the capture engine. The settle delay and stability
// threshold are empirically chosen; they are configuration, not invariants.
type CaptureConfig struct {
	ScrollSettleMs    int `yaml:"scroll_settle_ms"`
	StableRounds      int `yaml:"stable_rounds"`
	MaxRounds         int `yaml:"max_rounds"`
	PersistDebounceMs int `yaml:"persist_debounce_ms"`
	MutationPollMs    int `yaml:"mutation_poll_ms"`
	HeightMarginPx    int `yaml:"height_margin_px"`
}

// StorageConfig locates the durable mirror.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ExportConfig names the deliverables.
type ExportConfig struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Dir   string `yaml:"dir"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:            false,
			NavigationTimeoutMs: 30000,
		},
		Capture: CaptureConfig{
			ScrollSettleMs:    600,
			StableRounds:      3,
			MaxRounds:         500,
			PersistDebounceMs: 400,
			MutationPollMs:    150,
			HeightMarginPx:    50,
		},
		Storage: StorageConfig{DatabasePath: defaultDBPath()},
		Export: ExportConfig{
			Name:  "chat-export",
			Title: "Conversation Export",
			Dir:   ".",
		},
		Server: ServerConfig{Addr: "127.0.0.1:8490"},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chatscribe.db"
	}
	return home + "/.chatscribe/chatscribe.db"
}

// Load reads the file when it exists, layers it over defaults, and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATSCRIBE_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("CHATSCRIBE_DB"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("CHATSCRIBE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATSCRIBE_STABLE_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Capture.StableRounds = n
		}
	}
	if v := os.Getenv("CHATSCRIBE_SCROLL_SETTLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Capture.ScrollSettleMs = n
		}
	}
}

// ScrollSettle returns the per-iteration wait as a duration.
func (c CaptureConfig) ScrollSettle() time.Duration {
	if c.ScrollSettleMs <= 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(c.ScrollSettleMs) * time.Millisecond
}

// PersistDebounce returns the mirror write debounce window.
func (c CaptureConfig) PersistDebounce() time.Duration {
	if c.PersistDebounceMs <= 0 {
		return 400 * time.Millisecond
	}
	return time.Duration(c.PersistDebounceMs) * time.Millisecond
}

// MutationPoll returns the notifier drain interval.
func (c CaptureConfig) MutationPoll() time.Duration {
	if c.MutationPollMs <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(c.MutationPollMs) * time.Millisecond
}

// NavigationTimeout returns the tab navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}
