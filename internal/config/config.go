package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DefaultNodeURL is the node the UI connects to on first run.
const DefaultNodeURL = "wss://staging-rpc.polymesh.live"

// DefaultKeepSessions is how many session records survive pruning.
const DefaultKeepSessions = 200

// Config holds application configuration.
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Database DatabaseConfig `mapstructure:"database"`
	UI       UIConfig       `mapstructure:"ui"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// NodeConfig selects the chain endpoint.
type NodeConfig struct {
	URL        string            `mapstructure:"url"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
	Presets    map[string]string `mapstructure:"presets"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	KeepSessions int    `mapstructure:"keep_sessions"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	MaxBlocks int           `mapstructure:"max_blocks"`
	Tick      time.Duration `mapstructure:"tick"`
}

type LogConfig struct {
	Path  string `mapstructure:"path" toml:"path"`
	Level string `mapstructure:"level" toml:"level"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultPresets are the well-known Polymesh endpoints.
func DefaultPresets() map[string]string {
	return map[string]string{
		"mainnet": "wss://mainnet-rpc.polymesh.network",
		"testnet": "wss://testnet-rpc.polymesh.live",
		"staging": DefaultNodeURL,
		"local":   "ws://127.0.0.1:9944",
	}
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "meshview")
}

func configPath() string {
	if p := os.Getenv("MESHVIEW_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "meshview", "config.toml")
}

// Load reads configuration from file and env. Env var overrides use prefix MESHVIEW_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("node.url", DefaultNodeURL)
	v.SetDefault("node.retry_delay", "0s")
	v.SetDefault("database.path", filepath.Join(dataDir(), "meshview.db"))
	v.SetDefault("database.keep_sessions", DefaultKeepSessions)
	v.SetDefault("ui.max_blocks", 1000)
	v.SetDefault("ui.tick", "50ms")
	v.SetDefault("log.path", filepath.Join(dataDir(), "meshview.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")

	v.SetConfigType("toml")
	v.SetConfigFile(configPath())

	v.SetEnvPrefix("MESHVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// a missing config file is fine; defaults and env still apply
	fileRead := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		fileRead = false
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if fileRead {
		presets, err := filePresets(configPath())
		if err != nil {
			return Config{}, err
		}
		c.Node.Presets = presets
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Node.URL) == "" {
		c.Node.URL = DefaultNodeURL
	}
	if len(c.Node.Presets) == 0 {
		c.Node.Presets = DefaultPresets()
	}
	if c.UI.MaxBlocks <= 0 {
		c.UI.MaxBlocks = 1000
	}
	if c.UI.Tick <= 0 {
		c.UI.Tick = 50 * time.Millisecond
	}
	if c.Node.RetryDelay < 0 {
		c.Node.RetryDelay = 0
	}
	if c.Database.KeepSessions <= 0 {
		c.Database.KeepSessions = DefaultKeepSessions
	}
}

// filePresets reads [node.presets] as written. Viper folds map keys to lower
// case, so preset names are decoded straight from the file. A table in the
// file replaces the built-in presets rather than merging with them.
func filePresets(path string) (map[string]string, error) {
	var f struct {
		Node struct {
			Presets map[string]string `toml:"presets"`
		} `toml:"node"`
	}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return f.Node.Presets, nil
}

// fileConfig is the on-disk layout written by Save. Durations are kept as
// strings so the file stays hand-editable.
type fileConfig struct {
	Node     fileNode     `toml:"node"`
	Database fileDatabase `toml:"database"`
	UI       fileUI       `toml:"ui"`
	Log      LogConfig    `toml:"log"`
	Metrics  fileMetrics  `toml:"metrics"`
}

type fileNode struct {
	URL        string            `toml:"url"`
	RetryDelay string            `toml:"retry_delay"`
	Presets    map[string]string `toml:"presets"`
}

type fileDatabase struct {
	Path         string `toml:"path"`
	KeepSessions int    `toml:"keep_sessions"`
}

type fileUI struct {
	MaxBlocks int    `toml:"max_blocks"`
	Tick      string `toml:"tick"`
}

type fileMetrics struct {
	Addr string `toml:"addr"`
}

// Path returns the config file location Load reads.
func Path() string { return configPath() }

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	out := fileConfig{
		Node: fileNode{
			URL:        cfg.Node.URL,
			RetryDelay: cfg.Node.RetryDelay.String(),
			Presets:    cfg.Node.Presets,
		},
		Database: fileDatabase{Path: cfg.Database.Path, KeepSessions: cfg.Database.KeepSessions},
		UI:       fileUI{MaxBlocks: cfg.UI.MaxBlocks, Tick: cfg.UI.Tick.String()},
		Log:      cfg.Log,
		Metrics:  fileMetrics{Addr: cfg.Metrics.Addr},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
