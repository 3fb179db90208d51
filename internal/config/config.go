// ABOUTME: File configuration for the netclock CLI
// ABOUTME: Loads TOML or YAML through afero, applies defaults, validates and maps to netclock.Config
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/netclock"
	"github.com/Resonate-Protocol/netclock-go/pkg/retry"
	"github.com/Resonate-Protocol/netclock-go/pkg/timeparse"
	"github.com/Resonate-Protocol/netclock-go/pkg/timezone"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither TOML nor YAML
var ErrUnsupportedFormat = errors.New("unsupported config format")

const (
	LogFormatText    = "text"
	LogFormatJSON    = "json"
	LogFormatConsole = "console"

	defaultServerPort = 8080
	defaultServerName = "netclock"
)

// Config is the on-disk configuration
type Config struct {
	Sources SourcesConfig `toml:"sources" yaml:"sources"`
	Sync    SyncConfig    `toml:"sync" yaml:"sync"`
	Retry   RetryConfig   `toml:"retry" yaml:"retry"`
	Display DisplayConfig `toml:"display" yaml:"display"`
	Worker  WorkerConfig  `toml:"worker" yaml:"worker"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
}

type SourcesConfig struct {
	URL        string   `toml:"url" yaml:"url"`
	URLs       []string `toml:"urls" yaml:"urls"`
	TimeField  string   `toml:"time_field" yaml:"time_field"`
	TimeFormat string   `toml:"time_format" yaml:"time_format"`
	Discover   bool     `toml:"discover" yaml:"discover"`
}

type SyncConfig struct {
	Strategy     string   `toml:"strategy" yaml:"strategy"`
	Interval     Duration `toml:"interval" yaml:"interval"`
	TickInterval Duration `toml:"tick_interval" yaml:"tick_interval"`
	OfflineMode  string   `toml:"offline_mode" yaml:"offline_mode"`
}

type RetryConfig struct {
	Times    int       `toml:"times" yaml:"times"`
	Interval *Duration `toml:"interval" yaml:"interval"` // nil: default; 0 retries immediately
	Backoff  *bool     `toml:"backoff" yaml:"backoff"`
}

type DisplayConfig struct {
	Timezone string `toml:"timezone" yaml:"timezone"`
}

type WorkerConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	ExecutorURL string `toml:"executor_url" yaml:"executor_url"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // Empty disables the metrics listener
}

type LogConfig struct {
	Format string `toml:"format" yaml:"format"`
	Debug  bool   `toml:"debug" yaml:"debug"`
}

type ServerConfig struct {
	Port int      `toml:"port" yaml:"port"`
	Name string   `toml:"name" yaml:"name"`
	Skew Duration `toml:"skew" yaml:"skew"`
	MDNS bool     `toml:"mdns" yaml:"mdns"`
}

// Duration reads "30s"-style strings from either format
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns the configuration used without a file
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path from fs, choosing the decoder by extension
func Load(fs afero.Fs, path string) (*Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.Strategy == "" {
		c.Sync.Strategy = string(engine.StrategyFirstSuccess)
	}
	if c.Sync.OfflineMode == "" {
		c.Sync.OfflineMode = string(engine.OfflineLocal)
	}
	if c.Retry.Times == 0 {
		c.Retry.Times = retry.DefaultTimes
	}
	if c.Retry.Interval == nil {
		c.Retry.Interval = &Duration{Duration: retry.DefaultInterval}
	}
	if c.Retry.Backoff == nil {
		backoff := retry.DefaultBackoff
		c.Retry.Backoff = &backoff
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatText
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.Name == "" {
		c.Server.Name = defaultServerName
	}
}

// Validate re-checks a config after CLI overrides
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate() error {
	if _, err := engine.ParseStrategy(c.Sync.Strategy); err != nil {
		return fmt.Errorf("sync.strategy: %w", err)
	}
	if _, err := engine.ParseOfflineMode(c.Sync.OfflineMode); err != nil {
		return fmt.Errorf("sync.offline_mode: %w", err)
	}
	if c.Sources.TimeFormat != "" {
		if _, err := timeparse.ParseFormat(c.Sources.TimeFormat); err != nil {
			return fmt.Errorf("sources.time_format: %w", err)
		}
	}
	if c.Retry.Times < 1 {
		return fmt.Errorf("retry.times must be at least 1, got %d", c.Retry.Times)
	}
	if c.Retry.Interval != nil && c.Retry.Interval.Duration < 0 {
		return fmt.Errorf("retry.interval must not be negative")
	}
	if c.Display.Timezone != "" && !timezone.IsValid(c.Display.Timezone) {
		return fmt.Errorf("display.timezone: unknown zone %q", c.Display.Timezone)
	}
	if u := c.Worker.ExecutorURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("worker.executor_url must be ws:// or wss://, got %q", u)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("log.format must be %q, %q or %q, got %q", LogFormatText, LogFormatJSON, LogFormatConsole, c.Log.Format)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ToClientConfig maps the file settings onto a netclock.Config. Loggers,
// observers and callbacks are left for the caller.
func (c *Config) ToClientConfig() netclock.Config {
	cfg := netclock.Config{
		URL:          strings.TrimSpace(c.Sources.URL),
		URLs:         c.Sources.URLs,
		Strategy:     netclock.Strategy(c.Sync.Strategy),
		SyncInterval: c.Sync.Interval.Duration,
		TickInterval: c.Sync.TickInterval.Duration,
		Timezone:     c.Display.Timezone,
		TimeFormat:   timeparse.Format(c.Sources.TimeFormat),
		Retry: &retry.Config{
			Times:    c.Retry.Times,
			Interval: c.Retry.Interval.Duration,
			Backoff:  *c.Retry.Backoff,
		},
		OfflineMode: netclock.OfflineMode(c.Sync.OfflineMode),
		UseWorker:   c.Worker.Enabled || c.Worker.ExecutorURL != "",
		ExecutorURL: c.Worker.ExecutorURL,
		Debug:       c.Log.Debug,
	}
	if c.Sources.TimeField != "" {
		cfg.TimeField = timeparse.Path(c.Sources.TimeField)
	}
	return cfg
}
