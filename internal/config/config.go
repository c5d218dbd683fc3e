package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UI modes.
const (
	UIWeb  = "web"
	UITUI  = "tui"
	UIBoth = "both"
)

// Config holds all configuration for townwatch.
type Config struct {
	// Backend exposing /api/system/info and /ws/events
	Source string

	// Live-state timing
	PollInterval      time.Duration // How often the snapshot is re-fetched
	ReconnectDelay    time.Duration // Fixed delay before re-opening the event stream
	HighlightDuration time.Duration // How long a window stays lit after a matching event
	RequestTimeout    time.Duration // Per-request timeout for snapshot fetches

	// View sizes
	BillboardSize int
	MaxLogs       int

	// Front-ends
	WebPort string
	UIMode  string // web, tui, both

	// Logging
	LogLevel string // DEBUG, INFO, WARN, ERROR
	LogFile  string // slog destination in TUI mode; empty discards

	// LoadedFrom is the YAML file the values were layered on, if any.
	LoadedFrom string
}

// fileConfig mirrors Config for the optional YAML file. Durations are
// strings in time.ParseDuration syntax.
type fileConfig struct {
	Source            string `yaml:"source"`
	PollInterval      string `yaml:"poll_interval"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	HighlightDuration string `yaml:"highlight_duration"`
	RequestTimeout    string `yaml:"request_timeout"`
	BillboardSize     int    `yaml:"billboard_size"`
	MaxLogs           int    `yaml:"max_logs"`
	WebPort           string `yaml:"web_port"`
	UIMode            string `yaml:"ui_mode"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source:            "http://localhost:5000",
		PollInterval:      10 * time.Second,
		ReconnectDelay:    3 * time.Second,
		HighlightDuration: time.Second,
		RequestTimeout:    5 * time.Second,
		BillboardSize:     20,
		MaxLogs:           200,
		WebPort:           "8080",
		UIMode:            UIWeb,
		LogLevel:          "INFO",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by TOWNWATCH_CONFIG, and environment variables, in that order of
// precedence (environment wins), then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TOWNWATCH_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Source != "" {
		c.Source = fc.Source
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"reconnect_delay", fc.ReconnectDelay, &c.ReconnectDelay},
		{"highlight_duration", fc.HighlightDuration, &c.HighlightDuration},
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	if fc.BillboardSize != 0 {
		c.BillboardSize = fc.BillboardSize
	}
	if fc.MaxLogs != 0 {
		c.MaxLogs = fc.MaxLogs
	}
	if fc.WebPort != "" {
		c.WebPort = fc.WebPort
	}
	if fc.UIMode != "" {
		c.UIMode = fc.UIMode
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	c.LoadedFrom = path
	return nil
}

func (c *Config) applyEnv() error {
	c.Source = getEnv("TOWNWATCH_SOURCE", c.Source)
	c.WebPort = getEnv("WEB_PORT", c.WebPort)
	c.UIMode = getEnv("UI_MODE", c.UIMode)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	var err error
	if c.PollInterval, err = envDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.ReconnectDelay, err = envDuration("RECONNECT_DELAY", c.ReconnectDelay); err != nil {
		return err
	}
	if c.HighlightDuration, err = envDuration("HIGHLIGHT_DURATION", c.HighlightDuration); err != nil {
		return err
	}
	if c.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.BillboardSize, err = envInt("BILLBOARD_SIZE", c.BillboardSize); err != nil {
		return err
	}
	if c.MaxLogs, err = envInt("MAX_LOGS", c.MaxLogs); err != nil {
		return err
	}
	return nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Source)
	if err != nil {
		return fmt.Errorf("TOWNWATCH_SOURCE is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("TOWNWATCH_SOURCE must be an http or https URL, got %q", c.Source)
	}
	if u.Host == "" {
		return fmt.Errorf("TOWNWATCH_SOURCE must include a host, got %q", c.Source)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be > 0")
	}
	if c.HighlightDuration <= 0 {
		return fmt.Errorf("HIGHLIGHT_DURATION must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.BillboardSize < 1 {
		return fmt.Errorf("BILLBOARD_SIZE must be >= 1")
	}
	if c.MaxLogs < 1 {
		return fmt.Errorf("MAX_LOGS must be >= 1")
	}
	switch strings.ToLower(c.UIMode) {
	case UIWeb, UITUI, UIBoth:
		c.UIMode = strings.ToLower(c.UIMode)
	default:
		return fmt.Errorf("UI_MODE must be one of web, tui, both, got %q", c.UIMode)
	}
	return nil
}

// WantsWeb reports whether the web front-end should run.
func (c *Config) WantsWeb() bool {
	return c.UIMode == UIWeb || c.UIMode == UIBoth
}

// WantsTUI reports whether the terminal front-end should run.
func (c *Config) WantsTUI() bool {
	return c.UIMode == UITUI || c.UIMode == UIBoth
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s is invalid: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s is invalid: %w", key, err)
	}
	return n, nil
}
