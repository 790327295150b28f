// Package config loads dashboard settings from the environment and lets
// command-line flags override them.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "SPEAKER_ASSISTANT_"

// Config contains all runtime settings of the dashboard client.
type Config struct {
	BackendURL       string
	DevicesPath      string
	StreamPath       string
	DiscoveryTimeout time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	JournalDSN  string
	MetricsAddr string
	LogPath     string
	LogLevel    string
	Headless    bool
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		BackendURL:  envOrDefault(envPrefix+"BACKEND_URL", "http://localhost:8000"),
		DevicesPath: envOrDefault(envPrefix+"DEVICES_PATH", "/audio-devices"),
		StreamPath:  envOrDefault(envPrefix+"STREAM_PATH", "/ws"),
		JournalDSN:  strings.TrimSpace(os.Getenv(envPrefix + "JOURNAL")),
		MetricsAddr: strings.TrimSpace(os.Getenv(envPrefix + "METRICS_ADDR")),
		LogPath:     strings.TrimSpace(os.Getenv(envPrefix + "LOG_PATH")),
		LogLevel:    envOrDefault(envPrefix+"LOG_LEVEL", "info"),
	}

	var err error
	cfg.DiscoveryTimeout, err = durationFromEnv(envPrefix+"DISCOVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.HandshakeTimeout, err = durationFromEnv(envPrefix+"HANDSHAKE_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WriteTimeout, err = durationFromEnv(envPrefix+"WRITE_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.Headless, err = boolFromEnv(envPrefix+"HEADLESS", false)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RegisterFlags binds flags to cfg. The current values become the flag
// defaults, so flags override the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BackendURL, "backend", c.BackendURL, "backend base URL (http or https)")
	fs.StringVar(&c.DevicesPath, "devices-path", c.DevicesPath, "device discovery path")
	fs.StringVar(&c.StreamPath, "stream-path", c.StreamPath, "analysis stream path")
	fs.DurationVar(&c.DiscoveryTimeout, "discovery-timeout", c.DiscoveryTimeout, "device discovery request timeout")
	fs.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "stream handshake timeout")
	fs.StringVar(&c.JournalDSN, "journal", c.JournalDSN, "session journal: SQLite path or postgres:// URL (empty disables)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	fs.StringVar(&c.LogPath, "logpath", c.LogPath, "log directory")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "log analysis events instead of drawing the dashboard")
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("backend URL %q: %w", c.BackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend URL %q must use http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend URL %q has no host", c.BackendURL)
	}
	if !strings.HasPrefix(c.DevicesPath, "/") || !strings.HasPrefix(c.StreamPath, "/") {
		return fmt.Errorf("endpoint paths must start with /")
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("discovery timeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	return nil
}

// DevicesURL is the full discovery endpoint.
func (c Config) DevicesURL() string {
	return strings.TrimRight(c.BackendURL, "/") + c.DevicesPath
}

// StreamURL is the WebSocket endpoint derived from the backend URL.
func (c Config) StreamURL() string {
	base := strings.TrimRight(c.BackendURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.StreamPath
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s parse error: %w", key, err)
	}
	return b, nil
}
