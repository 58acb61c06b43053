// SPDX-License-Identifier: MIT

// Package config loads and validates gateway configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// PathMapping maps a recorder-side storage root to a local filesystem root.
type PathMapping struct {
	RecorderRoot string `yaml:"recorderRoot"`
	LocalRoot    string `yaml:"localRoot"`
}

// AppConfig holds the runtime configuration of the gateway.
type AppConfig struct {
	ListenAddr string
	LogLevel   string
	LogService string

	MetricsEnabled bool
	MetricsAddr    string

	// Native recorder service.
	RecorderBase string
	// Timeout for the status probe used at startup and by readiness checks.
	RecorderProbeTimeout time.Duration
	// Timeout for start/stop calls. Zero disables the client timeout: an
	// in-flight start or stop is never abandoned by the gateway.
	RecorderCallTimeout time.Duration

	// Host media-permission broker.
	PermissionBase string
	// Timeout for permission acquisition. Zero means none; grants can wait
	// on user interaction.
	PermissionTimeout time.Duration

	// Playback resolution.
	MediaBase    string // optional public base URL for playback links
	PathMappings []PathMapping

	RateLimitPerMinute int
}

// ServerConfig holds HTTP server tuning knobs.
type ServerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:           ":8080",
		LogLevel:             "info",
		LogService:           "micgw",
		MetricsEnabled:       true,
		MetricsAddr:          ":9090",
		RecorderBase:         "http://127.0.0.1:8554",
		RecorderProbeTimeout: 5 * time.Second,
		RecorderCallTimeout:  0,
		PermissionBase:       "http://127.0.0.1:8600",
		PermissionTimeout:    0,
		RateLimitPerMinute:   120,
	}
}

// DefaultServerConfig returns HTTP server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxHeaderBytes:  1 << 20,
	}
}

// Validate checks the configuration for fatal inconsistencies.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.RecorderBase == "" {
		return fmt.Errorf("recorder base URL must not be empty")
	}
	if err := validBaseURL(c.RecorderBase); err != nil {
		return fmt.Errorf("recorder base URL: %w", err)
	}
	if c.PermissionBase == "" {
		return fmt.Errorf("permission base URL must not be empty")
	}
	if err := validBaseURL(c.PermissionBase); err != nil {
		return fmt.Errorf("permission base URL: %w", err)
	}
	if c.MediaBase != "" {
		if err := validBaseURL(c.MediaBase); err != nil {
			return fmt.Errorf("media base URL: %w", err)
		}
	}
	if c.RecorderProbeTimeout < 0 || c.RecorderCallTimeout < 0 || c.PermissionTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}
	for i, m := range c.PathMappings {
		if !filepath.IsAbs(m.RecorderRoot) || !filepath.IsAbs(m.LocalRoot) {
			return fmt.Errorf("path mapping %d: both roots must be absolute (%q -> %q)", i, m.RecorderRoot, m.LocalRoot)
		}
	}
	return nil
}

func validBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
