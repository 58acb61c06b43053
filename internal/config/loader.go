// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSchema is the YAML shape of an on-disk configuration file.
type fileSchema struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`

	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	Recorder struct {
		BaseURL      string `yaml:"baseURL"`
		ProbeTimeout string `yaml:"probeTimeout"`
		CallTimeout  string `yaml:"callTimeout"`
	} `yaml:"recorder"`

	Permission struct {
		BaseURL string `yaml:"baseURL"`
		Timeout string `yaml:"timeout"`
	} `yaml:"permission"`

	Media struct {
		BaseURL  string        `yaml:"baseURL"`
		Mappings []PathMapping `yaml:"mappings"`
	} `yaml:"media"`

	API struct {
		RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	} `yaml:"api"`
}

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	path string // optional YAML file path
}

// NewLoader creates a Loader for the given optional config file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves the effective configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.path != "" {
		if err := mergeFile(&cfg, l.path); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", l.path, err)
		}
	}

	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("not found")
		}
		return err
	}

	var f fileSchema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse: %w", err)
	}

	if f.Listen != "" {
		cfg.ListenAddr = f.Listen
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *f.Metrics.Enabled
	}
	if f.Metrics.Addr != "" {
		cfg.MetricsAddr = f.Metrics.Addr
	}
	if f.Recorder.BaseURL != "" {
		cfg.RecorderBase = f.Recorder.BaseURL
	}
	if err := mergeFileDuration(&cfg.RecorderProbeTimeout, f.Recorder.ProbeTimeout, "recorder.probeTimeout"); err != nil {
		return err
	}
	if err := mergeFileDuration(&cfg.RecorderCallTimeout, f.Recorder.CallTimeout, "recorder.callTimeout"); err != nil {
		return err
	}
	if f.Permission.BaseURL != "" {
		cfg.PermissionBase = f.Permission.BaseURL
	}
	if err := mergeFileDuration(&cfg.PermissionTimeout, f.Permission.Timeout, "permission.timeout"); err != nil {
		return err
	}
	if f.Media.BaseURL != "" {
		cfg.MediaBase = f.Media.BaseURL
	}
	if len(f.Media.Mappings) > 0 {
		cfg.PathMappings = f.Media.Mappings
	}
	if f.API.RateLimitPerMinute > 0 {
		cfg.RateLimitPerMinute = f.API.RateLimitPerMinute
	}
	return nil
}

func mergeFileDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("MICGW_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = ParseString("MICGW_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = ParseBool("MICGW_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("MICGW_METRICS_ADDR", cfg.MetricsAddr)
	cfg.RecorderBase = ParseString("MICGW_RECORDER_BASE", cfg.RecorderBase)
	cfg.RecorderProbeTimeout = ParseDuration("MICGW_RECORDER_PROBE_TIMEOUT", cfg.RecorderProbeTimeout)
	cfg.RecorderCallTimeout = ParseDuration("MICGW_RECORDER_CALL_TIMEOUT", cfg.RecorderCallTimeout)
	cfg.PermissionBase = ParseString("MICGW_PERMISSION_BASE", cfg.PermissionBase)
	cfg.PermissionTimeout = ParseDuration("MICGW_PERMISSION_TIMEOUT", cfg.PermissionTimeout)
	cfg.MediaBase = ParseString("MICGW_MEDIA_BASE", cfg.MediaBase)
	cfg.PathMappings = ParseMappings("MICGW_MEDIA_MAPPINGS", cfg.PathMappings)
	cfg.RateLimitPerMinute = ParseInt("MICGW_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
}

// ParseServerConfig resolves HTTP server tuning from the environment.
func ParseServerConfig() ServerConfig {
	s := DefaultServerConfig()
	s.ReadTimeout = ParseDuration("MICGW_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = ParseDuration("MICGW_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = ParseDuration("MICGW_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = ParseDuration("MICGW_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxHeaderBytes = ParseInt("MICGW_MAX_HEADER_BYTES", s.MaxHeaderBytes)
	return s
}
