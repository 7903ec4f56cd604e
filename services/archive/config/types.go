// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the root configuration for the archive.
type Config struct {
	// Storage: the embedded BadgerDB keyspace
	Storage StorageConfig `yaml:"storage"`

	// Vault: root key location and keyring behavior
	Vault VaultConfig `yaml:"vault"`

	// Ingest: payload decoding, chunking and encryption workers
	Ingest IngestConfig `yaml:"ingest"`

	// Scan: periodic integrity re-verification
	Scan ScanConfig `yaml:"scan"`

	// Alerts: notification throttling
	Alerts AlertsConfig `yaml:"alerts"`

	// Stats: access-statistics export
	Stats StatsConfig `yaml:"stats"`

	// Telemetry: traces and metrics exporters
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging: level, destination and format
	Logging LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	Path           string  `yaml:"path"`             // e.g. ~/.tesseract/data
	InMemory       bool    `yaml:"in_memory"`        // testing only, nothing survives Close
	SyncWrites     bool    `yaml:"sync_writes"`      // fsync every commit
	GCIntervalSec  int     `yaml:"gc_interval"`      // value log GC period in seconds, 0 disables
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"` // e.g. 0.5
}

// GCInterval returns the value log GC period.
func (c StorageConfig) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalSec) * time.Second
}

type VaultConfig struct {
	// RootKeyFile holds the 32-byte root key that wraps every paper master
	// key. Created with mode 0600 on first run.
	RootKeyFile string `yaml:"root_key_file"`

	// AllowInsecureKeyring skips the locked-memory preflight. Only for
	// environments where RLIMIT_MEMLOCK cannot be raised.
	AllowInsecureKeyring bool `yaml:"allow_insecure_keyring"`
}

type IngestConfig struct {
	ChunkTargetBytes int `yaml:"chunk_target_bytes"` // e.g. 262144
	MaxLineBytes     int `yaml:"max_line_bytes"`     // e.g. 1048576
	Parallelism      int `yaml:"parallelism"`        // 0 = GOMAXPROCS, capped at 8
}

// Workers returns the effective encryption worker count.
func (c IngestConfig) Workers() int {
	n := c.Parallelism
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > 8 {
		n = 8
	}
	return n
}

type ScanConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval"` // seconds between sweeps
	Parallelism int  `yaml:"parallelism"`
}

// Interval returns the sweep period.
func (c ScanConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

type AlertsConfig struct {
	EventsPerMinute float64 `yaml:"events_per_minute"`
	Burst           int     `yaml:"burst"`
}

type StatsConfig struct {
	// Exporter can be "none" or "influx".
	Exporter string       `yaml:"exporter"`
	Influx   InfluxConfig `yaml:"influx"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type TelemetryConfig struct {
	// Traces can be "none", "stdout" or "otlp".
	Traces       string `yaml:"traces"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure bool   `yaml:"otlp_insecure,omitempty"`

	// Metrics can be "none", "stdout" or "prometheus".
	Metrics        string `yaml:"metrics"`
	PrometheusAddr string `yaml:"prometheus_addr,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	base := "~/.tesseract"
	return Config{
		Storage: StorageConfig{
			Path:           filepath.Join(base, "data"),
			SyncWrites:     true,
			GCIntervalSec:  300,
			GCDiscardRatio: 0.5,
		},
		Vault: VaultConfig{
			RootKeyFile: filepath.Join(base, "root.key"),
		},
		Ingest: IngestConfig{
			ChunkTargetBytes: 256 * 1024,
			MaxLineBytes:     1024 * 1024,
			Parallelism:      0, // GOMAXPROCS
		},
		Scan: ScanConfig{
			Enabled:     false,
			IntervalSec: 3600,
			Parallelism: 2,
		},
		Alerts: AlertsConfig{
			EventsPerMinute: 6,
			Burst:           3,
		},
		Stats: StatsConfig{
			Exporter: "none",
		},
		Telemetry: TelemetryConfig{
			Traces:  "none",
			Metrics: "none",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(base, "logs"),
			JSON:  true,
		},
	}
}

// Validate checks the configuration for values that would fail later in a
// less obvious place.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	if c.Storage.GCDiscardRatio < 0 || c.Storage.GCDiscardRatio > 1 {
		return fmt.Errorf("storage.gc_discard_ratio must be between 0 and 1, got %v", c.Storage.GCDiscardRatio)
	}
	if c.Vault.RootKeyFile == "" {
		return fmt.Errorf("vault.root_key_file is required")
	}
	if c.Ingest.ChunkTargetBytes <= 0 {
		return fmt.Errorf("ingest.chunk_target_bytes must be positive, got %d", c.Ingest.ChunkTargetBytes)
	}
	if c.Ingest.MaxLineBytes <= 0 {
		return fmt.Errorf("ingest.max_line_bytes must be positive, got %d", c.Ingest.MaxLineBytes)
	}
	if c.Ingest.Parallelism < 0 {
		return fmt.Errorf("ingest.parallelism must not be negative, got %d", c.Ingest.Parallelism)
	}
	if c.Scan.Enabled && c.Scan.IntervalSec <= 0 {
		return fmt.Errorf("scan.interval must be positive when scan.enabled is set")
	}
	if c.Alerts.EventsPerMinute < 0 {
		return fmt.Errorf("alerts.events_per_minute must not be negative")
	}
	switch c.Stats.Exporter {
	case "", "none":
	case "influx":
		if c.Stats.Influx.URL == "" || c.Stats.Influx.Bucket == "" {
			return fmt.Errorf("stats.influx.url and stats.influx.bucket are required for the influx exporter")
		}
	default:
		return fmt.Errorf("stats.exporter must be none or influx, got %q", c.Stats.Exporter)
	}
	switch c.Telemetry.Traces {
	case "", "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required for otlp traces")
		}
	default:
		return fmt.Errorf("telemetry.traces must be none, stdout or otlp, got %q", c.Telemetry.Traces)
	}
	switch c.Telemetry.Metrics {
	case "", "none", "stdout":
	case "prometheus":
		if c.Telemetry.PrometheusAddr == "" {
			return fmt.Errorf("telemetry.prometheus_addr is required for prometheus metrics")
		}
	default:
		return fmt.Errorf("telemetry.metrics must be none, stdout or prometheus, got %q", c.Telemetry.Metrics)
	}
	return nil
}

// ExpandPaths resolves ~ in every path-valued field. Call after load, before
// use.
func (c *Config) ExpandPaths() error {
	var err error
	if c.Storage.Path, err = expandPath(c.Storage.Path); err != nil {
		return err
	}
	if c.Vault.RootKeyFile, err = expandPath(c.Vault.RootKeyFile); err != nil {
		return err
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return err
	}
	return nil
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
