// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads onesync's runtime configuration from YAML/JSON files
// and environment variables, applying the ${VAR:default} substitution and
// layered-override conventions the rest of the ambient stack (logging,
// metrics, health) is built on.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Environment    string               `yaml:"environment" json:"environment"`
	Connections    ConnectionsConfig    `yaml:"connections" json:"connections"`
	ChannelManager ChannelManagerConfig `yaml:"channel_manager" json:"channel_manager"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics" json:"metrics"`
	Health         HealthConfig         `yaml:"health" json:"health"`
	Store          StoreConfig          `yaml:"store" json:"store"`
}

// StoreConfig selects and configures the object store backend (§6 "Store").
type StoreConfig struct {
	// Backend is "memory" or "postgres". Empty defaults to "memory".
	Backend  string `yaml:"backend" json:"backend"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Port    int      `yaml:"port" json:"port"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile loads configuration from a file, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile saves configuration to a file, format chosen by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults fills in §6's documented defaults for any zero-valued field.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	defaults := defaultConnectionsConfig()
	if cfg.Connections.PairingTokenTTL == 0 {
		cfg.Connections.PairingTokenTTL = defaults.PairingTokenTTL
	}
	if cfg.Connections.ReconnectDelay == 0 {
		cfg.Connections.ReconnectDelay = defaults.ReconnectDelay
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.SSLMode == "" {
		cfg.Store.SSLMode = "disable"
	}
}

// Validate checks the whole configuration for internal consistency,
// returning the first error encountered.
func (c *Config) Validate() error {
	if err := c.Connections.Validate(); err != nil {
		return fmt.Errorf("connections: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging: invalid level %q", c.Logging.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when enabled")
	}
	if c.Health.Enabled && c.Health.Port == 0 {
		return fmt.Errorf("health: port is required when enabled")
	}
	switch c.Store.Backend {
	case "", "memory", "postgres":
	default:
		return fmt.Errorf("store: unsupported backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.Database == "" {
		return fmt.Errorf("store: database is required for the postgres backend")
	}
	return nil
}
