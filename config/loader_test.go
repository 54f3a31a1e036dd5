// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoaderOptions(t *testing.T) {
	opts := DefaultLoaderOptions()
	assert.Equal(t, "config", opts.ConfigDir)
	assert.Empty(t, opts.Environment)
	assert.False(t, opts.SkipEnvSubstitution)
	assert.False(t, opts.SkipValidation)
	assert.Equal(t, ".env", opts.DotEnvPath)
}

func TestLoadMissingDotEnvIsNotAnError(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), DotEnvPath: filepath.Join(t.TempDir(), "nope.env")})
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadReadsDotEnvIntoOverrides(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("ONESYNC_LOG_LEVEL=debug\n"), 0644))

	t.Cleanup(func() { os.Unsetenv("ONESYNC_LOG_LEVEL") })

	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), DotEnvPath: dotenv})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFallsBackToEmptyConfigWithDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadReadsEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	content := `
environment: staging
connections:
  comm_server_url: wss://comm.example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte(content), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "wss://comm.example.com", cfg.Connections.CommServerURL)
}

func TestLoadFallsBackToDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
environment: development
channel_manager:
  default_owner: deadbeef
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(content), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", cfg.ChannelManager.DefaultOwner)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
connections:
  accept_incoming_connections: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "production.yaml"), []byte(content), 0644))

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "production"})
	assert.Error(t, err)
}

func TestLoadSkipValidationBypassesErrors(t *testing.T) {
	dir := t.TempDir()
	content := `
connections:
  accept_incoming_connections: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "production.yaml"), []byte(content), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "production", SkipValidation: true})
	require.NoError(t, err)
	assert.True(t, cfg.Connections.AcceptIncomingConnections)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	os.Setenv("ONESYNC_COMM_SERVER_URL", "wss://override.example.com")
	os.Setenv("ONESYNC_LOG_LEVEL", "debug")
	os.Setenv("ONESYNC_METRICS_ENABLED", "true")
	defer os.Unsetenv("ONESYNC_COMM_SERVER_URL")
	defer os.Unsetenv("ONESYNC_LOG_LEVEL")
	defer os.Unsetenv("ONESYNC_METRICS_ENABLED")

	cfg := &Config{}
	setDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	assert.Equal(t, "wss://override.example.com", cfg.Connections.CommServerURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadForEnvironment(t *testing.T) {
	cfg, err := LoadForEnvironment("test")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
connections:
  accept_incoming_connections: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "production.yaml"), []byte(content), 0644))

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "production"})
	})
}
