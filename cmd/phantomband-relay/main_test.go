package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(Options{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddress)
	assert.Empty(t, cfg.MetricsAddress)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`RelayID = "relay-a"
ListenAddress = "127.0.0.1:9000"`), 0o600))

	cfg, err := loadConfig(Options{
		ConfigFile:     path,
		ListenAddress:  "0.0.0.0:9001",
		LogLevel:       "debug",
		MetricsAddress: "127.0.0.1:9090",
	})
	require.NoError(t, err)
	assert.Equal(t, "relay-a", cfg.RelayID)
	assert.Equal(t, "0.0.0.0:9001", cfg.ListenAddress)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddress)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)

	_, err = loadConfig(Options{LogLevel: "chatty"})
	assert.Error(t, err)

	_, err = loadConfig(Options{ListenAddress: "nope"})
	assert.Error(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "listen", "log-level", "metrics"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "f", cmd.Flags().Lookup("config").Shorthand)
}
