package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "http://localhost:8090", cfg.StreamURL)
	assert.Equal(t, "http://localhost:8091", cfg.QueryURL)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"nats_url: nats://broker:4222\nquery_url: http://query:9000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, "http://query:9000", cfg.QueryURL)
	// Unset keys keep their defaults.
	assert.Equal(t, "http://localhost:8090", cfg.StreamURL)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	want := &Config{
		NATSURL:   "nats://broker:4222",
		StreamURL: "http://stream:8090",
		QueryURL:  "http://query:8091",
	}
	require.NoError(t, Save(want, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
