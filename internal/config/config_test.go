package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyguts/camilladsp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, 48000, cfg.Capture.SampleRate)
	assert.Equal(t, 2, cfg.Capture.Channels)
	assert.True(t, cfg.RetryOnError)
	assert.Equal(t, 0, cfg.RateAdjust.TargetLevel)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := config.Default()
	cfg.Capture.Backend = "file"
	cfg.Capture.Path = "/tmp/in.wav"
	cfg.Filters = []config.FilterConfig{
		{Type: "lowpass", Freq: 1000, Q: 0.707},
	}

	require.NoError(t, config.Save(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file", loaded.Capture.Backend)
	assert.Equal(t, "/tmp/in.wav", loaded.Capture.Path)
	require.Len(t, loaded.Filters, 1)
	assert.Equal(t, "lowpass", loaded.Filters[0].Type)
	assert.Equal(t, 1000.0, loaded.Filters[0].Freq)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestLoadCorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestSampleFormatParsing(t *testing.T) {
	d := config.DeviceConfig{Format: "S16LE"}
	f, err := d.SampleFormat()
	require.NoError(t, err)
	assert.Equal(t, 2, f.Bytes())

	d2 := config.DeviceConfig{Format: "bogus"}
	_, err = d2.SampleFormat()
	require.Error(t, err)
}
