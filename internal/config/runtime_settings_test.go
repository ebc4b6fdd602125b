package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		DefaultInterval:  2,
		DefaultThreshold: 0.6,
		HistogramCutoff:  0.95,
		TextDiffCutoff:   0.3,
		OCREnabled:       true,
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	tests := []struct {
		name   string
		mutate func(*RuntimeSettings)
	}{
		{name: "interval too small", mutate: func(s *RuntimeSettings) { s.DefaultInterval = 0 }},
		{name: "interval too large", mutate: func(s *RuntimeSettings) { s.DefaultInterval = 31 }},
		{name: "threshold too small", mutate: func(s *RuntimeSettings) { s.DefaultThreshold = 0.05 }},
		{name: "threshold too large", mutate: func(s *RuntimeSettings) { s.DefaultThreshold = 1.2 }},
		{name: "histogram cutoff", mutate: func(s *RuntimeSettings) { s.HistogramCutoff = 1.5 }},
		{name: "text cutoff", mutate: func(s *RuntimeSettings) { s.TextDiffCutoff = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings", "runtime.json")
	input := validSettings()
	input.OCREnabled = false

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("DEFAULT_INTERVAL", "5")
	t.Setenv("DEFAULT_THRESHOLD", "0.7")

	override := validSettings()
	override.DefaultInterval = 3
	override.OCREnabled = false

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Extraction.DefaultInterval)
	assert.InDelta(t, 0.6, cfg.Extraction.DefaultThreshold, 1e-9)
	assert.False(t, cfg.OCR.Enabled)
	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_Update(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewRuntimeSettingsStore(filePath, validSettings())
	require.NoError(t, err)

	next := validSettings()
	next.DefaultThreshold = 0.8
	saved, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, saved)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)

	onDisk, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, onDisk)

	bad := validSettings()
	bad.DefaultInterval = 99
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)

	current, err = store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)
}

func TestNewRuntimeSettingsStore_RequiresPath(t *testing.T) {
	_, err := NewRuntimeSettingsStore(" ", validSettings())
	require.Error(t, err)
}
