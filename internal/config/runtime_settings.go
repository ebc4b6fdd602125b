package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	MinIntervalSeconds  = 1
	MaxIntervalSeconds  = 30
	MinSimilarityThresh = 0.1
	MaxSimilarityThresh = 1.0
)

// RuntimeSettings are the detection defaults that can be changed while the
// server runs. Jobs read them once when they start.
type RuntimeSettings struct {
	DefaultInterval  int     `json:"default_interval"`
	DefaultThreshold float64 `json:"default_threshold"`
	HistogramCutoff  float64 `json:"histogram_cutoff"`
	TextDiffCutoff   float64 `json:"text_diff_cutoff"`
	OCREnabled       bool    `json:"ocr_enabled"`
}

func (s RuntimeSettings) Validate() error {
	if s.DefaultInterval < MinIntervalSeconds || s.DefaultInterval > MaxIntervalSeconds {
		return fmt.Errorf("default_interval must be between %d and %d seconds", MinIntervalSeconds, MaxIntervalSeconds)
	}
	if s.DefaultThreshold < MinSimilarityThresh || s.DefaultThreshold > MaxSimilarityThresh {
		return fmt.Errorf("default_threshold must be between %.1f and %.1f", MinSimilarityThresh, MaxSimilarityThresh)
	}
	if s.HistogramCutoff < -1 || s.HistogramCutoff > 1 {
		return fmt.Errorf("histogram_cutoff must be between -1 and 1")
	}
	if s.TextDiffCutoff < 0 || s.TextDiffCutoff > 1 {
		return fmt.Errorf("text_diff_cutoff must be between 0 and 1")
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		DefaultInterval:  c.Extraction.DefaultInterval,
		DefaultThreshold: c.Extraction.DefaultThreshold,
		HistogramCutoff:  c.Extraction.HistogramCutoff,
		TextDiffCutoff:   c.Extraction.TextDiffCutoff,
		OCREnabled:       c.OCR.Enabled,
	}
}

// WithRuntimeSettings overlays previously saved settings on top of the env.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if settings.DefaultInterval != 0 {
			c.Extraction.DefaultInterval = settings.DefaultInterval
		}
		if settings.DefaultThreshold != 0 {
			c.Extraction.DefaultThreshold = settings.DefaultThreshold
		}
		if settings.HistogramCutoff != 0 {
			c.Extraction.HistogramCutoff = settings.HistogramCutoff
		}
		if settings.TextDiffCutoff != 0 {
			c.Extraction.TextDiffCutoff = settings.TextDiffCutoff
		}
		c.OCR.Enabled = settings.OCREnabled
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
