package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/pkg/icron"
	"github.com/MimeLyc/video2slides/pkg/log"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from environment variables (optionally loaded from a .env file
// by the entrypoint) with sensible defaults.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_STATIC_DIR: static front end directory (default: /app/web)
// - UI_ENABLED: serve the static front end (default: false)
//
// System:
// - DATA_DIR: root for job working directories and settings (default: $TMPDIR/video2slides)
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: also write logs to this file (default: stdout only)
// - SETTINGS_FILE: runtime settings file (default: $DATA_DIR/settings.json)
//
// Extraction:
// - DEFAULT_INTERVAL: sampling interval in seconds (default: 2)
// - DEFAULT_THRESHOLD: similarity threshold (default: 0.6)
// - HISTOGRAM_CUTOFF: histogram correlation cutoff (default: 0.95)
// - TEXT_DIFF_CUTOFF: OCR text difference cutoff (default: 0.3)
// - RETENTION: how long finished jobs stay available (default: 300s)
// - JOB_TIMEOUT: overall deadline of one extraction (default: 30m)
// - CLEANUP_CRON: sweep schedule for expired jobs (default: @every 1m)
// - MAX_JOBS: retained jobs before the oldest finished ones are purged early (default: 50, 0 = no cap)
//
// Acquisition:
// - ACQUIRE_MAX_ATTEMPTS: attempts per acquisition strategy (default: 3)
// - ACQUIRE_RETRY_DELAY: delay between attempts (default: 2s)
// - LOCAL_SOURCE_DIR: directory whose files may be submitted by path (default: empty, local paths rejected)
//
// Tools:
// - FFMPEG_BIN, FFPROBE_BIN, YTDLP_BIN, TESSERACT_BIN
//
// OCR:
// - OCR_ENABLED: use tesseract when available (default: true)
// - OCR_LANGUAGE: BCP 47 tag of the slide language (default: en)
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	System     SystemConfig     `json:"system"`
	Extraction ExtractionConfig `json:"extraction"`
	Acquire    AcquireConfig    `json:"acquire"`
	Tools      ToolsConfig      `json:"tools"`
	OCR        OCRConfig        `json:"ocr"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file"`
	SettingsFile string `json:"settings_file"`
}

type ExtractionConfig struct {
	DefaultInterval  int           `json:"default_interval"`
	DefaultThreshold float64       `json:"default_threshold"`
	HistogramCutoff  float64       `json:"histogram_cutoff"`
	TextDiffCutoff   float64       `json:"text_diff_cutoff"`
	Retention        time.Duration `json:"retention"`
	JobTimeout       time.Duration `json:"job_timeout"`
	CleanupCron      string        `json:"cleanup_cron"`
	MaxJobs          int           `json:"max_jobs"`
}

type AcquireConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	RetryDelay  time.Duration `json:"retry_delay"`
	// LocalRoot enables submitting files under this directory by path.
	LocalRoot string `json:"local_root"`
}

// ToolsConfig names the external binaries; bare names are resolved on PATH.
type ToolsConfig struct {
	FFmpeg    string `json:"ffmpeg"`
	FFprobe   string `json:"ffprobe"`
	YtDlp     string `json:"ytdlp"`
	Tesseract string `json:"tesseract"`
}

type OCRConfig struct {
	Enabled  bool         `json:"enabled"`
	Language language.Tag `json:"language"`
}

// WorkRoot is the parent directory of every job working directory.
func (c Config) WorkRoot() string {
	return filepath.Join(c.System.DataDir, "jobs")
}

type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", filepath.Join(os.TempDir(), "video2slides"))

	config := &Config{
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			UIEnabled:   getEnvBool("UI_ENABLED", false),
		},
		System: SystemConfig{
			DataDir:      dataDir,
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
			LogFile:      getEnvString("LOG_FILE", ""),
			SettingsFile: getEnvString("SETTINGS_FILE", filepath.Join(dataDir, "settings.json")),
		},
		Extraction: ExtractionConfig{
			DefaultInterval:  getEnvInt("DEFAULT_INTERVAL", 2),
			DefaultThreshold: getEnvFloat("DEFAULT_THRESHOLD", 0.6),
			HistogramCutoff:  getEnvFloat("HISTOGRAM_CUTOFF", 0.95),
			TextDiffCutoff:   getEnvFloat("TEXT_DIFF_CUTOFF", 0.3),
			Retention:        getEnvDuration("RETENTION", 300*time.Second),
			JobTimeout:       getEnvDuration("JOB_TIMEOUT", 30*time.Minute),
			CleanupCron:      getEnvString("CLEANUP_CRON", "@every 1m"),
			MaxJobs:          getEnvInt("MAX_JOBS", 50),
		},
		Acquire: AcquireConfig{
			MaxAttempts: getEnvInt("ACQUIRE_MAX_ATTEMPTS", 3),
			RetryDelay:  getEnvDuration("ACQUIRE_RETRY_DELAY", 2*time.Second),
			LocalRoot:   getEnvString("LOCAL_SOURCE_DIR", ""),
		},
		Tools: ToolsConfig{
			FFmpeg:    getEnvString("FFMPEG_BIN", "ffmpeg"),
			FFprobe:   getEnvString("FFPROBE_BIN", "ffprobe"),
			YtDlp:     getEnvString("YTDLP_BIN", "yt-dlp"),
			Tesseract: getEnvString("TESSERACT_BIN", "tesseract"),
		},
		OCR: OCRConfig{
			Enabled:  getEnvBool("OCR_ENABLED", true),
			Language: getEnvLanguage("OCR_LANGUAGE", language.English),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if err := c.RuntimeSettings().Validate(); err != nil {
		return err
	}
	if c.Extraction.Retention <= 0 {
		return fmt.Errorf("RETENTION must be positive")
	}
	if c.Extraction.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive")
	}
	if err := icron.Validate(c.Extraction.CleanupCron); err != nil {
		return fmt.Errorf("CLEANUP_CRON: %w", err)
	}
	if c.Extraction.MaxJobs < 0 {
		return fmt.Errorf("MAX_JOBS must not be negative")
	}
	if c.Acquire.MaxAttempts < 1 {
		return fmt.Errorf("ACQUIRE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Acquire.RetryDelay < 0 {
		return fmt.Errorf("ACQUIRE_RETRY_DELAY must not be negative")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}
