package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MimeLyc/video2slides/internal/acquire"
	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/deps"
	"github.com/MimeLyc/video2slides/internal/document"
	"github.com/MimeLyc/video2slides/internal/httpapi"
	"github.com/MimeLyc/video2slides/internal/jobs"
	"github.com/MimeLyc/video2slides/internal/media"
	"github.com/MimeLyc/video2slides/internal/metrics"
	"github.com/MimeLyc/video2slides/internal/ocr"
	"github.com/MimeLyc/video2slides/internal/pipeline"
	"github.com/MimeLyc/video2slides/internal/service"
	"github.com/MimeLyc/video2slides/pkg/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// sweepScheduler registers the cleanup sweep on the cron engine.
type sweepScheduler struct {
	svc  *service.Service
	cron *cron.Cron
	expr string
}

func (s sweepScheduler) Schedule(context.Context) error {
	_, err := s.svc.Schedule(s.cron, s.expr)
	return err
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	closeLog, err := initLogging(cfg.System)
	if err != nil {
		log.Fatal("Failed to open log file: %v", err)
	}
	defer closeLog()

	binaries := deps.CheckBinaries(deps.Requirements(cfg.Tools))
	for _, b := range binaries {
		if b.Available {
			continue
		}
		if b.Optional {
			log.Warn("Optional binary %s (%s) not available: %s", b.Name, b.Command, b.Detail)
		} else {
			log.Error("Required binary %s (%s) not available: %s", b.Name, b.Command, b.Detail)
		}
	}

	store, err := config.NewRuntimeSettingsStore(cfg.System.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to initialize runtime settings: %v", err)
	}

	recorder := metrics.Recorder{}
	registry, err := jobs.NewRegistry(jobs.Options{
		Root:       cfg.WorkRoot(),
		Retention:  cfg.Extraction.Retention,
		JobTimeout: cfg.Extraction.JobTimeout,
		MaxJobs:    cfg.Extraction.MaxJobs,
		Observer:   recorder,
	})
	if err != nil {
		log.Fatal("Failed to initialize job registry: %v", err)
	}
	defer registry.Stop()

	source := acquire.NewDefaultSource(cfg.Acquire, cfg.Tools)
	runner := pipeline.New(pipeline.Deps{
		Source:     source,
		Opener:     media.NewOpener(cfg.Tools),
		Recognizer: ocr.Detect(cfg.OCR, cfg.Tools),
		Settings: func() config.RuntimeSettings {
			settings, err := store.GetRuntimeSettings()
			if err != nil {
				return cfg.RuntimeSettings()
			}
			return settings
		},
		Recorder: recorder,
	})
	svc := service.New(registry, runner, document.NewAssembler(nil), service.WithSourceValidator(source))

	cronEng := cron.New()
	srv := httpapi.NewServer(svc,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithRuntimeSettingsStore(store),
		httpapi.WithHealth(binaries, cfg.Extraction.CleanupCron),
		httpapi.WithMetrics(promhttp.Handler()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := sweepScheduler{svc: svc, cron: cronEng, expr: cfg.Extraction.CleanupCron}
	if err := runWithComponents(ctx, cfg, sched, cronEng, srv); err != nil {
		log.Error("Server stopped with error: %v", err)
		registry.Stop()
		_ = closeLog()
		os.Exit(1)
	}
}

// initLogging installs the global logger, writing to LOG_FILE as well when
// it is set, and returns the function that closes it.
func initLogging(cfg config.SystemConfig) (func() error, error) {
	level := log.ParseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		log.InitLogger(level)
		return func() error { return nil }, nil
	}
	fl, err := log.InitFileLogger(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}
	return fl.Close, nil
}

// loadConfig reads the environment and overlays the saved runtime settings
// when a settings file exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}
	saved, err := config.LoadRuntimeSettingsFile(cfg.System.SettingsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Ignoring settings file %s: %v", cfg.System.SettingsFile, err)
		}
		return cfg, nil
	}
	return config.NewFromEnv(config.WithRuntimeSettings(saved))
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEng cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEng.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}

	select {
	case <-cronEng.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Cleanup job still running at shutdown")
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
