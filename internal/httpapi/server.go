// Package httpapi is the HTTP front end of the extraction service.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/deps"
	"github.com/MimeLyc/video2slides/internal/service"
)

type extractionService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
	GetStatus(id string) (service.Status, error)
	List() []service.Status
	Slides(id string) ([]archive.SlideRecord, error)
	GetDocument(ctx context.Context, id string) ([]byte, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type Server struct {
	svc      extractionService
	settings runtimeSettingsStore

	binaries    []deps.Status
	cleanupCron string
	metrics     http.Handler

	streamInterval time.Duration

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

// WithHealth reports binary availability and the next cleanup run on
// /api/health.
func WithHealth(binaries []deps.Status, cleanupCron string) Option {
	return func(s *Server) {
		s.binaries = binaries
		s.cleanupCron = cleanupCron
	}
}

func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func NewServer(svc extractionService, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		streamInterval: time.Second,
		uiEnabled:      false,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/extractions", s.handleExtractions)
	s.mux.HandleFunc("/api/extractions/stream", s.handleExtractionStream)
	s.mux.HandleFunc("/api/extractions/", s.handleExtractionRoutes)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
