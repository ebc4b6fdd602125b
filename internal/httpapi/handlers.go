package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/deps"
	"github.com/MimeLyc/video2slides/internal/service"
	"github.com/MimeLyc/video2slides/pkg/icron"
	"github.com/MimeLyc/video2slides/pkg/log"
)

const (
	fallbackInterval  = 2
	fallbackThreshold = 0.6
)

type submitRequest struct {
	YoutubeURL string   `json:"youtube_url"`
	Source     string   `json:"source"`
	Interval   *int     `json:"interval"`
	Threshold  *float64 `json:"threshold"`
}

func (s *Server) handleExtractions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.svc.List())
	case http.MethodPost:
		req, err := s.decodeSubmit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := s.svc.Submit(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":        "success",
			"extraction_id": id,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// decodeSubmit accepts a JSON body or an HTML form. Missing parameters take
// the current runtime defaults.
func (s *Server) decodeSubmit(r *http.Request) (service.SubmitRequest, error) {
	var body submitRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return service.SubmitRequest{}, fmt.Errorf("invalid json body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return service.SubmitRequest{}, fmt.Errorf("invalid form body")
		}
		body.YoutubeURL = r.PostForm.Get("youtube_url")
		body.Source = r.PostForm.Get("source")
		if raw := strings.TrimSpace(r.PostForm.Get("interval")); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return service.SubmitRequest{}, fmt.Errorf("interval must be a whole number of seconds")
			}
			body.Interval = &v
		}
		if raw := strings.TrimSpace(r.PostForm.Get("threshold")); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return service.SubmitRequest{}, fmt.Errorf("threshold must be a number")
			}
			body.Threshold = &v
		}
	}

	interval, threshold := s.defaults()
	if body.Interval != nil {
		interval = *body.Interval
	}
	if body.Threshold != nil {
		threshold = *body.Threshold
	}
	source := body.Source
	if strings.TrimSpace(source) == "" {
		source = body.YoutubeURL
	}
	return service.SubmitRequest{
		Source:              source,
		IntervalSeconds:     interval,
		SimilarityThreshold: threshold,
	}, nil
}

func (s *Server) defaults() (int, float64) {
	if s.settings == nil {
		return fallbackInterval, fallbackThreshold
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		log.Warn("Failed to read runtime settings, using built-in defaults: %v", err)
		return fallbackInterval, fallbackThreshold
	}
	return settings.DefaultInterval, settings.DefaultThreshold
}

func (s *Server) handleExtractionRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, action, ok := parseExtractionRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case len(action) == 0:
		s.handleStatus(w, id)
	case len(action) == 1 && action[0] == "slides":
		s.handleSlides(w, id)
	case len(action) == 2 && action[0] == "slides":
		s.handleSlideImage(w, r, id, action[1])
	case len(action) == 1 && action[0] == "document":
		s.handleDocument(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// parseExtractionRoute splits /api/extractions/{id}/{action...}.
func parseExtractionRoute(path string) (id string, action []string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/api/extractions/")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", nil, false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 3 {
		return "", nil, false
	}
	rawID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(rawID) == "" {
		return "", nil, false
	}
	return rawID, parts[1:], true
}

func (s *Server) handleStatus(w http.ResponseWriter, id string) {
	st, err := s.svc.GetStatus(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type slideResponse struct {
	Seq           int     `json:"seq"`
	Timestamp     string  `json:"timestamp"`
	OffsetSeconds float64 `json:"offset_seconds"`
	Text          string  `json:"text,omitempty"`
	Language      string  `json:"language,omitempty"`
	ImageURL      string  `json:"image_url"`
}

func (s *Server) handleSlides(w http.ResponseWriter, id string) {
	records, err := s.svc.Slides(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ret := make([]slideResponse, 0, len(records))
	for _, rec := range records {
		ret = append(ret, slideResponse{
			Seq:           rec.Seq,
			Timestamp:     rec.Timestamp,
			OffsetSeconds: rec.Offset.Seconds(),
			Text:          rec.Text,
			Language:      rec.Language,
			ImageURL:      fmt.Sprintf("/api/extractions/%s/slides/%d", url.PathEscape(id), rec.Seq),
		})
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleSlideImage(w http.ResponseWriter, r *http.Request, id, rawSeq string) {
	seq, err := strconv.Atoi(rawSeq)
	if err != nil || seq < 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	records, err := s.svc.Slides(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if seq >= len(records) {
		writeError(w, http.StatusNotFound, "slide not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, records[seq].Path)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, id string) {
	data, err := s.svc.GetDocument(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="slides.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type healthResponse struct {
	Status    string        `json:"status"`
	Missing   []string      `json:"missing,omitempty"`
	Binaries  []deps.Status `json:"binaries"`
	NextSweep time.Time     `json:"next_sweep,omitzero"`
	LastSweep time.Time     `json:"last_sweep,omitzero"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Status:   "ok",
		Missing:  deps.MissingRequired(s.binaries),
		Binaries: s.binaries,
	}
	if resp.Binaries == nil {
		resp.Binaries = []deps.Status{}
	}
	if len(resp.Missing) > 0 {
		resp.Status = "degraded"
	}
	if s.cleanupCron != "" {
		if info, err := icron.GetTriggerInfo(s.cleanupCron, time.Now()); err == nil {
			resp.NextSweep = info.Next
			resp.LastSweep = info.Last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusInternalServerError
	switch svcErr.Kind {
	case service.KindValidation:
		code = http.StatusBadRequest
	case service.KindNotFound:
		code = http.StatusNotFound
	case service.KindNotReady:
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{
		"status":  "error",
		"message": svcErr.Message,
		"advice":  service.NewDefaultErrorHandler().GetAdvice(svcErr),
	})
}
