package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/video2slides/internal/service"
)

// handleExtractionStream pushes status snapshots as server-sent events. With
// ?id= it follows one extraction and ends after its final status; without it
// streams the full list until the client leaves.
func (s *Server) handleExtractionStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id := r.URL.Query().Get("id")
	if id != "" {
		if _, err := s.svc.GetStatus(id); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send reports whether the stream should continue.
	send := func() bool {
		var data any = s.svc.List()
		done := false
		if id != "" {
			st, err := s.svc.GetStatus(id)
			if err != nil {
				fmt.Fprintf(w, "event: gone\ndata: {}\n\n")
				flusher.Flush()
				return false
			}
			data = st
			done = st.State.Terminal()
		}

		payload, err := json.Marshal(data)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return !done
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

var _ extractionService = (*service.Service)(nil)
