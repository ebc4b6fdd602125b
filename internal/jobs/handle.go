package jobs

import (
	"fmt"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/pkg/log"
)

// Handle is the write side of one job, given to its executor.
type Handle struct {
	r       *Registry
	id      string
	source  string
	workDir string
	params  Params
	archive *archive.Archive
}

func (h *Handle) ID() string                { return h.id }
func (h *Handle) Source() string            { return h.source }
func (h *Handle) WorkDir() string           { return h.workDir }
func (h *Handle) Params() Params            { return h.params }
func (h *Handle) Archive() *archive.Archive { return h.archive }

// SetStatus moves the job forward. Backward moves and any move out of a
// terminal status are rejected. A negative progress keeps the current value.
func (h *Handle) SetStatus(status Status, progress int, message string) error {
	err := h.r.update(h.id, func(job *ExtractionJob) error {
		if job.Status.Terminal() || status.rank() < job.Status.rank() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
		}
		job.Status = status
		if progress >= 0 {
			job.Progress = min(progress, 100)
		}
		job.Message = message
		return nil
	})
	if err != nil {
		log.Warn("[JOB %s] status update rejected: %v", h.id, err)
	}
	return err
}

// SetProgress updates progress and, when non-empty, the message of a running
// job. Finished jobs are left untouched.
func (h *Handle) SetProgress(progress int, message string) {
	_ = h.r.update(h.id, func(job *ExtractionJob) error {
		if job.Status.Terminal() {
			return ErrInvalidTransition
		}
		job.Progress = max(0, min(progress, 100))
		if message != "" {
			job.Message = message
		}
		return nil
	})
}

func (h *Handle) SetSlides(n int) {
	_ = h.r.update(h.id, func(job *ExtractionJob) error {
		job.SlideCount = n
		return nil
	})
}
