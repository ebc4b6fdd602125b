package service

import (
	"time"

	"github.com/MimeLyc/video2slides/internal/jobs"
)

// SubmitRequest is a caller's extraction request.
type SubmitRequest struct {
	Source              string
	IntervalSeconds     int
	SimilarityThreshold float64
}

// Status is the polling view of a job.
type Status struct {
	ID         string      `json:"id"`
	State      jobs.Status `json:"status"`
	Progress   int         `json:"progress"`
	Message    string      `json:"message"`
	SlideCount int         `json:"slides_count"`
	Params     jobs.Params `json:"params"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	PurgeAt    time.Time   `json:"purge_at,omitzero"`
}

func statusOf(job *jobs.ExtractionJob) Status {
	return Status{
		ID:         job.ID,
		State:      job.Status,
		Progress:   job.Progress,
		Message:    job.Message,
		SlideCount: job.SlideCount,
		Params:     job.Params,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		PurgeAt:    job.PurgeAt,
	}
}
