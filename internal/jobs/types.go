package jobs

import "time"

type Status string

const (
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// rank orders statuses along the only allowed direction of travel.
func (s Status) rank() int {
	switch s {
	case StatusDownloading:
		return 0
	case StatusExtracting:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// Params are the caller-chosen extraction parameters.
type Params struct {
	IntervalSeconds     int     `json:"interval"`
	SimilarityThreshold float64 `json:"threshold"`
}

type CreateRequest struct {
	Source string
	Params Params
}

type ExtractionJob struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Params     Params    `json:"params"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	SlideCount int       `json:"slides_count"`
	WorkDir    string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	PurgeAt    time.Time `json:"purge_at,omitzero"`
}

func cloneJob(job *ExtractionJob) *ExtractionJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
