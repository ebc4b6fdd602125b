package metrics

import (
	"time"

	"github.com/MimeLyc/video2slides/internal/detect"
	"github.com/MimeLyc/video2slides/internal/jobs"
)

// Recorder feeds the collectors from registry and pipeline events.
type Recorder struct{}

func (Recorder) JobChanged(from jobs.Status, job *jobs.ExtractionJob) {
	switch {
	case from == "":
		JobsSubmittedTotal.Inc()
		ActiveJobs.Inc()
		RetainedJobs.Inc()
	case !from.Terminal() && job.Status.Terminal():
		ActiveJobs.Dec()
		JobsFinishedTotal.WithLabelValues(string(job.Status)).Inc()
	}
}

func (Recorder) JobPurged(job *jobs.ExtractionJob) {
	if !job.Status.Terminal() {
		ActiveJobs.Dec()
	}
	RetainedJobs.Dec()
}

func (Recorder) StageDuration(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (Recorder) FrameCompared(decision detect.Decision) {
	FramesComparedTotal.WithLabelValues(string(decision.Signal)).Inc()
}

func (Recorder) SlideKept() {
	SlidesKeptTotal.Inc()
}

func (Recorder) FramesSkipped(n int) {
	if n > 0 {
		FramesSkippedTotal.Add(float64(n))
	}
}
