// Package metrics exposes extraction counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video2slides_jobs_submitted_total",
		Help: "Total number of extraction jobs accepted",
	})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video2slides_jobs_finished_total",
		Help: "Total number of extraction jobs finished, by status",
	}, []string{"status"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video2slides_active_jobs",
		Help: "Number of extraction jobs still downloading or extracting",
	})

	RetainedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video2slides_retained_jobs",
		Help: "Number of jobs whose working directory has not been purged",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "video2slides_stage_duration_seconds",
		Help:    "Duration of extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesComparedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video2slides_frames_compared_total",
		Help: "Total number of sampled frames classified, by deciding signal",
	}, []string{"signal"})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video2slides_frames_skipped_total",
		Help: "Total number of sampled frames that could not be decoded",
	})

	SlidesKeptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video2slides_slides_kept_total",
		Help: "Total number of slides kept across all jobs",
	})
)
