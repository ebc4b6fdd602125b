// Package pipeline runs one extraction job from source reference to a
// finished slide archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/video2slides/internal/acquire"
	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/detect"
	"github.com/MimeLyc/video2slides/internal/jobs"
	"github.com/MimeLyc/video2slides/internal/media"
	"github.com/MimeLyc/video2slides/internal/ocr"
	"github.com/MimeLyc/video2slides/internal/sampler"
	"github.com/MimeLyc/video2slides/pkg/log"
)

// ErrNoSlides means the video was processed but nothing was kept.
var ErrNoSlides = errors.New("no slides were found")

const (
	progressExtracting = 10
	progressLoopEnd    = 99
)

// Handle is the write access a running job has to its registry entry.
type Handle interface {
	ID() string
	Source() string
	WorkDir() string
	Params() jobs.Params
	Archive() *archive.Archive
	SetStatus(status jobs.Status, progress int, message string) error
	SetProgress(progress int, message string)
	SetSlides(n int)
}

type Acquirer interface {
	Acquire(ctx context.Context, ref, dir string) (acquire.Result, error)
}

// Recorder receives per-stage measurements. All methods must be cheap.
type Recorder interface {
	StageDuration(stage string, d time.Duration)
	FrameCompared(decision detect.Decision)
	// SlideKept is called once per slide saved to the archive.
	SlideKept()
	FramesSkipped(n int)
}

type nopRecorder struct{}

func (nopRecorder) StageDuration(string, time.Duration) {}
func (nopRecorder) FrameCompared(detect.Decision)       {}
func (nopRecorder) SlideKept()                          {}
func (nopRecorder) FramesSkipped(int)                   {}

type Deps struct {
	Source     Acquirer
	Opener     media.Opener
	Recognizer ocr.Recognizer
	// Settings returns the detection settings in force when a job starts.
	Settings func() config.RuntimeSettings
	Recorder Recorder
}

type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Recognizer == nil {
		deps.Recognizer = ocr.Unavailable{}
	}
	if deps.Settings == nil {
		deps.Settings = func() config.RuntimeSettings {
			opts := detect.DefaultOptions()
			return config.RuntimeSettings{
				HistogramCutoff: opts.HistogramCutoff,
				TextDiffCutoff:  opts.TextDiffCutoff,
				OCREnabled:      true,
			}
		}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Orchestrator{deps: deps}
}

// Run downloads the source, scans it and marks the job completed when at
// least one slide was kept. Failures are returned for the caller to record.
func (o *Orchestrator) Run(ctx context.Context, h Handle) error {
	logger := log.GetLogger().WithPrefix(fmt.Sprintf("[JOB %s]", h.ID()))
	params := h.Params()
	logger.Info("Starting extraction: interval=%ds threshold=%.2f", params.IntervalSeconds, params.SimilarityThreshold)

	start := time.Now()
	res, err := o.deps.Source.Acquire(ctx, h.Source(), h.WorkDir())
	o.deps.Recorder.StageDuration("download", time.Since(start))
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	logger.Info("Video ready at %s via %s", res.Path, res.Strategy)

	if err := h.SetStatus(jobs.StatusExtracting, progressExtracting, "Extracting slides..."); err != nil {
		return err
	}

	start = time.Now()
	video, err := media.OpenWithFallback(ctx, o.deps.Opener, res.Path)
	o.deps.Recorder.StageDuration("open", time.Since(start))
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer video.Close()

	info := video.Info()
	logger.Info("Video properties: FPS=%.2f, Total Frames=%d, Duration=%.2f seconds",
		info.FPS, info.FrameCount, info.Duration.Seconds())

	start = time.Now()
	n, err := o.scan(ctx, logger, h, video)
	o.deps.Recorder.StageDuration("scan", time.Since(start))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoSlides
	}

	logger.Info("Extracted %d slides", n)
	return h.SetStatus(jobs.StatusCompleted, 100, fmt.Sprintf("Extraction complete! %d slides found.", n))
}

func (o *Orchestrator) scan(ctx context.Context, logger *log.Logger, h Handle, video media.Video) (int, error) {
	params := h.Params()
	settings := o.deps.Settings()

	opts := detect.DefaultOptions()
	opts.SimilarityThreshold = params.SimilarityThreshold
	opts.HistogramCutoff = settings.HistogramCutoff
	opts.TextDiffCutoff = settings.TextDiffCutoff
	recognizer := o.deps.Recognizer
	if !settings.OCREnabled {
		recognizer = ocr.Unavailable{}
	}
	det := detect.New(opts, recognizer)

	smp := sampler.New(video, time.Duration(params.IntervalSeconds)*time.Second)
	total := smp.TotalFrames()
	logger.Info("Sampling every %d frames (%d planned)", smp.Step(), smp.Planned())

	arc := h.Archive()
	lastProgress := progressExtracting
	for sample := range smp.Samples(ctx) {
		decision := det.Observe(ctx, sample.Image)
		o.deps.Recorder.FrameCompared(decision)

		if decision.Different {
			text, _ := det.BaselineText()
			rec, err := arc.Append(sample.Image, sample.Offset, text)
			if err != nil {
				return 0, fmt.Errorf("save slide: %w", err)
			}
			o.deps.Recorder.SlideKept()
			h.SetSlides(arc.Len())
			logger.Info("Slide %d detected at %s (%s)", rec.Seq+1, rec.Timestamp, decision.Signal)
		}

		progress := progressExtracting + (sample.Index+1)*(progressLoopEnd-progressExtracting)/total
		if progress > lastProgress {
			lastProgress = progress
			h.SetProgress(progress, "")
		}
	}
	o.deps.Recorder.FramesSkipped(smp.Skipped())

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("extraction cancelled: %w", err)
	}
	return arc.Len(), nil
}
