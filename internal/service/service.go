// Package service is the caller-facing side of slide extraction: submit a
// video, poll its status and fetch the assembled document.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/jobs"
	"github.com/MimeLyc/video2slides/internal/pipeline"
	"github.com/MimeLyc/video2slides/pkg/icron"
	"github.com/MimeLyc/video2slides/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

type Runner interface {
	Run(ctx context.Context, h pipeline.Handle) error
}

type Assembler interface {
	Assemble(records []archive.SlideRecord) ([]byte, error)
}

// SourceValidator rejects references the acquisition layer must not fetch.
type SourceValidator interface {
	Validate(ref string) error
}

type Service struct {
	registry  *jobs.Registry
	runner    Runner
	assembler Assembler
	sources   SourceValidator
	errs      ErrorHandler

	docs   singleflight.Group
	sweeps singleflight.Group
}

type Option func(*Service)

// WithSourceValidator checks every submitted source before a job is created.
func WithSourceValidator(v SourceValidator) Option {
	return func(s *Service) {
		s.sources = v
	}
}

func New(registry *jobs.Registry, runner Runner, assembler Assembler, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		runner:    runner,
		assembler: assembler,
		errs:      NewDefaultErrorHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, registers the job and starts it in the background.
// Invalid requests leave the registry untouched.
func (s *Service) Submit(_ context.Context, req SubmitRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if s.sources != nil {
		if err := s.sources.Validate(strings.TrimSpace(req.Source)); err != nil {
			return "", NewErrorWithCause(KindValidation, "Source must be an http(s) video URL", err).
				WithContext("source", req.Source)
		}
	}

	job, err := s.registry.Create(jobs.CreateRequest{
		Source: strings.TrimSpace(req.Source),
		Params: jobs.Params{
			IntervalSeconds:     req.IntervalSeconds,
			SimilarityThreshold: req.SimilarityThreshold,
		},
	})
	if err != nil {
		return "", WrapError(err, KindUnknown, "failed to create extraction")
	}
	if err := s.registry.Start(job.ID, s.execute); err != nil {
		s.registry.Purge(job.ID)
		return "", WrapError(err, KindUnknown, "failed to start extraction")
	}
	log.Info("Starting extraction process for ID: %s", job.ID)
	return job.ID, nil
}

func validate(req SubmitRequest) error {
	if strings.TrimSpace(req.Source) == "" {
		return NewError(KindValidation, "YouTube URL is required")
	}
	if req.IntervalSeconds < config.MinIntervalSeconds || req.IntervalSeconds > config.MaxIntervalSeconds {
		return NewError(KindValidation, fmt.Sprintf("Interval must be between %d and %d seconds",
			config.MinIntervalSeconds, config.MaxIntervalSeconds)).
			WithContext("interval", req.IntervalSeconds)
	}
	if req.SimilarityThreshold < config.MinSimilarityThresh || req.SimilarityThreshold > config.MaxSimilarityThresh {
		return NewError(KindValidation, fmt.Sprintf("Threshold must be between %.1f and %.1f",
			config.MinSimilarityThresh, config.MaxSimilarityThresh)).
			WithContext("threshold", req.SimilarityThreshold)
	}
	return nil
}

// execute is the job body run by the registry. Every failure, panics
// included, ends in the error status.
func (s *Service) execute(ctx context.Context, h *jobs.Handle) error {
	err := SafeExecute(func() error {
		return s.runner.Run(ctx, h)
	})
	if err == nil {
		return nil
	}

	svcErr := Classify(err)
	s.errs.Handle(svcErr)
	_ = h.SetStatus(jobs.StatusError, -1, svcErr.JobMessage())
	return svcErr
}

func (s *Service) GetStatus(id string) (Status, error) {
	job, ok := s.registry.Get(id)
	if !ok {
		return Status{}, NewError(KindNotFound, "Extraction not found").WithContext("id", id)
	}
	return statusOf(job), nil
}

func (s *Service) List() []Status {
	all := s.registry.List()
	ret := make([]Status, 0, len(all))
	for _, job := range all {
		ret = append(ret, statusOf(job))
	}
	return ret
}

// Slides returns the slides kept so far, in order.
func (s *Service) Slides(id string) ([]archive.SlideRecord, error) {
	records, err := s.registry.Slides(id)
	if err != nil {
		return nil, NewErrorWithCause(KindNotFound, "Extraction not found", err).WithContext("id", id)
	}
	return records, nil
}

// GetDocument assembles the PDF of a completed job. Concurrent calls for the
// same job share one assembly. A successful fetch restarts the retention
// window.
func (s *Service) GetDocument(ctx context.Context, id string) ([]byte, error) {
	job, ok := s.registry.Get(id)
	if !ok {
		return nil, NewError(KindNotFound, "Extraction not found").WithContext("id", id)
	}
	if job.Status != jobs.StatusCompleted {
		return nil, NewError(KindNotReady, "Extraction not yet completed").
			WithContext("status", string(job.Status))
	}

	ch := s.docs.DoChan(id, func() (any, error) {
		records, err := s.registry.Slides(id)
		if err != nil {
			return nil, NewErrorWithCause(KindNotFound, "Extraction not found", err)
		}
		data, err := s.assembler.Assemble(records)
		if err != nil {
			return nil, NewErrorWithCause(KindGenerationFailed, "Failed to generate PDF", err)
		}
		return data, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		s.errs.Handle(res.Err)
		return nil, res.Err
	}

	if purgeAt, err := s.registry.Touch(id); err == nil {
		log.Info("Document for %s delivered, cleanup scheduled at %s", id, purgeAt.Format(time.RFC3339))
	} else if !errors.Is(err, jobs.ErrNotFound) {
		log.Warn("Failed to extend retention of %s: %v", id, err)
	}
	return res.Val.([]byte), nil
}

// Schedule registers the periodic sweep of expired jobs and stale work
// directories on c.
func (s *Service) Schedule(c *cron.Cron, expr string) (cron.EntryID, error) {
	if err := icron.Validate(expr); err != nil {
		return 0, fmt.Errorf("invalid cleanup schedule %q: %w", expr, err)
	}
	return c.AddFunc(expr, func() {
		_, _, _ = s.sweeps.Do("sweep", func() (any, error) {
			if n := s.registry.Sweep(time.Now()); n > 0 {
				log.Info("Cleanup removed %d expired extractions", n)
			}
			return nil, nil
		})
	})
}
