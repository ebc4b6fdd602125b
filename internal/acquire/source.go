// Package acquire obtains a local video file for a source reference.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/deps"
	"github.com/MimeLyc/video2slides/pkg/file"
	"github.com/MimeLyc/video2slides/pkg/log"
)

var (
	ErrExhausted = errors.New("failed to download video")
	// ErrNotApplicable lets a strategy decline a reference without
	// consuming retries.
	ErrNotApplicable = errors.New("source not handled by strategy")
	// ErrLocalSource rejects server-side paths outside the allowed root.
	ErrLocalSource = errors.New("local file sources are not allowed")
)

// Strategy fetches ref into dir and returns the written file.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, ref, dir string) (string, error)
}

type Result struct {
	Path     string
	Strategy string
	Attempts int
}

// Source tries its strategies in order, each under the retry policy.
type Source struct {
	policy     RetryPolicy
	strategies []Strategy
}

func NewSource(policy RetryPolicy, strategies ...Strategy) *Source {
	return &Source{policy: policy, strategies: strategies}
}

// NewDefaultSource wires the yt-dlp and direct HTTP strategies, preceded by
// the local strategy when cfg.LocalRoot is set. yt-dlp is skipped when its
// binary cannot be resolved. A zero attempt count uses DefaultRetryPolicy.
func NewDefaultSource(cfg config.AcquireConfig, tools config.ToolsConfig) *Source {
	var strategies []Strategy
	if cfg.LocalRoot != "" {
		strategies = append(strategies, NewLocal(cfg.LocalRoot))
	}
	if bin, err := deps.Resolve(tools.YtDlp); err == nil {
		strategies = append(strategies, NewYtDlp(bin))
	} else {
		log.Warn("yt-dlp unavailable, hosted videos need a direct media URL: %v", err)
	}
	strategies = append(strategies, NewHTTP(nil))

	policy := RetryPolicy{MaxAttempts: cfg.MaxAttempts, Delay: cfg.RetryDelay}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return NewSource(policy, strategies...)
}

// Validate reports whether ref is something s may fetch: an http(s) URL, or
// a file under the root of its local strategy.
func (s *Source) Validate(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("empty source")
	}
	if _, ok := remoteURL(ref); ok {
		return nil
	}
	for _, st := range s.strategies {
		if l, ok := st.(Local); ok {
			_, err := l.resolve(ref)
			return err
		}
	}
	return ErrLocalSource
}

// Acquire returns a non-empty local file for ref written under dir.
func (s *Source) Acquire(ctx context.Context, ref, dir string) (Result, error) {
	ref = strings.TrimSpace(ref)
	if err := s.Validate(ref); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExhausted, err)
	}

	var errs []error
	for _, st := range s.strategies {
		var path string
		attempts := 0
		err := s.policy.Do(ctx, func(attempt int) error {
			attempts = attempt
			p, err := st.Fetch(ctx, ref, dir)
			if err != nil {
				if !errors.Is(err, ErrNotApplicable) {
					log.Error("Attempt %d with %s failed: %v", attempt, st.Name(), err)
				}
				return err
			}
			if !file.NonEmpty(p) {
				log.Error("Attempt %d with %s: downloaded file is empty or doesn't exist", attempt, st.Name())
				return fmt.Errorf("%s: downloaded file %s is empty", st.Name(), p)
			}
			path = p
			return nil
		})
		switch {
		case err == nil:
			log.Info("Download complete with %s after %d attempt(s): %s", st.Name(), attempts, path)
			return Result{Path: path, Strategy: st.Name(), Attempts: attempts}, nil
		case errors.Is(err, ErrNotApplicable):
			continue
		case ctx.Err() != nil:
			return Result{}, fmt.Errorf("download cancelled: %w", ctx.Err())
		}
		errs = append(errs, fmt.Errorf("%s: %w", st.Name(), err))
		log.Info("Trying alternative download method after %s", st.Name())
	}

	if len(errs) == 0 {
		return Result{}, fmt.Errorf("%w: no strategy handles %q", ErrExhausted, ref)
	}
	return Result{}, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}
