// Package sampler pulls frames from a decoded video at a fixed wall-clock
// interval.
package sampler

import (
	"context"
	"image"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/video2slides/internal/media"
	"github.com/MimeLyc/video2slides/pkg/log"
)

// FrameSample is one decoded frame. It lives for a single comparison cycle.
type FrameSample struct {
	Index  int
	Offset time.Duration
	Image  image.Image
}

// Sampler yields every step-th frame of a video exactly once.
type Sampler struct {
	video media.Video
	fps   float64
	step  int
	total int

	consumed atomic.Bool
	skipped  atomic.Int64
}

func New(video media.Video, interval time.Duration) *Sampler {
	info := video.Info()

	fps := info.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		log.Warn("Invalid FPS value %v, using %v", info.FPS, media.DefaultFPS)
		fps = media.DefaultFPS
	}
	if info.FrameCount <= 0 {
		log.Warn("Invalid total frames value: %d", info.FrameCount)
	}

	return &Sampler{
		video: video,
		fps:   fps,
		step:  Step(fps, interval),
		total: max(info.FrameCount, 0),
	}
}

// Step returns the frame distance covering interval at fps, at least 1.
func Step(fps float64, interval time.Duration) int {
	return max(1, int(math.Round(fps*interval.Seconds())))
}

func (s *Sampler) FPS() float64 { return s.fps }

func (s *Sampler) Step() int { return s.step }

func (s *Sampler) TotalFrames() int { return s.total }

// Planned is the number of frame indices the sampler will visit.
func (s *Sampler) Planned() int {
	if s.total == 0 {
		return 0
	}
	return (s.total + s.step - 1) / s.step
}

// Skipped counts indices whose frame could not be decoded.
func (s *Sampler) Skipped() int {
	return int(s.skipped.Load())
}

// Samples returns the lazy frame sequence. It can be ranged over once; later
// calls yield nothing. Iteration stops early when ctx is done.
func (s *Sampler) Samples(ctx context.Context) iter.Seq[FrameSample] {
	return func(yield func(FrameSample) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			log.Warn("Sampler already consumed, create a new one to re-scan")
			return
		}

		for index := 0; index < s.total; index += s.step {
			if ctx.Err() != nil {
				return
			}
			img, err := s.video.ReadFrame(ctx, index)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.skipped.Add(1)
				log.Warn("Could not read frame %d: %v", index, err)
				continue
			}
			sample := FrameSample{
				Index:  index,
				Offset: time.Duration(float64(index) / s.fps * float64(time.Second)),
				Image:  img,
			}
			if !yield(sample) {
				return
			}
		}
	}
}
