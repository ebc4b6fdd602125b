// Package detect decides whether a sampled frame shows a new slide.
package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/MimeLyc/video2slides/internal/imaging"
	"github.com/MimeLyc/video2slides/internal/ocr"
	"github.com/MimeLyc/video2slides/pkg/log"
)

type Signal string

const (
	SignalFirst      Signal = "first"
	SignalSimilarity Signal = "similarity"
	SignalHistogram  Signal = "histogram"
	SignalText       Signal = "text"
	SignalError      Signal = "error"
	SignalNone       Signal = "none"
)

// Decision is the outcome of one comparison. Score holds the value of the
// signal that decided it (the similarity score when nothing fired).
type Decision struct {
	Different bool
	Signal    Signal
	Score     float64
	Err       error
}

type Options struct {
	SimilarityThreshold float64
	HistogramCutoff     float64
	TextDiffCutoff      float64
	// MinWords is the word count both frames must exceed for the text signal.
	MinWords int
}

func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.6,
		HistogramCutoff:     0.95,
		TextDiffCutoff:      0.3,
		MinWords:            3,
	}
}

// frame caches everything derived from one image so a kept frame is
// converted and recognized at most once.
type frame struct {
	img      image.Image
	gray     *image.Gray
	text     string
	textDone bool
}

func newFrame(img image.Image) *frame {
	return &frame{img: img}
}

func (f *frame) grayscale() *image.Gray {
	if f.gray == nil {
		f.gray = imaging.ToGray(f.img)
	}
	return f.gray
}

// Detector compares candidates against the last kept frame. It is not safe
// for concurrent use; one job drives one detector.
type Detector struct {
	opts       Options
	recognizer ocr.Recognizer
	baseline   *frame
}

func New(opts Options, recognizer ocr.Recognizer) *Detector {
	if recognizer == nil {
		recognizer = ocr.Unavailable{}
	}
	return &Detector{opts: opts, recognizer: recognizer}
}

// Observe classifies img against the last kept frame and, when it is a new
// slide, makes it the new baseline. The first observed frame is always kept.
func (d *Detector) Observe(ctx context.Context, img image.Image) Decision {
	cand := newFrame(img)
	if d.baseline == nil {
		d.baseline = cand
		return Decision{Different: true, Signal: SignalFirst}
	}

	decision := d.compare(ctx, d.baseline, cand)
	if decision.Different {
		d.baseline = cand
	}
	return decision
}

// BaselineText returns the OCR text of the last kept frame if it was
// recognized while comparing.
func (d *Detector) BaselineText() (string, bool) {
	if d.baseline == nil || !d.baseline.textDone {
		return "", false
	}
	return d.baseline.text, true
}

// Compare classifies cand against prev without touching the baseline.
func (d *Detector) Compare(ctx context.Context, prev, cand image.Image) Decision {
	return d.compare(ctx, newFrame(prev), newFrame(cand))
}

func (d *Detector) compare(ctx context.Context, prev, cand *frame) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Error during frame comparison: %v", r)
			decision = Decision{Different: true, Signal: SignalError, Err: fmt.Errorf("comparison panic: %v", r)}
		}
	}()

	g1 := prev.grayscale()
	g2 := cand.grayscale()
	if g1.Bounds().Size() != g2.Bounds().Size() {
		log.Warn("Frames have different dimensions, resizing for comparison")
		g2 = imaging.Resize(g2, g1.Bounds().Dx(), g1.Bounds().Dy())
	}

	score, err := SSIM(g1, g2)
	if err != nil {
		log.Error("Error during frame comparison: %v", err)
		return Decision{Different: true, Signal: SignalError, Err: err}
	}
	log.Debug("Similarity score: %.4f", score)
	if score < d.opts.SimilarityThreshold {
		return Decision{Different: true, Signal: SignalSimilarity, Score: score}
	}

	corr := Correlation(Histogram(g1), Histogram(g2))
	log.Debug("Histogram correlation: %.4f", corr)
	if corr < d.opts.HistogramCutoff {
		return Decision{Different: true, Signal: SignalHistogram, Score: corr}
	}

	if ratio, ok := d.textDiff(ctx, prev, cand); ok {
		log.Debug("Text difference ratio: %.4f", ratio)
		if ratio > d.opts.TextDiffCutoff {
			return Decision{Different: true, Signal: SignalText, Score: ratio}
		}
	}

	return Decision{Different: false, Signal: SignalNone, Score: score}
}

// textDiff reports the word-set difference of both frames, or false when
// the text signal has nothing to say.
func (d *Detector) textDiff(ctx context.Context, prev, cand *frame) (float64, bool) {
	if !d.recognizer.Available() {
		return 0, false
	}
	t1, ok1 := d.recognize(ctx, prev)
	t2, ok2 := d.recognize(ctx, cand)
	if !ok1 || !ok2 || t1 == "" || t2 == "" {
		return 0, false
	}

	w1, w2 := Words(t1), Words(t2)
	if len(w1) <= d.opts.MinWords || len(w2) <= d.opts.MinWords {
		return 0, false
	}
	return TextDiffRatio(w1, w2), true
}

func (d *Detector) recognize(ctx context.Context, f *frame) (string, bool) {
	if f.textDone {
		return f.text, true
	}
	text, err := d.recognizer.ExtractText(ctx, f.img)
	if err != nil {
		log.Warn("OCR error: %v", err)
		return "", false
	}
	f.text = text
	f.textDone = true
	return text, true
}
