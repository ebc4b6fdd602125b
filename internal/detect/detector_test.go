package detect

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/MimeLyc/video2slides/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// halves paints the left half left and the right half right.
func halves(w, h int, left, right uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := right
			if x < w/2 {
				v = left
			}
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

func noisy(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func clone(g *image.Gray) *image.Gray {
	c := image.NewGray(g.Rect)
	copy(c.Pix, g.Pix)
	return c
}

type fakeRecognizer struct {
	texts map[image.Image]string
	err   error
	panic bool
	calls int
}

func (f *fakeRecognizer) Available() bool { return true }

func (f *fakeRecognizer) ExtractText(_ context.Context, img image.Image) (string, error) {
	f.calls++
	if f.panic {
		panic("engine crashed")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.texts[img], nil
}

func TestDetector_IdenticalFramesAreSame(t *testing.T) {
	ctx := context.Background()
	frames := []image.Image{
		uniform(64, 48, 0),
		uniform(64, 48, 255),
		halves(64, 48, 20, 230),
		noisy(64, 48, 1),
		noisy(5, 4, 2),
	}
	for _, threshold := range []float64{0.1, 0.6, 1.0} {
		opts := DefaultOptions()
		opts.SimilarityThreshold = threshold
		for i, img := range frames {
			rec := &fakeRecognizer{texts: map[image.Image]string{img: "quarterly results revenue grew strongly"}}
			d := New(opts, rec)
			got := d.Compare(ctx, img, img)
			assert.False(t, got.Different, "frame %d threshold %v: %+v", i, threshold, got)
			assert.Equal(t, SignalNone, got.Signal)
		}
	}
}

func TestDetector_LowSimilarityWinsOverOtherSignals(t *testing.T) {
	a := halves(64, 48, 0, 255)
	b := halves(64, 48, 255, 0)

	// identical histograms and identical OCR text, yet structurally different
	assert.InDelta(t, 1.0, Correlation(Histogram(a), Histogram(b)), 1e-12)
	rec := &fakeRecognizer{texts: map[image.Image]string{
		a: "same words on both slides here",
		b: "same words on both slides here",
	}}

	got := New(DefaultOptions(), rec).Compare(context.Background(), a, b)

	assert.True(t, got.Different)
	assert.Equal(t, SignalSimilarity, got.Signal)
	assert.Less(t, got.Score, 0.6)
	assert.Zero(t, rec.calls)
}

func TestDetector_HistogramSignal(t *testing.T) {
	a := uniform(32, 32, 100)
	b := uniform(32, 32, 110)

	got := New(DefaultOptions(), nil).Compare(context.Background(), a, b)

	assert.True(t, got.Different)
	assert.Equal(t, SignalHistogram, got.Signal)
	assert.Less(t, got.Score, 0.95)
}

func TestDetector_TextSignal(t *testing.T) {
	a := halves(32, 32, 10, 240)
	b := clone(a)
	ctx := context.Background()

	t.Run("different words", func(t *testing.T) {
		rec := &fakeRecognizer{texts: map[image.Image]string{
			a: "agenda intro goals timeline budget",
			b: "results revenue margin outlook questions",
		}}
		got := New(DefaultOptions(), rec).Compare(ctx, a, b)
		assert.True(t, got.Different)
		assert.Equal(t, SignalText, got.Signal)
		assert.InDelta(t, 1.0, got.Score, 1e-12)
	})

	t.Run("small overlap change", func(t *testing.T) {
		rec := &fakeRecognizer{texts: map[image.Image]string{
			a: "one two three four five six seven eight nine ten",
			b: "one two three four five six seven eight nine eleven",
		}}
		got := New(DefaultOptions(), rec).Compare(ctx, a, b)
		assert.False(t, got.Different)
	})

	t.Run("too few words", func(t *testing.T) {
		rec := &fakeRecognizer{texts: map[image.Image]string{
			a: "thank you all",
			b: "any questions left",
		}}
		got := New(DefaultOptions(), rec).Compare(ctx, a, b)
		assert.False(t, got.Different)
	})

	t.Run("ocr error is silent", func(t *testing.T) {
		rec := &fakeRecognizer{err: errors.New("tesseract missing traineddata")}
		got := New(DefaultOptions(), rec).Compare(ctx, a, b)
		assert.False(t, got.Different)
		assert.NoError(t, got.Err)
	})

	t.Run("unavailable skips", func(t *testing.T) {
		got := New(DefaultOptions(), ocr.Unavailable{}).Compare(ctx, a, b)
		assert.False(t, got.Different)
	})
}

func TestDetector_FailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("empty frames", func(t *testing.T) {
		empty := image.NewGray(image.Rect(0, 0, 0, 0))
		got := New(DefaultOptions(), nil).Compare(ctx, empty, image.NewGray(image.Rect(0, 0, 0, 0)))
		assert.True(t, got.Different)
		assert.Equal(t, SignalError, got.Signal)
		assert.Error(t, got.Err)
	})

	t.Run("recognizer panic", func(t *testing.T) {
		img := uniform(16, 16, 50)
		got := New(DefaultOptions(), &fakeRecognizer{panic: true}).Compare(ctx, img, clone(img))
		assert.True(t, got.Different)
		assert.Equal(t, SignalError, got.Signal)
	})
}

func TestDetector_ResizesMismatchedFrames(t *testing.T) {
	got := New(DefaultOptions(), nil).Compare(context.Background(), halves(64, 36, 0, 255), halves(128, 72, 0, 255))
	assert.NoError(t, got.Err)
	assert.NotEqual(t, SignalError, got.Signal)
	assert.NotEqual(t, SignalSimilarity, got.Signal)
}

func TestDetector_Observe(t *testing.T) {
	ctx := context.Background()
	slideA := halves(32, 32, 0, 255)
	slideA2 := clone(slideA)
	slideB := halves(32, 32, 255, 0)
	rec := &fakeRecognizer{texts: map[image.Image]string{
		slideA:  "welcome to the quarterly review",
		slideA2: "welcome to the quarterly review",
	}}
	d := New(DefaultOptions(), rec)

	first := d.Observe(ctx, slideA)
	require.True(t, first.Different)
	assert.Equal(t, SignalFirst, first.Signal)
	_, ok := d.BaselineText()
	assert.False(t, ok)

	same := d.Observe(ctx, slideA2)
	assert.False(t, same.Different)
	assert.Equal(t, 2, rec.calls)

	// baseline text stays cached: only the new candidate would be recognized
	text, ok := d.BaselineText()
	require.True(t, ok)
	assert.Equal(t, "welcome to the quarterly review", text)

	next := d.Observe(ctx, slideB)
	assert.True(t, next.Different)
	assert.Equal(t, SignalSimilarity, next.Signal)
	_, ok = d.BaselineText()
	assert.False(t, ok)

	again := d.Observe(ctx, clone(slideB))
	assert.False(t, again.Different)
}
