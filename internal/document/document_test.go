package document

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drawCall struct {
	path       string
	x, y, w, h float64
}

type fakeRenderer struct {
	pages   []PageSize
	draws   []drawCall
	saveErr error
}

func (f *fakeRenderer) NewPage(size PageSize) error {
	f.pages = append(f.pages, size)
	return nil
}

func (f *fakeRenderer) DrawImage(path string, x, y, w, h float64) error {
	f.draws = append(f.draws, drawCall{path, x, y, w, h})
	return nil
}

func (f *fakeRenderer) Save() ([]byte, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return []byte("doc"), nil
}

func writeSlide(t *testing.T, dir string, seq, w, h int) archive.SlideRecord {
	t.Helper()
	path := filepath.Join(dir, "slide_"+string(rune('a'+seq))+".png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
	return archive.SlideRecord{Seq: seq, Path: path}
}

func TestFit(t *testing.T) {
	p := Fit(Letter, 1280, 720)
	// width bound: 612/1280 * 0.9
	ratio := 612.0 / 1280.0 * 0.9
	assert.InDelta(t, 1280*ratio, p.W, 1e-9)
	assert.InDelta(t, 720*ratio, p.H, 1e-9)
	assert.InDelta(t, (612-p.W)/2, p.X, 1e-9)
	assert.InDelta(t, (792-p.H)/2, p.Y, 1e-9)

	tall := Fit(Letter, 100, 1000)
	assert.InDelta(t, 792*0.9, tall.H, 1e-9)
	assert.InDelta(t, 792*0.05, tall.Y, 1e-9)
	assert.Less(t, tall.W, 612.0)
}

func TestAssemble_OnePagePerSlide(t *testing.T) {
	dir := t.TempDir()
	records := []archive.SlideRecord{
		writeSlide(t, dir, 0, 160, 90),
		writeSlide(t, dir, 1, 90, 160),
		writeSlide(t, dir, 2, 40, 40),
	}
	fake := &fakeRenderer{}
	a := NewAssembler(func() Renderer { return fake })

	data, err := a.Assemble(records)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), data)

	require.Len(t, fake.pages, len(records))
	require.Len(t, fake.draws, len(records))
	for i, d := range fake.draws {
		assert.Equal(t, records[i].Path, d.path)
		assert.Equal(t, Letter, fake.pages[i])
		// centered on the page
		assert.InDelta(t, 612, 2*d.x+d.w, 1e-9)
		assert.InDelta(t, 792, 2*d.y+d.h, 1e-9)
	}
	assert.InDelta(t, 612*0.9, fake.draws[0].w, 1e-9)
}

func TestAssemble_Errors(t *testing.T) {
	_, err := NewAssembler(func() Renderer { return &fakeRenderer{} }).Assemble(nil)
	assert.ErrorIs(t, err, ErrNoSlides)

	_, err = NewAssembler(func() Renderer { return &fakeRenderer{} }).
		Assemble([]archive.SlideRecord{{Path: filepath.Join(t.TempDir(), "missing.png")}})
	assert.Error(t, err)

	dir := t.TempDir()
	boom := errors.New("disk full")
	_, err = NewAssembler(func() Renderer { return &fakeRenderer{saveErr: boom} }).
		Assemble([]archive.SlideRecord{writeSlide(t, dir, 0, 10, 10)})
	assert.ErrorIs(t, err, boom)
}

func TestPDFRenderer(t *testing.T) {
	dir := t.TempDir()
	records := []archive.SlideRecord{
		writeSlide(t, dir, 0, 64, 36),
		writeSlide(t, dir, 1, 64, 36),
	}
	var renderer *pdfRenderer
	a := NewAssembler(func() Renderer {
		renderer = NewPDFRenderer().(*pdfRenderer)
		return renderer
	})

	data, err := a.Assemble(records)
	require.NoError(t, err)
	assert.True(t, len(data) > 4 && string(data[:5]) == "%PDF-")
	assert.Equal(t, 2, renderer.pdf.PageCount())
}
