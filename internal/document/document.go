// Package document assembles slide images into a single PDF.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/pkg/log"
	"github.com/go-pdf/fpdf"
)

// fitRatio leaves a margin around each slide.
const fitRatio = 0.9

var (
	ErrNoSlides = errors.New("no slides to assemble")

	// Letter is the US Letter page in points.
	Letter = PageSize{Width: 612, Height: 792}
)

type PageSize struct {
	Width  float64
	Height float64
}

// Renderer builds a multi-page document. A renderer is used for one
// document only.
type Renderer interface {
	NewPage(size PageSize) error
	DrawImage(path string, x, y, w, h float64) error
	Save() ([]byte, error)
}

type RendererFactory func() Renderer

type Assembler struct {
	factory RendererFactory
	page    PageSize
}

// NewAssembler uses the PDF renderer when factory is nil.
func NewAssembler(factory RendererFactory) *Assembler {
	if factory == nil {
		factory = NewPDFRenderer
	}
	return &Assembler{factory: factory, page: Letter}
}

// Placement is where one slide lands on its page.
type Placement struct {
	X, Y, W, H float64
}

// Fit scales an iw×ih image to the largest size that fits page, shrinks it
// by fitRatio and centers it.
func Fit(page PageSize, iw, ih int) Placement {
	ratio := min(page.Width/float64(iw), page.Height/float64(ih)) * fitRatio
	w := float64(iw) * ratio
	h := float64(ih) * ratio
	return Placement{
		X: (page.Width - w) / 2,
		Y: (page.Height - h) / 2,
		W: w,
		H: h,
	}
}

// Assemble renders one page per record, in archive order.
func (a *Assembler) Assemble(records []archive.SlideRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoSlides
	}

	r := a.factory()
	for _, rec := range records {
		iw, ih, err := imageSize(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", rec.Seq, err)
		}
		p := Fit(a.page, iw, ih)
		if err := r.NewPage(a.page); err != nil {
			return nil, fmt.Errorf("slide %d: new page: %w", rec.Seq, err)
		}
		if err := r.DrawImage(rec.Path, p.X, p.Y, p.W, p.H); err != nil {
			return nil, fmt.Errorf("slide %d: draw: %w", rec.Seq, err)
		}
	}

	data, err := r.Save()
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	log.Info("Assembled document with %d pages (%d bytes)", len(records), len(data))
	return data, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open slide: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("read slide header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("slide has no pixels")
	}
	return cfg.Width, cfg.Height, nil
}

type pdfRenderer struct {
	pdf   *fpdf.Fpdf
	pages int
}

// NewPDFRenderer renders with fpdf in points, so placements map 1:1.
func NewPDFRenderer() Renderer {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	return &pdfRenderer{pdf: pdf}
}

func (p *pdfRenderer) NewPage(size PageSize) error {
	p.pdf.AddPageFormat("P", fpdf.SizeType{Wd: size.Width, Ht: size.Height})
	p.pages++
	return p.pdf.Error()
}

func (p *pdfRenderer) DrawImage(path string, x, y, w, h float64) error {
	if p.pages == 0 {
		return fmt.Errorf("no page to draw on")
	}
	p.pdf.ImageOptions(path, x, y, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return p.pdf.Error()
}

func (p *pdfRenderer) Save() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
