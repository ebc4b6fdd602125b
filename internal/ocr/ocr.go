// Package ocr provides best-effort text recognition for slide frames.
//
// Recognition is a capability: Detect decides once at startup whether a
// working engine exists and otherwise hands out Unavailable, which callers
// treat as "no text signal" rather than as a failure.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"

	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/deps"
	"github.com/MimeLyc/video2slides/internal/imaging"
	"github.com/MimeLyc/video2slides/pkg/log"
	"golang.org/x/text/language"
)

// ErrUnavailable is returned by recognizers that cannot extract text.
var ErrUnavailable = errors.New("text recognition unavailable")

// binaryThreshold separates slide text from background before recognition.
const binaryThreshold = 150

type Recognizer interface {
	Available() bool
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// Unavailable is the absent variant of Recognizer.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) ExtractText(context.Context, image.Image) (string, error) {
	return "", ErrUnavailable
}

// Tesseract runs the tesseract CLI, feeding a binarized PNG on stdin.
type Tesseract struct {
	bin  string
	lang string
}

func NewTesseract(bin string, tag language.Tag) *Tesseract {
	return &Tesseract{bin: bin, lang: tesseractLang(tag)}
}

func (t *Tesseract) Available() bool { return true }

func (t *Tesseract) ExtractText(ctx context.Context, img image.Image) (string, error) {
	var input bytes.Buffer
	if err := png.Encode(&input, imaging.Binarize(imaging.ToGray(img), binaryThreshold)); err != nil {
		return "", fmt.Errorf("encode ocr input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.bin, t.args()...)
	cmd.Stdin = &input
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (t *Tesseract) args() []string {
	return []string{
		"stdin", "stdout",
		"--psm", "6",
		"--oem", "3",
		"-l", t.lang,
	}
}

// tesseractLang maps a BCP 47 tag to tesseract's ISO 639-2 traineddata name.
func tesseractLang(tag language.Tag) string {
	base, _ := tag.Base()
	if iso3 := base.ISO3(); iso3 != "" && iso3 != "und" {
		return iso3
	}
	return "eng"
}

// Detect returns a Tesseract recognizer when OCR is enabled and the binary
// resolves, Unavailable otherwise.
func Detect(cfg config.OCRConfig, tools config.ToolsConfig) Recognizer {
	if !cfg.Enabled {
		log.Info("OCR disabled, text-overlap signal is off")
		return Unavailable{}
	}
	bin, err := deps.Resolve(tools.Tesseract)
	if err != nil {
		log.Warn("Tesseract OCR not found, skipping text extraction: %v", err)
		return Unavailable{}
	}
	log.Info("Using tesseract at %s", bin)
	return NewTesseract(bin, cfg.Language)
}
