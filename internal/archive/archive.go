// Package archive keeps the ordered slide images of one extraction job.
package archive

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/video2slides/pkg/file"
	"github.com/MimeLyc/video2slides/pkg/log"
	"github.com/abadojack/whatlanggo"
)

// minLangConfidence is the whatlanggo confidence below which Language stays empty.
const minLangConfidence = 0.5

var ErrTornDown = errors.New("archive torn down")

// SlideRecord is one kept frame. Records are immutable once appended.
type SlideRecord struct {
	Seq       int           `json:"seq"`
	Timestamp string        `json:"timestamp"`
	Offset    time.Duration `json:"offset"`
	Path      string        `json:"path"`
	Text      string        `json:"text,omitempty"`
	Language  string        `json:"language,omitempty"`
}

// Archive appends slides to a directory. One writer appends while any number
// of readers take snapshots.
type Archive struct {
	dir string

	mu       sync.RWMutex
	records  []SlideRecord
	tornDown bool
}

func New(dir string) (*Archive, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

func (a *Archive) Dir() string {
	return a.dir
}

// Append persists img as the next slide. text is the OCR text already known
// for the frame, if any.
func (a *Archive) Append(img image.Image, offset time.Duration, text string) (SlideRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tornDown {
		return SlideRecord{}, ErrTornDown
	}

	seq := len(a.records)
	label := FormatTimestamp(offset)
	path := filepath.Join(a.dir, fmt.Sprintf("slide_%03d_%s.png", seq, file.SafeName(label)))
	if err := writePNG(path, img); err != nil {
		return SlideRecord{}, err
	}

	rec := SlideRecord{
		Seq:       seq,
		Timestamp: label,
		Offset:    offset,
		Path:      path,
		Text:      strings.TrimSpace(text),
	}
	rec.Language = detectLanguage(rec.Text)
	a.records = append(a.records, rec)

	log.Debug("Saved slide %d at %s to %s", seq, label, path)
	return rec, nil
}

// Records returns an ordered copy of every slide appended so far.
func (a *Archive) Records() []SlideRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SlideRecord, len(a.records))
	copy(out, a.records)
	return out
}

func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Teardown removes every slide file. Further appends fail.
func (a *Archive) Teardown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tornDown {
		return nil
	}
	a.tornDown = true

	var errs []error
	for _, rec := range a.records {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	a.records = nil
	return errors.Join(errs...)
}

// FormatTimestamp renders d as H:MM:SS, truncating fractional seconds.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create slide file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode slide: %w", err)
	}
	return f.Close()
}

func detectLanguage(text string) string {
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < minLangConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}
