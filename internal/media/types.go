package media

import (
	"context"
	"errors"
	"image"
	"time"
)

// DefaultFPS substitutes an unknown or invalid frame rate.
const DefaultFPS = 25.0

// ErrDecode marks a video that cannot be opened or decoded.
var ErrDecode = errors.New("video cannot be decoded")

// Info describes the primary video stream of a container.
type Info struct {
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frame_count"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Duration   time.Duration `json:"duration"`
	Codec      string        `json:"codec"`
}

// Video is an opened, decodable video.
type Video interface {
	Info() Info
	// ReadFrame decodes the frame at index. Frames are addressed by index so
	// callers can sample sparsely without decoding everything in between.
	ReadFrame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

type OpenState int

const (
	Opened OpenState = iota
	NeedsConversion
	Failed
)

func (s OpenState) String() string {
	switch s {
	case Opened:
		return "opened"
	case NeedsConversion:
		return "needs_conversion"
	default:
		return "failed"
	}
}

// OpenResult is the tagged outcome of Opener.Open. Video is set only when
// State is Opened; Err explains the other two states.
type OpenResult struct {
	State OpenState
	Video Video
	Err   error
}

type Opener interface {
	Open(ctx context.Context, path string) OpenResult
	// Convert re-encodes path into a widely decodable file and returns its path.
	Convert(ctx context.Context, path string) (string, error)
}

// OpenWithFallback opens path, converting it once when the first attempt
// reports NeedsConversion.
func OpenWithFallback(ctx context.Context, opener Opener, path string) (Video, error) {
	res := opener.Open(ctx, path)
	switch res.State {
	case Opened:
		return res.Video, nil
	case Failed:
		return nil, errors.Join(ErrDecode, res.Err)
	}

	converted, err := opener.Convert(ctx, path)
	if err != nil {
		return nil, errors.Join(ErrDecode, res.Err, err)
	}
	res = opener.Open(ctx, converted)
	if res.State != Opened {
		return nil, errors.Join(ErrDecode, res.Err)
	}
	return res.Video, nil
}
