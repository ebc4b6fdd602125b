package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/video2slides/internal/acquire"
	"github.com/MimeLyc/video2slides/internal/jobs"
	"github.com/MimeLyc/video2slides/internal/media"
	"github.com/MimeLyc/video2slides/internal/pipeline"
	"github.com/MimeLyc/video2slides/pkg/log"
)

// ZeroResultMessage is shown when a scan keeps no slide.
const ZeroResultMessage = "No slides were found. Try adjusting parameters to lower values like interval=1 and threshold=0.5."

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindAcquisition
	KindDecode
	KindZeroResult
	// KindComparison names detector failures for completeness. The detector
	// recovers them itself (the frame counts as a new slide), so no job ever
	// ends with this kind.
	KindComparison
	KindNotFound
	KindNotReady
	KindGenerationFailed
	KindUnknown
)

type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
	Cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// JobMessage is the text stored on a job that failed with e.
func (e *Error) JobMessage() string {
	if e.Kind == KindZeroResult {
		return ZeroResultMessage
	}
	return "Error: " + e.Message
}

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindAcquisition:
		return "Acquisition"
	case KindDecode:
		return "Decode"
	case KindZeroResult:
		return "ZeroResult"
	case KindComparison:
		return "Comparison"
	case KindNotFound:
		return "NotFound"
	case KindNotReady:
		return "NotReady"
	case KindGenerationFailed:
		return "GenerationFailed"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *Error) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	log.Error("Error Detail: %v\n advice: %s", err, h.GetAdvice(svcErr))
	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *Error) string {
	switch err.Kind {
	case KindValidation:
		return "Please provide a video URL, an interval between 1 and 30 seconds and a threshold between 0.1 and 1.0"
	case KindAcquisition:
		return "Please check that the video is public and reachable, and that yt-dlp is installed for hosted videos"
	case KindDecode:
		return "Please check that ffmpeg and ffprobe are installed and the file is a valid video"
	case KindZeroResult:
		return "Try lowering the interval and the similarity threshold"
	case KindComparison:
		return "A frame comparison failed; the frame was kept as a new slide"
	case KindNotFound:
		return "The extraction may have been cleaned up; submit the video again"
	case KindNotReady:
		return "Wait until the extraction status is completed"
	case KindGenerationFailed:
		return "The slide images may have been removed; submit the video again"
	default:
		return "Please review detailed error information and check the server logs"
	}
}

func IsKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind == kind
	}
	return false
}

func WrapError(err error, kind ErrorKind, message string) *Error {
	return NewErrorWithCause(kind, message, err)
}

// Classify maps a pipeline failure onto the error taxonomy.
func Classify(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	switch {
	case errors.Is(err, pipeline.ErrNoSlides):
		return WrapError(err, KindZeroResult, ZeroResultMessage)
	case errors.Is(err, acquire.ErrExhausted):
		return WrapError(err, KindAcquisition, err.Error())
	case errors.Is(err, media.ErrDecode):
		return WrapError(err, KindDecode, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(err, KindUnknown, "extraction timed out")
	case errors.Is(err, context.Canceled):
		return WrapError(err, KindUnknown, "extraction cancelled")
	case errors.Is(err, jobs.ErrNotFound):
		return WrapError(err, KindNotFound, "Extraction not found")
	default:
		return WrapError(err, KindUnknown, err.Error())
	}
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(KindUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
