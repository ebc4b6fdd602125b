package service

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/video2slides/internal/acquire"
	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/internal/config"
	"github.com/MimeLyc/video2slides/internal/jobs"
	"github.com/MimeLyc/video2slides/internal/media"
	"github.com/MimeLyc/video2slides/internal/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, h pipeline.Handle) error

func (f runnerFunc) Run(ctx context.Context, h pipeline.Handle) error { return f(ctx, h) }

func completeWithSlides(n int) runnerFunc {
	return func(_ context.Context, h pipeline.Handle) error {
		if err := h.SetStatus(jobs.StatusExtracting, 10, "Extracting slides..."); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			img := image.NewGray(image.Rect(0, 0, 4, 4))
			if _, err := h.Archive().Append(img, time.Duration(i)*time.Second, ""); err != nil {
				return err
			}
			h.SetSlides(h.Archive().Len())
		}
		return h.SetStatus(jobs.StatusCompleted, 100, "Extraction complete!")
	}
}

type fakeAssembler struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeAssembler) Assemble(records []archive.SlideRecord) ([]byte, error) {
	f.calls.Add(1)
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte{byte(len(records))}, nil
}

func newService(t *testing.T, retention time.Duration, runner Runner, asm Assembler) (*Service, *jobs.Registry) {
	t.Helper()
	r, err := jobs.NewRegistry(jobs.Options{Root: t.TempDir(), Retention: retention})
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return New(r, runner, asm), r
}

func validRequest() SubmitRequest {
	return SubmitRequest{Source: "https://www.youtube.com/watch?v=abc", IntervalSeconds: 2, SimilarityThreshold: 0.6}
}

func waitState(t *testing.T, svc *Service, id string, want jobs.Status) Status {
	t.Helper()
	var got Status
	require.Eventually(t, func() bool {
		st, err := svc.GetStatus(id)
		got = st
		return err == nil && st.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestSubmit_RejectsServerPaths(t *testing.T) {
	private := filepath.Join(t.TempDir(), "private.mp4")
	require.NoError(t, os.WriteFile(private, []byte("server-side private bytes"), 0o644))

	var ran atomic.Bool
	runner := runnerFunc(func(context.Context, pipeline.Handle) error {
		ran.Store(true)
		return nil
	})
	r, err := jobs.NewRegistry(jobs.Options{Root: t.TempDir(), Retention: time.Hour})
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	source := acquire.NewDefaultSource(config.AcquireConfig{MaxAttempts: 1}, config.ToolsConfig{YtDlp: "no-such-ytdlp"})
	svc := New(r, runner, &fakeAssembler{}, WithSourceValidator(source))

	for _, ref := range []string{private, "file://" + private, "../../etc/passwd"} {
		req := validRequest()
		req.Source = ref
		id, err := svc.Submit(context.Background(), req)
		assert.Empty(t, id)
		assert.True(t, IsKind(err, KindValidation), "got %v", err)
	}
	assert.Empty(t, r.List())
	assert.False(t, ran.Load())

	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSubmit_Validation(t *testing.T) {
	svc, r := newService(t, time.Hour, completeWithSlides(1), &fakeAssembler{})

	tests := []struct {
		name string
		mut  func(*SubmitRequest)
	}{
		{"missing source", func(r *SubmitRequest) { r.Source = "  " }},
		{"interval too small", func(r *SubmitRequest) { r.IntervalSeconds = 0 }},
		{"interval too large", func(r *SubmitRequest) { r.IntervalSeconds = 31 }},
		{"threshold too small", func(r *SubmitRequest) { r.SimilarityThreshold = 0.05 }},
		{"threshold too large", func(r *SubmitRequest) { r.SimilarityThreshold = 1.01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mut(&req)
			id, err := svc.Submit(context.Background(), req)
			assert.Empty(t, id)
			assert.True(t, IsKind(err, KindValidation), "got %v", err)
			assert.Empty(t, r.List())
		})
	}

	_, err := svc.Submit(context.Background(), SubmitRequest{Source: "x", IntervalSeconds: 2, SimilarityThreshold: 0.05})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Threshold must be between 0.1 and 1.0", svcErr.Message)

	for _, edge := range []SubmitRequest{
		{Source: "a", IntervalSeconds: 1, SimilarityThreshold: 0.1},
		{Source: "b", IntervalSeconds: 30, SimilarityThreshold: 1.0},
	} {
		_, err := svc.Submit(context.Background(), edge)
		assert.NoError(t, err)
	}
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	svc, _ := newService(t, time.Hour, completeWithSlides(3), &fakeAssembler{})

	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	st := waitState(t, svc, id, jobs.StatusCompleted)
	assert.Equal(t, 3, st.SlideCount)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, jobs.Params{IntervalSeconds: 2, SimilarityThreshold: 0.6}, st.Params)

	slides, err := svc.Slides(id)
	require.NoError(t, err)
	assert.Len(t, slides, 3)
	assert.Len(t, svc.List(), 1)
}

func TestExecute_MapsFailures(t *testing.T) {
	tests := []struct {
		name    string
		runner  runnerFunc
		message string
	}{
		{
			name:    "zero slides",
			runner:  func(context.Context, pipeline.Handle) error { return pipeline.ErrNoSlides },
			message: ZeroResultMessage,
		},
		{
			name: "download",
			runner: func(context.Context, pipeline.Handle) error {
				return errors.Join(acquire.ErrExhausted, errors.New("HTTP 403"))
			},
			message: "Error: failed to download video\nHTTP 403",
		},
		{
			name:    "panic",
			runner:  func(context.Context, pipeline.Handle) error { panic("index out of range") },
			message: "Error: runtime error: index out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, time.Hour, tt.runner, &fakeAssembler{})
			id, err := svc.Submit(context.Background(), validRequest())
			require.NoError(t, err)

			st := waitState(t, svc, id, jobs.StatusError)
			assert.Equal(t, tt.message, st.Message)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindZeroResult, Classify(pipeline.ErrNoSlides).Kind)
	assert.Equal(t, KindAcquisition, Classify(errors.Join(acquire.ErrExhausted)).Kind)
	assert.Equal(t, KindDecode, Classify(errors.Join(media.ErrDecode, errors.New("moov"))).Kind)
	assert.Equal(t, KindUnknown, Classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindNotReady, Classify(NewError(KindNotReady, "x")).Kind)
	assert.Equal(t, KindUnknown, Classify(errors.New("?")).Kind)

	err := Classify(errors.Join(media.ErrDecode))
	assert.ErrorIs(t, err, media.ErrDecode)
}

func TestGetStatus_NotFound(t *testing.T) {
	svc, _ := newService(t, time.Hour, completeWithSlides(1), &fakeAssembler{})
	_, err := svc.GetStatus("missing")
	assert.True(t, IsKind(err, KindNotFound))
	_, err = svc.Slides("missing")
	assert.True(t, IsKind(err, KindNotFound))
	_, err = svc.GetDocument(context.Background(), "missing")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestGetDocument_NotReady(t *testing.T) {
	release := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, h pipeline.Handle) error {
		<-release
		return completeWithSlides(1)(ctx, h)
	})
	asm := &fakeAssembler{}
	svc, _ := newService(t, time.Hour, blocking, asm)

	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = svc.GetDocument(context.Background(), id)
	assert.True(t, IsKind(err, KindNotReady), "got %v", err)
	assert.Zero(t, asm.calls.Load())

	close(release)
	waitState(t, svc, id, jobs.StatusCompleted)
	data, err := svc.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)
}

func TestGetDocument_CollapsesConcurrentCalls(t *testing.T) {
	asm := &fakeAssembler{entered: make(chan struct{}), release: make(chan struct{})}
	entered := asm.entered
	svc, _ := newService(t, time.Hour, completeWithSlides(2), asm)
	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	waitState(t, svc, id, jobs.StatusCompleted)

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := svc.GetDocument(context.Background(), id)
			assert.NoError(t, err)
			results[i] = data
		}()
	}
	<-entered
	time.Sleep(50 * time.Millisecond)
	close(asm.release)
	wg.Wait()

	assert.Equal(t, int32(1), asm.calls.Load())
	for _, data := range results {
		assert.Equal(t, []byte{2}, data)
	}
}

func TestGetDocument_GenerationFailedKeepsJob(t *testing.T) {
	asm := &fakeAssembler{err: errors.New("corrupt png")}
	svc, _ := newService(t, time.Hour, completeWithSlides(1), asm)
	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	before := waitState(t, svc, id, jobs.StatusCompleted)

	_, err = svc.GetDocument(context.Background(), id)
	assert.True(t, IsKind(err, KindGenerationFailed))

	after, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.PurgeAt, after.PurgeAt)
}

func TestGetDocument_ExtendsRetention(t *testing.T) {
	svc, _ := newService(t, time.Hour, completeWithSlides(1), &fakeAssembler{})
	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	before := waitState(t, svc, id, jobs.StatusCompleted)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.GetDocument(context.Background(), id)
	require.NoError(t, err)

	after, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.True(t, after.PurgeAt.After(before.PurgeAt))
}

func TestRetention_PurgesFinishedJobs(t *testing.T) {
	svc, r := newService(t, 50*time.Millisecond, completeWithSlides(1), &fakeAssembler{})
	id, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	job, ok := r.Get(id)
	require.True(t, ok)
	require.DirExists(t, job.WorkDir)

	require.Eventually(t, func() bool {
		_, err := svc.GetStatus(id)
		return IsKind(err, KindNotFound)
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoDirExists(t, job.WorkDir)
}

func TestSchedule(t *testing.T) {
	svc, _ := newService(t, time.Hour, completeWithSlides(1), &fakeAssembler{})
	c := cron.New()

	_, err := svc.Schedule(c, "@every 1m")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = svc.Schedule(c, "not a schedule")
	assert.Error(t, err)
	assert.Len(t, c.Entries(), 1)
}

func TestErrorFormatting(t *testing.T) {
	err := NewErrorWithCause(KindDecode, "bad video", errors.New("moov atom")).
		WithContext("path", "/w/v.mp4").
		WithContext("attempt", 2)
	assert.Equal(t, "[Decode] bad video | context: attempt=2, path=/w/v.mp4 | cause: moov atom", err.Error())
	assert.Equal(t, "Error: bad video", err.JobMessage())
	assert.NotEmpty(t, NewDefaultErrorHandler().GetAdvice(err))
	assert.True(t, NewDefaultErrorHandler().Handle(err))
	assert.False(t, NewDefaultErrorHandler().Handle(errors.New("plain")))
}
