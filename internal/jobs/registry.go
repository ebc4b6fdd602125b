// Package jobs tracks extraction jobs from submission until their working
// directory is purged.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/video2slides/internal/archive"
	"github.com/MimeLyc/video2slides/pkg/log"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("extraction not found")
	ErrStopped           = errors.New("registry stopped")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotTerminal       = errors.New("extraction still running")
)

const slidesDir = "slides"

// Executor runs one job to a terminal status through its handle.
type Executor func(ctx context.Context, h *Handle) error

type Options struct {
	Root       string
	Retention  time.Duration
	JobTimeout time.Duration
	// MaxJobs caps retained jobs; the oldest finished jobs are purged early
	// when exceeded. Zero disables the cap.
	MaxJobs  int
	Observer Observer
}

type entry struct {
	job     *ExtractionJob
	archive *archive.Archive
	cancel  context.CancelFunc
	timer   *time.Timer
	// timerGen identifies the armed timer; a fired timer whose generation
	// is stale leaves the entry alone.
	timerGen  uint64
	purgeOnce sync.Once
}

type Registry struct {
	opts      Options
	observer  Observer
	startedAt time.Time

	baseCtx  context.Context
	stopBase context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("registry root is required")
	}
	if opts.Retention < 0 {
		return nil, fmt.Errorf("retention must not be negative")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	// allow for filesystems with one-second mtime resolution
	startedAt := time.Now().Add(-time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:      opts,
		observer:  observer,
		startedAt: startedAt,
		baseCtx:   ctx,
		stopBase:  cancel,
		entries:   make(map[string]*entry),
	}, nil
}

func (r *Registry) Retention() time.Duration {
	return r.opts.Retention
}

// Create registers a job in the downloading state with its own working
// directory and returns its snapshot.
func (r *Registry) Create(req CreateRequest) (*ExtractionJob, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrStopped
	}

	id := uuid.NewString()
	dir, err := os.MkdirTemp(r.opts.Root, "extract-*")
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	arc, err := archive.New(filepath.Join(dir, slidesDir))
	if err != nil {
		r.mu.Unlock()
		os.RemoveAll(dir)
		return nil, err
	}

	now := time.Now()
	job := &ExtractionJob{
		ID:        id,
		Source:    req.Source,
		Params:    req.Params,
		Status:    StatusDownloading,
		Message:   "Downloading video...",
		WorkDir:   dir,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.entries[id] = &entry{job: job, archive: arc}
	pruned := r.pruneFinishedLocked()
	snapshot := cloneJob(job)
	r.mu.Unlock()

	log.Info("Created temp directory: %s for extraction ID: %s", dir, id)
	r.observer.JobChanged("", snapshot)
	for _, old := range pruned {
		r.Purge(old)
	}
	return snapshot, nil
}

// Start runs exec for the job on its own goroutine. The job context is
// cancelled by Stop, Purge or the job timeout.
func (r *Registry) Start(id string, exec Executor) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if e.cancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("job %s already started", id)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if r.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(r.baseCtx, r.opts.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(r.baseCtx)
	}
	e.cancel = cancel
	h := &Handle{r: r, id: id, source: e.job.Source, workDir: e.job.WorkDir, params: e.job.Params, archive: e.archive}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()

		err := exec(ctx, h)
		if job, ok := r.Get(id); ok && !job.Status.Terminal() {
			msg := "Extraction stopped before finishing"
			if err != nil {
				msg = fmt.Sprintf("Error: %v", err)
			}
			_ = h.SetStatus(StatusError, -1, msg)
		}
	}()
	return nil
}

func (r *Registry) Get(id string) (*ExtractionJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return cloneJob(e.job), true
}

// List returns snapshots of all live jobs, oldest first.
func (r *Registry) List() []*ExtractionJob {
	r.mu.RLock()
	ret := make([]*ExtractionJob, 0, len(r.entries))
	for _, e := range r.entries {
		ret = append(ret, cloneJob(e.job))
	}
	r.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Slides returns the ordered slide records of a job.
func (r *Registry) Slides(id string) ([]archive.SlideRecord, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e.archive.Records(), nil
}

// Touch pushes the purge deadline of a finished job to now + retention.
func (r *Registry) Touch(id string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	if !e.job.Status.Terminal() {
		return time.Time{}, ErrNotTerminal
	}
	r.armPurgeLocked(e, time.Now())
	log.Debug("Extraction %s will be cleaned up at %s", id, e.job.PurgeAt.Format(time.RFC3339))
	return e.job.PurgeAt, nil
}

// Purge removes the job and deletes its working directory. It reports
// whether the job existed.
func (r *Registry) Purge(id string) bool {
	return r.purge(id, func(*entry) bool { return true })
}

// expire is the purge timer callback. It does nothing when the timer was
// re-armed after firing, e.g. by a Touch that won the lock first.
func (r *Registry) expire(id string, gen uint64) bool {
	return r.purge(id, func(e *entry) bool { return e.timerGen == gen })
}

func (r *Registry) purge(id string, current func(e *entry) bool) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || !current(e) {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	snapshot := cloneJob(e.job)
	r.mu.Unlock()

	e.purgeOnce.Do(func() {
		if err := e.archive.Teardown(); err != nil {
			log.Warn("Failed to remove slides of %s: %v", id, err)
		}
		if err := removeDir(snapshot.WorkDir); err != nil {
			log.Error("Failed to remove temp directory %s: %v", snapshot.WorkDir, err)
			return
		}
		log.Info("Cleaned up temporary directory for extraction %s", id)
	})
	r.observer.JobPurged(snapshot)
	return true
}

// Sweep purges jobs whose retention has passed and deletes directories under
// the root that were left behind by an earlier process. It returns the
// number of jobs and directories removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.RLock()
	var expired []string
	for id, e := range r.entries {
		if e.job.Status.Terminal() && !e.job.PurgeAt.IsZero() && !now.Before(e.job.PurgeAt) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if r.Purge(id) {
			removed++
		}
	}
	return removed + r.removeOrphans()
}

func (r *Registry) removeOrphans() int {
	entries, err := os.ReadDir(r.opts.Root)
	if err != nil {
		log.Warn("Failed to scan %s for stale work dirs: %v", r.opts.Root, err)
		return 0
	}

	r.mu.RLock()
	owned := make(map[string]struct{}, len(r.entries))
	for _, e := range r.entries {
		owned[filepath.Base(e.job.WorkDir)] = struct{}{}
	}
	r.mu.RUnlock()

	removed := 0
	for _, de := range entries {
		if _, ok := owned[de.Name()]; ok || !de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(r.startedAt) {
			continue
		}
		dir := filepath.Join(r.opts.Root, de.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("Failed to remove stale work dir %s: %v", dir, err)
			continue
		}
		log.Info("Removed stale work dir %s", dir)
		removed++
	}
	return removed
}

// Stop cancels running jobs, waits for them and purges every job.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.stopBase()
	r.wg.Wait()

	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Purge(id)
	}
}

// update applies fn to a live job. Moving into a terminal status records the
// finish time and arms the purge timer.
func (r *Registry) update(id string, fn func(job *ExtractionJob) error) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	from := e.job.Status
	if err := fn(e.job); err != nil {
		r.mu.Unlock()
		return err
	}
	now := time.Now()
	e.job.UpdatedAt = now
	if !from.Terminal() && e.job.Status.Terminal() {
		e.job.FinishedAt = now
		r.armPurgeLocked(e, now)
	}
	snapshot := cloneJob(e.job)
	r.mu.Unlock()

	r.observer.JobChanged(from, snapshot)
	return nil
}

func (r *Registry) armPurgeLocked(e *entry, now time.Time) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.job.PurgeAt = now.Add(r.opts.Retention)
	e.timerGen++
	id, gen := e.job.ID, e.timerGen
	e.timer = time.AfterFunc(r.opts.Retention, func() { r.expire(id, gen) })
}

func (r *Registry) pruneFinishedLocked() []string {
	if r.opts.MaxJobs <= 0 || len(r.entries) <= r.opts.MaxJobs {
		return nil
	}

	type candidate struct {
		id         string
		finishedAt time.Time
	}
	finished := make([]candidate, 0, len(r.entries))
	for id, e := range r.entries {
		if e.job.Status.Terminal() {
			finished = append(finished, candidate{id: id, finishedAt: e.job.FinishedAt})
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].finishedAt.Before(finished[j].finishedAt)
	})

	toRemove := min(len(r.entries)-r.opts.MaxJobs, len(finished))
	pruned := make([]string, 0, toRemove)
	for _, c := range finished[:toRemove] {
		pruned = append(pruned, c.id)
	}
	return pruned
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(dir)
}
