package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/surge-downloader/sdm/internal/engine"
	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Task is one requested transfer. Progress and status fields are atomics
// so the UI can read them while a worker updates them.
type Task struct {
	id  string
	url string

	mu          sync.RWMutex // guards destination and timestamps
	destination string
	createdAt   time.Time
	endedAt     time.Time

	status     atomic.Int32 // types.DownloadStatus
	total      atomic.Int64
	downloaded atomic.Int64
	offset     atomic.Int64
	progress   atomic.Uint64 // math.Float64bits of a 0-100 percentage
	httpStatus atomic.Int32
	errKind    atomic.Int32 // types.ErrorKind

	resumeRequested atomic.Bool
	running         atomic.Bool
	generation      atomic.Uint64 // bumped per admission and when leaving active
	startedAt       atomic.Int64 // unix nanos of the current run
	speed           speedWindow

	runMu    sync.Mutex // serializes runs
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	client *transfer.Client
}

// NewTask creates a queued task for url
func NewTask(url, destination string, client *transfer.Client) *Task {
	t := &Task{
		id:          uuid.NewString(),
		url:         url,
		destination: destination,
		createdAt:   time.Now(),
		client:      client,
	}
	t.status.Store(int32(types.StatusQueued))
	return t
}

// Getters

func (t *Task) ID() string  { return t.id }
func (t *Task) URL() string { return t.url }

func (t *Task) Destination() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.destination
}

// Filename is the base name of the destination, or the name the URL
// suggests while no destination has been resolved
func (t *Task) Filename() string {
	dest := t.Destination()
	if dest == "" {
		return engine.FilenameFromURL(t.url)
	}
	return filepath.Base(dest)
}

func (t *Task) CreatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.createdAt
}

// EndedAt is zero unless the task completed or failed
func (t *Task) EndedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endedAt
}

func (t *Task) Status() types.DownloadStatus {
	return types.DownloadStatus(t.status.Load())
}

// TotalBytes is 0 while the size is unknown
func (t *Task) TotalBytes() int64      { return t.total.Load() }
func (t *Task) DownloadedBytes() int64 { return t.downloaded.Load() }
func (t *Task) ResumeOffset() int64    { return t.offset.Load() }
func (t *Task) HTTPStatus() int        { return int(t.httpStatus.Load()) }

func (t *Task) ErrorKind() types.ErrorKind {
	return types.ErrorKind(t.errKind.Load())
}

// ErrorMessage is empty for tasks without a recorded error
func (t *Task) ErrorMessage() string {
	if k := t.ErrorKind(); k != types.ErrNone {
		return k.Message()
	}
	return ""
}

// Progress is a percentage in [0, 100]
func (t *Task) Progress() float64 {
	return math.Float64frombits(t.progress.Load())
}

// SizeKnown reports whether the server announced a length
func (t *Task) SizeKnown() bool {
	return t.TotalBytes() > 0
}

// Running reports whether a worker is executing this task right now
func (t *Task) Running() bool {
	return t.running.Load()
}

// Setters

// SetDestination changes where the transfer writes. Only meaningful
// before the task runs.
func (t *Task) SetDestination(path string) {
	t.mu.Lock()
	t.destination = path
	t.mu.Unlock()
}

// SetStatus stores s. Leaving Active aborts the running transfer; the
// worker then resolves the outcome from its own goroutine.
func (t *Task) SetStatus(s types.DownloadStatus) {
	t.status.Store(int32(s))
	if s != types.StatusActive {
		t.abortRun()
	}
}

// SetHTTPStatus records the last HTTP status seen for this task
func (t *Task) SetHTTPStatus(code int) { t.httpStatus.Store(int32(code)) }

// SetErrorKind records why the task failed
func (t *Task) SetErrorKind(k types.ErrorKind) { t.errKind.Store(int32(k)) }

// MarkEnded stamps the end time with now
func (t *Task) MarkEnded() {
	t.mu.Lock()
	t.endedAt = time.Now()
	t.mu.Unlock()
}

func (t *Task) setProgress(p float64) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	t.progress.Store(math.Float64bits(p))
}

func (t *Task) updateProgress(downloaded, total int64) {
	if total > 0 {
		t.setProgress(float64(downloaded) / float64(total) * 100)
	}
}

// Resume asks the next Run to continue from the bytes already on disk.
// The status is left alone; the manager re-queues the task.
func (t *Task) Resume() {
	t.resumeRequested.Store(true)
}

// ResumeRequested reports whether the next Run continues a previous one
func (t *Task) ResumeRequested() bool {
	return t.resumeRequested.Load()
}

// Speed and ETA

// RecordSpeedSample adds a (time, cumulative bytes) sample
func (t *Task) RecordSpeedSample(at time.Time, downloaded int64) {
	t.speed.record(at, downloaded)
}

// CurrentSpeed returns bytes per second over the last types.SpeedWindow,
// or 0 when it cannot be measured
func (t *Task) CurrentSpeed() float64 {
	return t.speed.rate()
}

// ETA returns the remaining seconds at the current speed, or ETAUnknown
func (t *Task) ETA() float64 {
	if t.Status() != types.StatusActive {
		return ETAUnknown
	}
	downloaded, total := t.DownloadedBytes(), t.TotalBytes()
	if downloaded <= 0 || total <= 0 || downloaded >= total {
		return ETAUnknown
	}

	dt, db, ok := t.speed.deltas()
	if !ok || dt < 0.0001 || db < 1 {
		return ETAUnknown
	}
	return float64(total-downloaded) / (db / dt)
}

// Elapsed returns how long the current run has been going
func (t *Task) Elapsed() time.Duration {
	started := t.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Execution

func (t *Task) setCancel(cancel context.CancelFunc) {
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()
}

func (t *Task) abortRun() {
	t.cancelMu.Lock()
	cancel := t.cancel
	t.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// admit returns the token for one dispatch of t. Only a run carrying the
// latest token may start the transfer.
func (t *Task) admit() uint64 {
	return t.generation.Add(1)
}

// revoke invalidates every outstanding dispatch of t
func (t *Task) revoke() {
	t.generation.Add(1)
}

// Run executes the transfer on the calling goroutine. It only starts
// from Queued, so a double dispatch or a task paused or canceled before
// a worker picked it up is a no-op.
func (t *Task) Run() {
	t.runAdmitted(t.generation.Load())
}

// runAdmitted is Run for the dispatch identified by gen. A job left over
// from an earlier admission starts nothing, even when the task has since
// been re-queued.
func (t *Task) runAdmitted(gen uint64) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.generation.Load() != gen {
		utils.Debug("Task %s: stale dispatch skipped", t.id)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.setCancel(cancel)
	defer func() {
		t.setCancel(nil)
		cancel()
	}()

	if !t.status.CompareAndSwap(int32(types.StatusQueued), int32(types.StatusActive)) {
		utils.Debug("Task %s: run skipped, status is %s", t.id, t.Status())
		return
	}
	// The task may have been pulled out and re-queued between the check
	// above and the swap
	if t.generation.Load() != gen {
		t.status.CompareAndSwap(int32(types.StatusActive), int32(types.StatusQueued))
		utils.Debug("Task %s: stale dispatch skipped", t.id)
		return
	}
	t.running.Store(true)
	defer t.running.Store(false)

	t.startedAt.Store(time.Now().UnixNano())
	t.speed.reset()
	t.SetErrorKind(types.ErrNone)

	utils.Debug("Task %s: starting %s -> %s", t.id, t.url, t.Destination())
	res := t.execute(ctx)
	t.finish(res)
}

func (t *Task) execute(ctx context.Context) transfer.Result {
	dest := t.Destination()
	resume := t.resumeRequested.Swap(false)

	if !resume {
		t.offset.Store(0)
		t.downloaded.Store(0)
		t.total.Store(0)
		t.setProgress(0)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return transfer.Result{Kind: types.ErrWriteError, Err: transfer.WriteFailure(err)}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return transfer.Result{Kind: types.ErrWriteError, Err: transfer.WriteFailure(err)}
	}
	defer func() {
		if err := f.Close(); err != nil {
			utils.Debug("Task %s: error closing destination: %v", t.id, err)
		}
	}()

	var offset int64
	if resume {
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			offset = info.Size()
		}
		t.offset.Store(offset)
		t.downloaded.Store(offset)
		t.updateProgress(offset, t.TotalBytes())
		utils.Debug("Task %s: resuming at offset %d", t.id, offset)
	}

	req := transfer.Request{
		URL:    t.url,
		Offset: offset,
		OnResponse: func(r transfer.Response) error {
			t.SetHTTPStatus(r.StatusCode)
			if offset > 0 && !r.Partial {
				// Server ignored the range: start over
				utils.Debug("Task %s: range ignored (status %d), restarting from 0", t.id, r.StatusCode)
				if err := f.Truncate(0); err != nil {
					return transfer.WriteFailure(err)
				}
				offset = 0
				t.offset.Store(0)
				t.downloaded.Store(0)
				t.total.Store(0)
				t.setProgress(0)
			}
			return transfer.CheckFreeSpace(dest, r.ContentLength)
		},
		Progress: func(downloaded, total int64) error {
			return t.onProgress(offset, downloaded, total)
		},
	}

	res := t.client.Fetch(ctx, req, f)
	// Written is exact; progress callbacks may lag behind it
	storeMax(&t.downloaded, offset+res.Written)

	if errors.Is(res.Err, transfer.ErrRangeNotSatisfiable) && offset > 0 {
		// Everything was already on disk
		utils.Debug("Task %s: range not satisfiable at offset %d, treating as complete", t.id, offset)
		if t.TotalBytes() < offset {
			t.total.Store(offset)
		}
		t.downloaded.Store(offset)
		return transfer.Result{HTTPStatus: res.HTTPStatus, Kind: types.ErrNone}
	}
	if res.OK() {
		if err := f.Sync(); err != nil {
			return transfer.Result{HTTPStatus: res.HTTPStatus, Kind: types.ErrWriteError,
				Err: transfer.WriteFailure(fmt.Errorf("sync: %w", err)), Written: res.Written}
		}
	}
	return res
}

// onProgress is the transfer callback; a non-nil return aborts the transfer
func (t *Task) onProgress(offset, downloaded, total int64) error {
	if t.Status() != types.StatusActive {
		return errors.New("task no longer active")
	}

	now := offset + downloaded
	if total > 0 {
		total += offset
	}

	// Only ever grow: servers may announce the length late or not at all
	storeMax(&t.total, total)
	storeMax(&t.downloaded, now)

	t.updateProgress(t.downloaded.Load(), t.total.Load())
	t.RecordSpeedSample(time.Now(), t.downloaded.Load())
	return nil
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// finish resolves the run's outcome. A command that moved the task off
// Active first always wins over the worker's own verdict.
func (t *Task) finish(res transfer.Result) {
	if res.HTTPStatus != 0 {
		t.SetHTTPStatus(res.HTTPStatus)
	}

	if res.OK() {
		if t.status.CompareAndSwap(int32(types.StatusActive), int32(types.StatusCompleted)) {
			if t.TotalBytes() < t.DownloadedBytes() {
				t.total.Store(t.DownloadedBytes())
			}
			t.setProgress(100)
			t.MarkEnded()
			utils.Debug("Task %s: completed (%s)", t.id, utils.ConvertBytesToHumanReadable(t.DownloadedBytes()))
			return
		}
	} else if t.status.CompareAndSwap(int32(types.StatusActive), int32(types.StatusFailed)) {
		t.SetErrorKind(res.Kind)
		t.MarkEnded()
		utils.Debug("Task %s: failed: %v", t.id, res.Err)
		return
	}

	switch t.Status() {
	case types.StatusPaused:
		utils.Debug("Task %s: paused at %d bytes", t.id, t.DownloadedBytes())
	case types.StatusCanceled:
		t.removePartial()
	}
}

// removePartial deletes the destination file left by a canceled transfer
func (t *Task) removePartial() {
	dest := t.Destination()
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		utils.Debug("Task %s: failed to remove partial file %s: %v", t.id, dest, err)
		return
	}
	utils.Debug("Task %s: canceled, removed %s", t.id, dest)
}
