package download

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/engine"
	"github.com/surge-downloader/sdm/internal/engine/state"
	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// Resolver picks a filename for a URL queued without a destination
type Resolver func(ctx context.Context, url string) engine.Lookup

// Manager owns the five task collections, the worker pool and the state
// file. Its methods may be called from any goroutine; workers never
// touch the collections.
type Manager struct {
	mu sync.Mutex

	queued    []*Task
	active    []*Task
	paused    []*Task
	completed []*Task
	failed    []*Task

	pool        *WorkerPool
	client      *transfer.Client
	statePath   string
	downloadDir string
	journal     *state.Journal
	resolve     Resolver
	workers     int
	closed      bool
}

// Option configures a Manager
type Option func(*Manager)

// WithWorkers sets the worker pool size (the concurrency ceiling)
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// WithStatePath overrides where state is persisted
func WithStatePath(path string) Option {
	return func(m *Manager) { m.statePath = path }
}

// WithDownloadDir sets the directory for downloads queued without a destination
func WithDownloadDir(dir string) Option {
	return func(m *Manager) { m.downloadDir = dir }
}

// WithClient sets the transfer client shared by all tasks
func WithClient(c *transfer.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithJournal records every status transition into j
func WithJournal(j *state.Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithResolver replaces the HEAD-based filename lookup
func WithResolver(r Resolver) Option {
	return func(m *Manager) { m.resolve = r }
}

// NewManager starts the worker pool and loads persisted tasks
func NewManager(opts ...Option) *Manager {
	m := &Manager{workers: types.DefaultWorkers}
	for _, opt := range opts {
		opt(m)
	}

	if m.client == nil {
		m.client = transfer.NewClient(nil)
	}
	if m.resolve == nil {
		m.resolve = func(ctx context.Context, url string) engine.Lookup {
			return engine.ResolveFilename(ctx, m.client, url)
		}
	}
	if m.statePath == "" {
		m.statePath = config.GetStateFilePath()
	}
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0o755); err != nil {
		utils.Debug("Manager: failed to create state directory: %v", err)
	}

	m.pool = NewWorkerPool(m.workers)

	m.mu.Lock()
	m.loadLocked()
	m.mu.Unlock()

	utils.Debug("Manager: started with %d workers, state %s", m.pool.Capacity(), m.statePath)
	return m
}

// Close pauses every queued and active task, stops the worker pool and
// persists. Further calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, t := range slices.Concat(m.active, m.queued) {
		m.moveLocked(t, types.StatusPaused)
	}
	m.mu.Unlock()

	// Workers flush their final byte counts before the last save
	m.pool.Shutdown()

	m.mu.Lock()
	defer m.mu.Unlock()
	utils.Debug("Manager: closed")
	return m.saveLocked()
}

// Commands

// QueueDownload creates a task for url. An empty destination is resolved
// with a HEAD lookup in the download directory; a failed lookup files the
// task as Failed without queuing a transfer and leaves its destination
// empty, so a retry looks the name up again.
func (m *Manager) QueueDownload(url, destination string) *Task {
	t := NewTask(url, destination, m.client)

	if destination == "" {
		lookup := m.resolve(context.Background(), url)
		t.SetHTTPStatus(lookup.HTTPStatus)

		if lookup.Err != nil {
			t.SetErrorKind(lookup.Kind)
			t.MarkEnded()
			utils.Debug("Manager: lookup for %s failed: %v", url, lookup.Err)

			m.mu.Lock()
			defer m.mu.Unlock()
			m.moveLocked(t, types.StatusFailed)
			m.persistLocked()
			return t
		}
		t.SetDestination(filepath.Join(m.downloadDir, lookup.Filename))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueLocked(t)
	m.persistLocked()
	return t
}

// PauseDownload pauses the active task at index
func (m *Manager) PauseDownload(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := at(m.active, index); t != nil {
		m.pauseLocked(t)
		m.persistLocked()
	}
}

// CancelDownload cancels the active task at index and removes its partial file
func (m *Manager) CancelDownload(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := at(m.active, index); t != nil {
		m.cancelLocked(t)
		m.persistLocked()
	}
}

// ResumeDownload re-queues the paused task at index, continuing from the
// bytes already on disk
func (m *Manager) ResumeDownload(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := at(m.paused, index); t != nil {
		m.resumeLocked(t)
		m.persistLocked()
	}
}

// RetryDownload replaces the failed task at index with a fresh task for
// the same URL and destination. The transfer restarts from zero. A task
// whose filename lookup failed is queued again through QueueDownload.
func (m *Manager) RetryDownload(index int) {
	m.mu.Lock()
	var lookups []string
	if t := at(m.failed, index); t != nil {
		lookups = m.retryLocked(t, lookups)
		m.persistLocked()
	}
	m.mu.Unlock()
	m.queueLookups(lookups)
}

// PauseAllDownloads pauses every active and queued task
func (m *Manager) PauseAllDownloads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range slices.Concat(m.active, m.queued) {
		m.pauseLocked(t)
	}
	m.persistLocked()
}

func (m *Manager) ResumeAllDownloads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range slices.Clone(m.paused) {
		m.resumeLocked(t)
	}
	m.persistLocked()
}

// CancelAllDownloads cancels every active and queued task
func (m *Manager) CancelAllDownloads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range slices.Concat(m.active, m.queued) {
		m.cancelLocked(t)
	}
	m.persistLocked()
}

func (m *Manager) RetryAllDownloads() {
	m.mu.Lock()
	var lookups []string
	for _, t := range slices.Clone(m.failed) {
		lookups = m.retryLocked(t, lookups)
	}
	m.persistLocked()
	m.mu.Unlock()
	m.queueLookups(lookups)
}

// queueLookups queues urls that still need a filename lookup. It runs
// without m.mu since each lookup is a network round trip.
func (m *Manager) queueLookups(urls []string) {
	for _, u := range urls {
		m.QueueDownload(u, "")
	}
}

// UpdateTaskStatus moves t into the collection for s and persists.
// Canceled tasks end up in no collection.
func (m *Manager) UpdateTaskStatus(t *Task, s types.DownloadStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moveLocked(t, s)
	m.persistLocked()
}

// Update reconciles finished transfers out of the active collection and
// admits queued tasks while worker slots are free.
func (m *Manager) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range slices.Clone(m.active) {
		switch s := t.Status(); s {
		case types.StatusActive, types.StatusQueued:
			// Running, or admitted and waiting for a worker
		case types.StatusCompleted, types.StatusFailed:
			m.moveLocked(t, s)
		default:
			utils.Debug("Manager: dropping %s task %s from active", s, t.ID())
			m.active = remove(m.active, t)
		}
	}

	if !m.closed {
		for len(m.queued) > 0 && len(m.active) < m.pool.Capacity() {
			t := m.queued[len(m.queued)-1]
			m.queued = m.queued[:len(m.queued)-1]
			m.active = append(m.active, t)
			utils.Debug("Manager: admitting %s (%d/%d active)", t.ID(), len(m.active), m.pool.Capacity())
			gen := t.admit()
			m.pool.Submit(func() { t.runAdmitted(gen) })
		}
	}

	m.persistLocked()
}

// ClearHistory permanently drops every completed and failed task
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = nil
	m.failed = nil
	m.persistLocked()
}

// Views. Each returns a snapshot; indices are only valid until the next
// command or Update.

func (m *Manager) Queued() []*Task    { return m.snapshot(&m.queued) }
func (m *Manager) Active() []*Task    { return m.snapshot(&m.active) }
func (m *Manager) Paused() []*Task    { return m.snapshot(&m.paused) }
func (m *Manager) Completed() []*Task { return m.snapshot(&m.completed) }
func (m *Manager) Failed() []*Task    { return m.snapshot(&m.failed) }

func (m *Manager) snapshot(list *[]*Task) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(*list)
}

// Capacity returns the maximum number of simultaneously active tasks
func (m *Manager) Capacity() int {
	return m.pool.Capacity()
}

// Idle reports whether nothing is queued or active
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queued) == 0 && len(m.active) == 0
}

// StatePath returns the file state is persisted to
func (m *Manager) StatePath() string {
	return m.statePath
}

// Internals; callers hold m.mu.

func (m *Manager) pauseLocked(t *Task) {
	m.moveLocked(t, types.StatusPaused)
}

func (m *Manager) cancelLocked(t *Task) {
	m.moveLocked(t, types.StatusCanceled)
	// A running worker removes the file itself once it has closed it
	if !t.Running() {
		t.removePartial()
	}
}

func (m *Manager) resumeLocked(t *Task) {
	t.Resume()
	m.moveLocked(t, types.StatusQueued)
}

// retryLocked drops t and queues a fresh task in its place. URLs that
// never got a destination are appended to lookups for the caller to queue
// once m.mu is released.
func (m *Manager) retryLocked(t *Task, lookups []string) []string {
	m.removeLocked(t)
	if t.Destination() == "" {
		return append(lookups, t.URL())
	}
	m.enqueueLocked(NewTask(t.URL(), t.Destination(), m.client))
	return lookups
}

// enqueueLocked makes t's destination collision-free and queues it
func (m *Manager) enqueueLocked(t *Task) {
	t.SetDestination(utils.UniqueFilePathFunc(t.Destination(), m.destinationTaken))
	m.moveLocked(t, types.StatusQueued)
	utils.Debug("Manager: queued %s -> %s", t.URL(), t.Destination())
}

// destinationTaken reports whether path exists on disk or belongs to a
// task that may still write to it
func (m *Manager) destinationTaken(path string) bool {
	if utils.FileExists(path) {
		return true
	}
	for _, list := range [][]*Task{m.queued, m.active, m.paused} {
		for _, t := range list {
			if t.Destination() == path {
				return true
			}
		}
	}
	return false
}

// moveLocked is the single choke point for status transitions
func (m *Manager) moveLocked(t *Task, s types.DownloadStatus) {
	from, found := m.removeLocked(t)
	if !found {
		from = t.Status()
	}
	if found && from == types.StatusActive && s != types.StatusActive {
		t.revoke()
	}
	t.SetStatus(s)
	if list := m.collection(s); list != nil {
		*list = append(*list, t)
	}

	if err := m.journal.Record(state.Entry{
		TaskID:      t.ID(),
		URL:         t.URL(),
		Destination: t.Destination(),
		From:        from,
		Status:      s,
		Downloaded:  t.DownloadedBytes(),
		Total:       t.TotalBytes(),
		HTTPStatus:  t.HTTPStatus(),
		Kind:        t.ErrorKind(),
	}); err != nil {
		utils.Debug("Manager: journal write failed: %v", err)
	}
}

// removeLocked drops t from whichever collection holds it and reports
// the status that collection stands for
func (m *Manager) removeLocked(t *Task) (types.DownloadStatus, bool) {
	for i, list := range m.collections() {
		if idx := slices.Index(*list, t); idx != -1 {
			*list = slices.Delete(*list, idx, idx+1)
			return collectionOrder[i], true
		}
	}
	return t.Status(), false
}

func (m *Manager) collection(s types.DownloadStatus) *[]*Task {
	switch s {
	case types.StatusQueued:
		return &m.queued
	case types.StatusActive:
		return &m.active
	case types.StatusPaused:
		return &m.paused
	case types.StatusCompleted:
		return &m.completed
	case types.StatusFailed:
		return &m.failed
	default:
		return nil
	}
}

// collectionOrder is the persistence order of the collections
var collectionOrder = []types.DownloadStatus{
	types.StatusQueued,
	types.StatusActive,
	types.StatusPaused,
	types.StatusCompleted,
	types.StatusFailed,
}

// collections lists every collection in collectionOrder
func (m *Manager) collections() []*[]*Task {
	return []*[]*Task{&m.queued, &m.active, &m.paused, &m.completed, &m.failed}
}

func (m *Manager) persistLocked() {
	if err := m.saveLocked(); err != nil {
		utils.Debug("Manager: failed to save state: %v", err)
	}
}

func at(list []*Task, index int) *Task {
	if index < 0 || index >= len(list) {
		return nil
	}
	return list[index]
}

func remove(list []*Task, t *Task) []*Task {
	if i := slices.Index(list, t); i != -1 {
		return slices.Delete(list, i, i+1)
	}
	return list
}
