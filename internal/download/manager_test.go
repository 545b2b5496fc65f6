package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/sdm/internal/engine"
	"github.com/surge-downloader/sdm/internal/engine/state"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/testutil"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithStatePath(filepath.Join(t.TempDir(), "state", "downloads")),
		WithClient(testClient()),
		WithDownloadDir(t.TempDir()),
	}
	m := NewManager(append(base, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// assertConsistent checks that every task sits in exactly one collection
// and that the collection matches its status
func assertConsistent(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[*Task]int{}
	for i, list := range m.collections() {
		want := collectionOrder[i]
		for _, task := range *list {
			seen[task]++
			got := task.Status()
			if want == types.StatusActive && got == types.StatusQueued {
				continue // admitted, waiting for a worker
			}
			assert.Equal(t, want, got, "task %s filed under %s", task.ID(), want)
		}
	}
	for task, n := range seen {
		assert.Equal(t, 1, n, "task %s held by %d collections", task.ID(), n)
	}
}

func waitStatus(t *testing.T, task *Task, s types.DownloadStatus) {
	t.Helper()
	testutil.WaitFor(t, 10*time.Second, func() bool { return task.Status() == s }, "status "+s.String())
}

func TestManager_QueueUniqueDestination(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	m := newTestManager(t)
	task := m.QueueDownload("http://example.com/a.txt", existing)

	assert.Equal(t, filepath.Join(dir, "a__1.txt"), task.Destination())
	assert.Equal(t, []*Task{task}, m.Queued())
	assertConsistent(t, m)
}

func TestManager_QueueAvoidsTrackedDestinations(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "same.bin")
	m := newTestManager(t)

	first := m.QueueDownload("http://example.com/1", dest)
	second := m.QueueDownload("http://example.com/2", dest)

	assert.Equal(t, dest, first.Destination())
	assert.Equal(t, filepath.Join(filepath.Dir(dest), "same__1.bin"), second.Destination())
}

func TestManager_QueueResolvesFilename(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFilename("report.pdf"))
	dir := t.TempDir()
	m := newTestManager(t, WithDownloadDir(dir))

	task := m.QueueDownload(server.URL()+"/download", "")

	assert.Equal(t, filepath.Join(dir, "report.pdf"), task.Destination())
	assert.Equal(t, types.StatusQueued, task.Status())
	assert.Equal(t, 200, task.HTTPStatus())
}

func TestManager_QueueLookupFailure(t *testing.T) {
	m := newTestManager(t, WithResolver(func(ctx context.Context, url string) engine.Lookup {
		return engine.Lookup{
			Filename: types.DefaultFilename,
			Kind:     types.ErrCouldNotResolveHost,
			Err:      errors.New("no such host"),
		}
	}))

	task := m.QueueDownload("http://nope.invalid/file", "")

	assert.Equal(t, types.StatusFailed, task.Status())
	assert.Equal(t, types.ErrCouldNotResolveHost, task.ErrorKind())
	assert.False(t, task.EndedAt().IsZero())
	assert.Empty(t, m.Queued())
	assert.Equal(t, []*Task{task}, m.Failed())

	m.Update()
	assert.Empty(t, m.Active(), "a failed lookup never reaches the pool")
}

func TestManager_QueueLookupHTTPError(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithStatus(403))
	m := newTestManager(t)

	task := m.QueueDownload(server.URL()+"/x.bin", "")

	assert.Equal(t, types.StatusFailed, task.Status())
	assert.Equal(t, types.ErrHTTPReturnedError, task.ErrorKind())
	assert.Equal(t, 403, task.HTTPStatus())
}

func TestManager_AdmissionControl(t *testing.T) {
	slowA := slowServer(t, 256*1024)
	slowB := slowServer(t, 256*1024)
	fast := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	dir := t.TempDir()

	m := newTestManager(t, WithWorkers(2))
	a := m.QueueDownload(slowA.URL(), filepath.Join(dir, "a"))
	b := m.QueueDownload(slowB.URL(), filepath.Join(dir, "b"))
	c := m.QueueDownload(fast.URL(), filepath.Join(dir, "c"))

	m.Update()
	assert.Len(t, m.Active(), 2)
	assert.Len(t, m.Queued(), 1)
	// Admission pops from the back of the queue
	assert.ElementsMatch(t, []*Task{b, c}, m.Active())
	assert.Equal(t, []*Task{a}, m.Queued())
	assertConsistent(t, m)

	waitStatus(t, c, types.StatusCompleted)
	m.Update()

	assert.Equal(t, []*Task{c}, m.Completed())
	assert.ElementsMatch(t, []*Task{a, b}, m.Active())
	assert.Empty(t, m.Queued())
	assertConsistent(t, m)

	m.CancelAllDownloads()
}

func TestManager_UpdateNeverExceedsCapacity(t *testing.T) {
	m := newTestManager(t, WithWorkers(3))
	dir := t.TempDir()
	server := slowServer(t, 256*1024)
	for i := 0; i < 10; i++ {
		m.QueueDownload(server.URL(), filepath.Join(dir, "f.bin"))
	}

	for i := 0; i < 5; i++ {
		m.Update()
		assert.LessOrEqual(t, len(m.Active()), m.Capacity())
	}
	assert.Len(t, m.Active(), 3)
	assert.Len(t, m.Queued(), 7)

	m.CancelAllDownloads()
}

func TestManager_PauseResume(t *testing.T) {
	server := slowServer(t, 200*1024)
	dest := filepath.Join(t.TempDir(), "movie.bin")

	m := newTestManager(t)
	task := m.QueueDownload(server.URL(), dest)
	m.Update()
	testutil.WaitFor(t, 10*time.Second, func() bool { return task.Progress() >= 40 }, "40% progress")

	m.PauseDownload(0)
	assert.Equal(t, types.StatusPaused, task.Status())
	assert.Equal(t, []*Task{task}, m.Paused())
	testutil.WaitFor(t, 5*time.Second, func() bool { return !task.Running() }, "worker released")

	pausedAt := task.DownloadedBytes()
	info, err := os.Stat(dest)
	require.NoError(t, err, "pausing keeps the partial file")
	assert.Equal(t, pausedAt, info.Size())

	m.ResumeDownload(0)
	assert.Equal(t, types.StatusQueued, task.Status())
	assert.Equal(t, []*Task{task}, m.Queued())

	m.Update()
	waitStatus(t, task, types.StatusCompleted)

	assert.Equal(t, pausedAt, task.ResumeOffset())
	assert.EqualValues(t, 200*1024, task.DownloadedBytes())
	assert.NoError(t, testutil.VerifyFileContent(dest, server.Data()))

	m.Update()
	assert.Equal(t, []*Task{task}, m.Completed())
	assertConsistent(t, m)
}

func TestManager_FailureAndClearHistory(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(64*1024), testutil.WithFailAfterBytes(8*1024))
	m := newTestManager(t)

	task := m.QueueDownload(server.URL(), filepath.Join(t.TempDir(), "f.bin"))
	m.Update()
	waitStatus(t, task, types.StatusFailed)
	m.Update()

	assert.Equal(t, []*Task{task}, m.Failed())
	assert.Empty(t, m.Active())
	assert.Equal(t, types.ErrPartialFile, task.ErrorKind())
	assert.NotEmpty(t, task.ErrorMessage())
	assertConsistent(t, m)

	m.ClearHistory()
	assert.Empty(t, m.Failed())
	assert.Empty(t, m.Completed())
}

func TestManager_Cancel(t *testing.T) {
	server := slowServer(t, 200*1024)
	dest := filepath.Join(t.TempDir(), "f.bin")
	m := newTestManager(t)

	task := m.QueueDownload(server.URL(), dest)
	m.Update()
	testutil.WaitFor(t, 10*time.Second, func() bool { return task.DownloadedBytes() > 0 }, "transfer under way")

	m.CancelDownload(0)
	assert.Equal(t, types.StatusCanceled, task.Status())
	testutil.WaitFor(t, 5*time.Second, func() bool { return !task.Running() }, "worker released")

	for _, list := range [][]*Task{m.Queued(), m.Active(), m.Paused(), m.Completed(), m.Failed()} {
		assert.NotContains(t, list, task)
	}
	assert.False(t, testutil.FileExists(dest))
}

func TestManager_CancelBeforeWorkerStarts(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	m := newTestManager(t, WithWorkers(1))

	// Occupy the only worker so the admitted task waits in the pool
	release := make(chan struct{})
	m.pool.Submit(func() { <-release })

	// Leftover bytes from an earlier paused attempt
	dest := filepath.Join(t.TempDir(), "waiting.bin")
	waiting := m.QueueDownload(server.URL(), dest)
	require.NoError(t, os.WriteFile(dest, []byte("partial"), 0o644))

	m.Update()
	require.Equal(t, []*Task{waiting}, m.Active())
	assert.Equal(t, types.StatusQueued, waiting.Status(), "admitted but not started")
	assertConsistent(t, m)

	m.CancelDownload(0)
	assert.False(t, testutil.FileExists(dest))
	assert.Empty(t, m.Active())

	// The stale job must not resurrect the task when a worker reaches it
	close(release)
	testutil.WaitFor(t, 5*time.Second, func() bool { return m.pool.Pending() == 0 }, "pool drained")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, types.StatusCanceled, waiting.Status())
	assert.False(t, testutil.FileExists(dest))
	assert.Zero(t, server.RequestCount.Load())
}

func TestManager_RequeuedTaskIgnoresEarlierDispatch(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	m := newTestManager(t, WithWorkers(1))

	started, release := make(chan struct{}), make(chan struct{})
	m.pool.Submit(func() {
		close(started)
		<-release
	})
	<-started

	task := m.QueueDownload(server.URL(), filepath.Join(t.TempDir(), "bounce.bin"))
	m.Update()
	require.Equal(t, []*Task{task}, m.Active())

	// Pulled out and re-queued while its job still waits for the worker
	m.PauseDownload(0)
	m.ResumeDownload(0)
	require.Equal(t, []*Task{task}, m.Queued())

	close(release)
	testutil.WaitFor(t, 5*time.Second, func() bool { return m.pool.Pending() == 0 }, "pool drained")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, types.StatusQueued, task.Status(), "the earlier job must not start the transfer")
	assert.Equal(t, []*Task{task}, m.Queued())
	assert.Empty(t, m.Active())
	assert.Zero(t, server.RequestCount.Load())
	assertConsistent(t, m)

	m.Update()
	require.Equal(t, []*Task{task}, m.Active())
	waitStatus(t, task, types.StatusCompleted)
	assert.EqualValues(t, 1, server.RequestCount.Load())

	m.Update()
	assert.Equal(t, []*Task{task}, m.Completed())
	assertConsistent(t, m)
}

func TestManager_RetryRestartsTransfer(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(4096))
	dir := t.TempDir()
	m := newTestManager(t)

	failed := NewTask(server.URL(), filepath.Join(dir, "r.bin"), testClient())
	failed.SetErrorKind(types.ErrCouldNotConnect)
	m.UpdateTaskStatus(failed, types.StatusFailed)
	require.NoError(t, os.WriteFile(failed.Destination(), []byte("partial"), 0o644))

	m.RetryDownload(0)

	assert.Empty(t, m.Failed())
	queued := m.Queued()
	require.Len(t, queued, 1)
	retried := queued[0]
	assert.NotSame(t, failed, retried)
	assert.NotEqual(t, failed.ID(), retried.ID())
	assert.Equal(t, failed.URL(), retried.URL())
	assert.Equal(t, filepath.Join(dir, "r__1.bin"), retried.Destination())
	assert.Equal(t, types.ErrNone, retried.ErrorKind())
	assert.False(t, retried.ResumeRequested(), "retry restarts rather than resumes")

	m.Update()
	waitStatus(t, retried, types.StatusCompleted)
	assert.Zero(t, retried.ResumeOffset())
}

func TestManager_OutOfRangeIndicesAreNoops(t *testing.T) {
	m := newTestManager(t)
	m.QueueDownload("http://example.com/a", filepath.Join(t.TempDir(), "a"))

	for _, idx := range []int{-1, 0, 1, 99} {
		m.PauseDownload(idx)
		m.CancelDownload(idx)
		m.ResumeDownload(idx)
		m.RetryDownload(idx)
	}
	assert.Len(t, m.Queued(), 1)
	assertConsistent(t, m)
}

func TestManager_AllVariants(t *testing.T) {
	dir := t.TempDir()
	server := slowServer(t, 512*1024)
	m := newTestManager(t, WithWorkers(3))

	var running []*Task
	for i := 0; i < 3; i++ {
		running = append(running, m.QueueDownload(server.URL(), filepath.Join(dir, "f.bin")))
	}
	m.Update()
	for _, task := range running {
		waitStatus(t, task, types.StatusActive)
	}
	waiting := m.QueueDownload(server.URL(), filepath.Join(dir, "f.bin"))
	m.Update()
	require.Equal(t, []*Task{waiting}, m.Queued(), "no free worker")
	tasks := append(slices.Clone(running), waiting)

	m.PauseAllDownloads()
	assert.Empty(t, m.Active())
	assert.Empty(t, m.Queued(), "queued tasks are paused too")
	assert.Len(t, m.Paused(), 4)
	assert.Equal(t, types.StatusPaused, waiting.Status())
	assertConsistent(t, m)

	m.ResumeAllDownloads()
	assert.Empty(t, m.Paused())
	assert.Len(t, m.Queued(), 4)
	for _, task := range tasks {
		assert.True(t, task.ResumeRequested())
	}

	m.Update()
	require.Len(t, m.Active(), 3)
	require.Len(t, m.Queued(), 1)

	m.CancelAllDownloads()
	assert.Empty(t, m.Active())
	assert.Empty(t, m.Queued(), "queued tasks are canceled too")
	for _, task := range tasks {
		assert.Equal(t, types.StatusCanceled, task.Status())
	}
	assertConsistent(t, m)
}

func TestManager_RetryRepeatsFailedLookup(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	m := newTestManager(t, WithDownloadDir(dir), WithResolver(func(ctx context.Context, url string) engine.Lookup {
		if calls.Add(1) == 1 {
			return engine.Lookup{
				Filename: types.DefaultFilename,
				Kind:     types.ErrCouldNotConnect,
				Err:      errors.New("connection refused"),
			}
		}
		return engine.Lookup{Filename: "report.pdf", HTTPStatus: 200}
	}))

	failed := m.QueueDownload("http://example.com/download", "")
	require.Equal(t, []*Task{failed}, m.Failed())
	assert.Empty(t, failed.Destination(), "a failed lookup resolves no destination")
	assert.Equal(t, types.DefaultFilename, failed.Filename())

	m.RetryDownload(0)

	assert.EqualValues(t, 2, calls.Load(), "retry looks the filename up again")
	assert.Empty(t, m.Failed())
	queued := m.Queued()
	require.Len(t, queued, 1)
	assert.NotSame(t, failed, queued[0])
	assert.Equal(t, filepath.Join(dir, "report.pdf"), queued[0].Destination())
	assertConsistent(t, m)
}

func TestManager_RetryAllMixesLookupsAndDestinations(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	m := newTestManager(t, WithDownloadDir(dir), WithResolver(func(ctx context.Context, url string) engine.Lookup {
		calls.Add(1)
		return engine.Lookup{Filename: "looked-up.bin", HTTPStatus: 200}
	}))

	noDest := NewTask("http://example.com/a", "", testClient())
	withDest := NewTask("http://example.com/b", filepath.Join(dir, "b.bin"), testClient())
	m.UpdateTaskStatus(noDest, types.StatusFailed)
	m.UpdateTaskStatus(withDest, types.StatusFailed)

	m.RetryAllDownloads()

	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, m.Failed())
	var dests []string
	for _, task := range m.Queued() {
		dests = append(dests, task.Destination())
	}
	assert.ElementsMatch(t, []string{filepath.Join(dir, "b.bin"), filepath.Join(dir, "looked-up.bin")}, dests)
	assertConsistent(t, m)
}

func TestManager_RetryAll(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		task := NewTask("http://example.com/"+name, filepath.Join(dir, name), testClient())
		m.UpdateTaskStatus(task, types.StatusFailed)
	}

	m.RetryAllDownloads()
	assert.Empty(t, m.Failed())
	assert.Len(t, m.Queued(), 2)
}

// Pausing or canceling always files the task through UpdateTaskStatus, so
// the reconciliation step never has to rescue one from the active list.
func TestManager_CommandsRefileBeforeUpdate(t *testing.T) {
	server := slowServer(t, 256*1024)
	dir := t.TempDir()
	m := newTestManager(t)

	paused := m.QueueDownload(server.URL(), filepath.Join(dir, "p"))
	canceled := m.QueueDownload(server.URL(), filepath.Join(dir, "c"))
	m.Update()
	waitStatus(t, paused, types.StatusActive)
	waitStatus(t, canceled, types.StatusActive)

	for i, task := range m.Active() {
		if task == paused {
			m.PauseDownload(i)
			break
		}
	}
	m.CancelDownload(0)
	m.Update()

	assert.Equal(t, []*Task{paused}, m.Paused(), "the paused task survives reconciliation")
	assert.Empty(t, m.Active())
	assert.Equal(t, types.StatusCanceled, canceled.Status())
	assertConsistent(t, m)
}

func TestManager_UpdateDropsStrays(t *testing.T) {
	m := newTestManager(t)
	task := NewTask("http://example.com/x", filepath.Join(t.TempDir(), "x"), testClient())
	m.UpdateTaskStatus(task, types.StatusActive)

	// A status change that bypassed the manager
	task.SetStatus(types.StatusPaused)
	m.Update()

	assert.Empty(t, m.Active())
	assert.Empty(t, m.Paused())
}

func TestManager_JournalRecordsTransitions(t *testing.T) {
	journal, err := state.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	server := testutil.NewMockServerT(t, testutil.WithFileSize(2048))
	m := newTestManager(t, WithJournal(journal))

	task := m.QueueDownload(server.URL(), filepath.Join(t.TempDir(), "j.bin"))
	m.Update()
	waitStatus(t, task, types.StatusCompleted)
	m.Update()

	entries, err := journal.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, task.ID(), entries[0].TaskID)
	assert.Equal(t, types.StatusActive, entries[0].From)
	assert.Equal(t, types.StatusCompleted, entries[0].Status)
	assert.EqualValues(t, 2048, entries[0].Downloaded)
	assert.Equal(t, types.StatusQueued, entries[1].Status)
}

func TestManager_ClosePausesEverything(t *testing.T) {
	server := slowServer(t, 256*1024)
	dir := t.TempDir()
	statePath := filepath.Join(dir, "downloads")

	m := NewManager(WithStatePath(statePath), WithClient(testClient()), WithWorkers(1))
	running := m.QueueDownload(server.URL(), filepath.Join(dir, "a"))
	m.Update()
	waitStatus(t, running, types.StatusActive)
	waiting := m.QueueDownload(server.URL(), filepath.Join(dir, "b"))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "Close is idempotent")

	assert.Equal(t, types.StatusPaused, running.Status())
	assert.Equal(t, types.StatusPaused, waiting.Status())
	assert.False(t, running.Running())

	reloaded := NewManager(WithStatePath(statePath), WithClient(testClient()))
	defer reloaded.Close()
	paused := reloaded.Paused()
	require.Len(t, paused, 2)
	assert.Equal(t, running.Destination(), paused[0].Destination())
	assert.Equal(t, running.DownloadedBytes(), paused[0].DownloadedBytes(), "final byte count persisted")
	assert.Empty(t, reloaded.Active())
	assert.Empty(t, reloaded.Queued())
}

func TestManager_PersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "downloads")
	m := NewManager(WithStatePath(statePath), WithClient(testClient()))

	created := time.Unix(1_700_000_000, 0)
	ended := created.Add(time.Hour)
	add := func(url, dest string, s types.DownloadStatus, downloaded, total int64, code int, kind types.ErrorKind, end time.Time) {
		task := NewTask(url, filepath.Join(dir, dest), testClient())
		task.downloaded.Store(downloaded)
		task.total.Store(total)
		task.SetHTTPStatus(code)
		task.SetErrorKind(kind)
		task.createdAt = created
		task.endedAt = end
		m.UpdateTaskStatus(task, s)
	}

	add("http://example.com/q1", "q 1.bin", types.StatusQueued, 0, 0, 0, types.ErrNone, time.Time{})
	add(`http://example.com/q2?name="x"`, "q2.bin", types.StatusQueued, 0, 0, 0, types.ErrNone, time.Time{})
	add("http://example.com/a", "a.bin", types.StatusActive, 500, 1000, 206, types.ErrNone, time.Time{})
	add("http://example.com/c", "c.bin", types.StatusCompleted, 1000, 1000, 200, types.ErrNone, ended)
	add("http://example.com/f", "f.bin", types.StatusFailed, 10, 0, 404, types.ErrHTTPReturnedError, ended)

	reloaded := NewManager(WithStatePath(statePath), WithClient(testClient()))
	defer reloaded.Close()
	defer m.Close()

	compare := func(want, got []*Task) {
		t.Helper()
		require.Len(t, got, len(want))
		for i := range want {
			w, g := want[i], got[i]
			assert.Equal(t, w.URL(), g.URL())
			assert.Equal(t, w.Destination(), g.Destination())
			assert.Equal(t, w.DownloadedBytes(), g.DownloadedBytes())
			assert.Equal(t, w.TotalBytes(), g.TotalBytes())
			assert.Equal(t, w.Status(), g.Status())
			assert.Equal(t, w.HTTPStatus(), g.HTTPStatus())
			assert.Equal(t, w.ErrorKind(), g.ErrorKind())
			assert.True(t, w.CreatedAt().Equal(g.CreatedAt()))
			assert.True(t, w.EndedAt().Equal(g.EndedAt()))
		}
	}
	compare(m.Queued(), reloaded.Queued())
	compare(m.Active(), reloaded.Active())
	compare(m.Paused(), reloaded.Paused())
	compare(m.Completed(), reloaded.Completed())
	compare(m.Failed(), reloaded.Failed())

	assert.Equal(t, 100.0, reloaded.Completed()[0].Progress())
	assert.Equal(t, 50.0, reloaded.Active()[0].Progress())

	// Loaded active tasks are not dispatched again
	assert.False(t, reloaded.Active()[0].Running())
	assert.Zero(t, reloaded.pool.Pending())
}
