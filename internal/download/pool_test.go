package download

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/sdm/internal/testutil"
)

func TestWorkerPool_RunsEveryJob(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 50, ran.Load())
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, pool.Capacity())
}

func TestWorkerPool_SubmitNeverBlocks(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	pool.Submit(func() { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			pool.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked while the only worker was busy")
	}
	assert.Positive(t, pool.Pending())

	close(release)
	pool.Shutdown()
}

func TestWorkerPool_ShutdownJoinsWorkers(t *testing.T) {
	pool := NewWorkerPool(4)

	var finished atomic.Bool
	pool.Submit(func() {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})
	testutil.WaitFor(t, time.Second, func() bool { return pool.Pending() == 0 }, "job picked up")

	pool.Shutdown()
	assert.True(t, finished.Load(), "Shutdown must wait for running jobs")

	var late atomic.Bool
	pool.Submit(func() { late.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, late.Load(), "jobs submitted after shutdown are dropped")
}

func TestWorkerPool_ShutdownDrainsQueuedJobs(t *testing.T) {
	pool := NewWorkerPool(1)

	started, release := make(chan struct{}), make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-release
	})
	<-started

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		pool.Submit(func() { ran.Add(1) })
	}
	require.Equal(t, 5, pool.Pending())

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	pool.Shutdown()

	assert.EqualValues(t, 5, ran.Load())
	assert.Zero(t, pool.Pending())
}

func TestWorkerPool_SurvivesPanics(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	pool.Submit(func() { panic("boom") })

	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestWorkerPool_MinimumOneWorker(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Shutdown()
	assert.Equal(t, 1, pool.Capacity())
}
