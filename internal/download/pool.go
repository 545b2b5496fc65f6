package download

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/surge-downloader/sdm/internal/utils"
)

// WorkerPool runs submitted jobs on a fixed number of goroutines.
// The job queue is unbounded; admission is the Manager's concern.
type WorkerPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     deque.Deque[func()]
	workers  int
	stopping bool
	wg       sync.WaitGroup
}

// NewWorkerPool starts workers goroutines (at least one)
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	p := &WorkerPool{workers: workers}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues job and wakes one idle worker. It never blocks.
// Jobs submitted after Shutdown are dropped.
func (p *WorkerPool) Submit(job func()) {
	if job == nil {
		return
	}
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		utils.Debug("Worker pool: job submitted after shutdown dropped")
		return
	}
	p.jobs.PushBack(job)
	p.mu.Unlock()
	p.cond.Signal()
}

// Capacity returns the configured worker count
func (p *WorkerPool) Capacity() int {
	return p.workers
}

// Pending returns the number of jobs waiting for a worker
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs.Len()
}

// Shutdown stops accepting jobs, wakes every worker and waits for all of
// them to exit. Jobs already queued still run before the workers exit.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.jobs.Len() == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.jobs.Len() == 0 {
			p.mu.Unlock()
			return
		}
		job := p.jobs.PopFront()
		p.mu.Unlock()

		p.execute(id, job)
	}
}

// execute runs job outside the pool lock; a panicking job must not take
// the worker down with it
func (p *WorkerPool) execute(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			utils.Debug("Worker %d: job panicked: %v", id, r)
		}
	}()
	job()
}
