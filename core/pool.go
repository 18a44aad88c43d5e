package core

import (
	"log/slog"
	"sync"
)

const (
	// DefaultPoolWorkers bounds how many evaluations run concurrently.
	DefaultPoolWorkers = 10
	// DefaultPoolQueueSize bounds how many evaluations may wait. Beyond
	// this the oldest queued task is dropped.
	DefaultPoolQueueSize = 100
)

// WorkerPool runs submitted tasks on a fixed set of goroutines over a
// bounded queue. When the queue is full the oldest waiting task is dropped
// so fresh evaluations are never starved by a backlog of stale ones.
type WorkerPool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics MetricsRecorder

	mu      sync.Mutex
	stopped bool
}

func NewWorkerPool(workers, queueSize int, metrics MetricsRecorder, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultPoolQueueSize
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	p := &WorkerPool{
		tasks:   make(chan func(), queueSize),
		logger:  logger,
		metrics: metrics,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues a task. Returns false if the pool is stopped or the task
// was discarded because the queue stayed full.
func (p *WorkerPool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
	}

	// Queue full: evict the oldest waiting task to make room.
	select {
	case <-p.tasks:
		p.metrics.RecordQueueDrop()
		p.logger.Warn("evaluation queue full, dropped oldest pending evaluation")
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.metrics.RecordQueueDrop()
		p.logger.Warn("evaluation queue full, discarding evaluation")
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
