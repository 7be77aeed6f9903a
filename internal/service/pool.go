package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPoolCoreWorkers = 5
	defaultPoolMaxWorkers  = 10
	defaultPoolQueueSize   = 100
)

// Pool runs submitted tasks on a fixed set of core workers backed by a bounded queue.
// When the queue is full it starts burst workers up to the maximum; past that the task
// runs on the submitting goroutine, which throttles producers instead of dropping work.
type Pool struct {
	tasks  chan func()
	burst  *semaphore.Weighted
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(coreWorkers, maxWorkers, queueSize int, logger *zap.Logger) (*Pool, error) {
	if coreWorkers <= 0 {
		coreWorkers = defaultPoolCoreWorkers
	}
	if maxWorkers <= 0 {
		maxWorkers = defaultPoolMaxWorkers
	}
	if maxWorkers < coreWorkers {
		return nil, fmt.Errorf("max workers (%d) must be >= core workers (%d)", maxWorkers, coreWorkers)
	}
	if queueSize <= 0 {
		queueSize = defaultPoolQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		tasks:  make(chan func(), queueSize),
		burst:  semaphore.NewWeighted(int64(maxWorkers - coreWorkers)),
		logger: logger,
	}

	p.wg.Add(coreWorkers)
	for i := 0; i < coreWorkers; i++ {
		go p.coreWorker()
	}
	return p, nil
}

// Submit schedules task and reports whether it ran inline on the caller.
func (p *Pool) Submit(task func()) bool {
	if task == nil {
		return false
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.run(task)
		return true
	}

	select {
	case p.tasks <- task:
		p.mu.RUnlock()
		return false
	default:
	}

	if p.burst.TryAcquire(1) {
		p.wg.Add(1)
		p.mu.RUnlock()
		go p.burstWorker(task)
		return false
	}
	p.mu.RUnlock()

	p.run(task)
	return true
}

// Shutdown stops accepting queued work and waits for in-flight and queued tasks.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown interrupted: %w", ctx.Err())
	}
}

func (p *Pool) coreWorker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// burstWorker exits as soon as the queue is drained.
func (p *Pool) burstWorker(first func()) {
	defer p.wg.Done()
	defer p.burst.Release(1)

	p.run(first)
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
		default:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("async task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
