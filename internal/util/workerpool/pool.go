// Package workerpool bounds the number of concurrently executing queries.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Job is one unit of work; it runs on a pool worker.
type Job func(ctx context.Context) error

type task struct {
	ctx  context.Context
	job  Job
	done chan error
}

// Pool executes jobs on a fixed set of workers with a bounded queue. Do is
// synchronous: the caller blocks until its job finished or the pool stopped.
// A full queue or an already canceled context rejects the job at once; Do
// never waits for a queue slot.
type Pool struct {
	workers   int
	queue     chan task
	logger    *zap.Logger
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopChan  chan struct{}
	active    atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New starts a pool with the given worker count and queue size.
func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		workers:  workers,
		queue:    make(chan task, queueSize),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	logger.Info("query worker pool started",
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize))
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case t := <-p.queue:
			p.active.Add(1)
			err := p.run(t)
			p.active.Add(-1)
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			t.done <- err
		}
	}
}

func (p *Pool) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query job panicked: %v", r)
			p.logger.Error("query job panic recovered", zap.Any("panic", r))
		}
	}()
	if err := t.ctx.Err(); err != nil {
		return err
	}
	return t.job(t.ctx)
}

// Do runs job on a pool worker and returns its error. It fails fast when the
// pool is stopped or the queue is full.
func (p *Pool) Do(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		p.rejected.Add(1)
		return err
	}
	t := task{ctx: ctx, job: job, done: make(chan error, 1)}

	select {
	case <-p.stopChan:
		p.rejected.Add(1)
		return fmt.Errorf("worker pool is stopped")
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	case p.queue <- t:
	default:
		p.rejected.Add(1)
		return fmt.Errorf("query queue is full")
	}

	select {
	case err := <-t.done:
		return err
	case <-p.stopChan:
		// The job may already be running; its result channel is buffered so
		// the worker never blocks on it.
		p.rejected.Add(1)
		return fmt.Errorf("worker pool is stopped")
	}
}

// Stop makes workers finish their current job and exit. Callers still queued
// unblock with an error.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.logger.Info("query worker pool stopped")
	})
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int
	Active    int
	Queued    int
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
