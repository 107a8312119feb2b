package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("worker pool stopped")

// Job is one dispatched mutation. Once accepted it runs to completion; there
// is no way to abort it.
type Job struct {
	Name   string
	TaskID string
	Run    func(ctx context.Context) error
}

type Pool struct {
	logger *zap.Logger
	count  int
	jobs   chan Job
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPool(logger *zap.Logger, count, queueSize int) *Pool {
	if count <= 0 {
		count = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		logger: logger,
		count:  count,
		jobs:   make(chan Job, queueSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("workers", p.count))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop refuses new jobs, lets the queued ones finish and waits for the
// workers to exit.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")

	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Submit queues job, blocking while the queue is full.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}
	p.jobs <- job
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	start := time.Now()
	err := job.Run(context.WithoutCancel(ctx))
	if err != nil {
		p.logger.Warn("job failed",
			zap.Int("worker", workerID),
			zap.String("job", job.Name),
			zap.String("task_id", job.TaskID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("job completed",
		zap.Int("worker", workerID),
		zap.String("job", job.Name),
		zap.String("task_id", job.TaskID),
		zap.Duration("took", time.Since(start)),
	)
}
