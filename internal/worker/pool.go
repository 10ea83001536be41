// Package worker runs background tasks on a fixed set of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the queue cannot take another task.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrNotRunning is returned when submitting to a stopped pool.
	ErrNotRunning = errors.New("worker pool is not running")
)

// Task is a unit of background work. The context is cancelled when the pool stops.
type Task func(ctx context.Context) error

// Config sizes the pool.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns the default pool sizing.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256}
}

type job struct {
	name string
	task Task
}

// Pool executes submitted tasks with bounded concurrency and backpressure.
type Pool struct {
	config Config
	logger *zap.Logger

	jobs      chan job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPool creates a stopped pool.
func NewPool(config Config, logger *zap.Logger) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		config: config,
		logger: logger,
		jobs:   make(chan job, config.QueueSize),
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
}

// Stop cancels running tasks, discards queued ones and waits for the workers
// until ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		for range p.jobs {
			p.pending.Done()
		}
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return ErrNotRunning
	}

	p.pending.Add(1)
	select {
	case p.jobs <- job{name: name, task: task}:
		p.logger.Debug("Task submitted", zap.String("task", name))
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every submitted task has finished or been discarded.
func (p *Pool) Wait() {
	p.pending.Wait()
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, j, workerID)
		}
	}
}

func (p *Pool) run(ctx context.Context, j job, workerID int) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				zap.Int("worker_id", workerID),
				zap.String("task", j.name),
				zap.Any("panic", r),
			)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	if err := j.task(ctx); err != nil {
		p.logger.Warn("Task failed",
			zap.Int("worker_id", workerID),
			zap.String("task", j.name),
			zap.Error(err),
		)
	}
}
