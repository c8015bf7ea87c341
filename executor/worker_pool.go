package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"codesandbox/metrics"
	"codesandbox/model"
)

// Handler executes one request end to end.
type Handler func(ctx context.Context, req model.ExecutionRequest) model.ExecutionResponse

type job struct {
	ctx    context.Context
	req    model.ExecutionRequest
	result chan jobResult
}

type jobResult struct {
	resp model.ExecutionResponse
	err  error
}

// WorkerPool bounds how many requests execute at once and how many may wait.
type WorkerPool struct {
	jobs         chan job
	handler      Handler
	logger       *zap.Logger
	maxWorkers   int
	maxJobCount  int
	wg           sync.WaitGroup
	shutdownChan chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts maxWorkers workers that feed queued jobs to handler.
func NewWorkerPool(maxWorkers, maxJobCount int, handler Handler, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxJobCount < 0 {
		maxJobCount = 0
	}

	pool := &WorkerPool{
		jobs:         make(chan job, maxJobCount),
		handler:      handler,
		logger:       logger,
		maxWorkers:   maxWorkers,
		maxJobCount:  maxJobCount,
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i + 1)
	}
	logger.Info("worker pool started", zap.Int("workers", maxWorkers), zap.Int("queue_size", maxJobCount))
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			metrics.QueueDepth.Dec()
			p.executeJob(id, j)
		case <-p.shutdownChan:
			p.logger.Debug("worker received shutdown signal", zap.Int("worker", id))
			return
		}
	}
}

func (p *WorkerPool) executeJob(workerID int, j job) {
	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: err}
		return
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	start := time.Now()
	resp := p.handler(j.ctx, j.req)
	p.logger.Debug("job finished",
		zap.Int("worker", workerID),
		zap.String("status", resp.Status.String()),
		zap.Duration("duration", time.Since(start)))
	j.result <- jobResult{resp: resp}
}

// Submit queues req and waits for its response. It fails fast with
// ErrQueueFull when no slot is free and ErrPoolClosed after Shutdown.
func (p *WorkerPool) Submit(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResponse, error) {
	result := make(chan jobResult, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return model.ExecutionResponse{}, ErrPoolClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, result: result}:
		metrics.QueueDepth.Inc()
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		p.logger.Warn("job queue full", zap.Int("capacity", p.maxJobCount))
		return model.ExecutionResponse{}, ErrQueueFull
	}

	select {
	case r := <-result:
		return r.resp, r.err
	case <-ctx.Done():
		return model.ExecutionResponse{}, ctx.Err()
	}
}

// Shutdown stops accepting jobs, waits for running jobs and fails whatever
// was still queued with ErrPoolClosed.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("shutting down worker pool")
	close(p.shutdownChan)
	p.wg.Wait()

	for {
		select {
		case j := <-p.jobs:
			metrics.QueueDepth.Dec()
			j.result <- jobResult{err: ErrPoolClosed}
		default:
			p.logger.Info("worker pool shutdown complete")
			return
		}
	}
}
