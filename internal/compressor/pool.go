package compressor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/pkg/metrics"
)

var (
	// ErrPoolBusy is returned when the worker pool is at capacity
	ErrPoolBusy = errors.New("worker pool is busy, please retry later")
	// ErrPoolStopped is returned when submitting to a stopped pool
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Job represents a compression job
type Job struct {
	Name   string
	Data   []byte
	ctx    context.Context
	result chan<- jobResult
}

type jobResult struct {
	res *Result
	err error
}

// File is one named input of a batch
type File struct {
	Name string
	Data []byte
}

// BatchItem is the outcome of one batch input. Err is set instead of Result
// when that input failed; other items are unaffected.
type BatchItem struct {
	Name   string
	Result *Result
	Err    error
}

// WorkerPool runs compressions on a fixed number of goroutines
type WorkerPool struct {
	compressor *Compressor
	jobs       chan Job
	workers    int
	active     atomic.Int32
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	mu         sync.RWMutex
	stopped    bool
	logger     *zap.Logger
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(c *Compressor, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		compressor: c,
		jobs:       make(chan Job, workers*2), // Buffered channel
		workers:    workers,
		logger:     c.logger,
	}
}

// Start starts the worker pool goroutines
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", zap.Int("workers", p.workers))
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// worker processes jobs from the job channel
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.active.Add(1)
		p.updateMetrics()

		res, err := p.compressor.Compress(job.ctx, job.Name, job.Data)

		p.active.Add(-1)
		p.updateMetrics()

		// Send result (non-blocking in case receiver is gone)
		select {
		case job.result <- jobResult{res: res, err: err}:
		default:
			p.logger.Warn("result channel full or closed", zap.Int("worker", id), zap.String("name", job.Name))
		}
	}
}

func (p *WorkerPool) updateMetrics() {
	metrics.UpdateWorkerPoolMetrics(len(p.jobs), int(p.active.Load()))
}

// Submit queues a compression and waits for its result.
// Returns ErrPoolBusy if the queue is full
func (p *WorkerPool) Submit(ctx context.Context, name string, data []byte) (*Result, error) {
	return p.submit(ctx, name, data, false)
}

// SubmitWait is Submit that waits for a free queue slot instead of
// returning ErrPoolBusy. Only ctx bounds the wait.
func (p *WorkerPool) SubmitWait(ctx context.Context, name string, data []byte) (*Result, error) {
	return p.submit(ctx, name, data, true)
}

func (p *WorkerPool) submit(ctx context.Context, name string, data []byte, wait bool) (*Result, error) {
	p.Start()

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}

	resultChan := make(chan jobResult, 1)
	job := Job{Name: name, Data: data, ctx: ctx, result: resultChan}

	if err := p.enqueue(ctx, job, wait); err != nil {
		p.mu.RUnlock()
		return nil, err
	}
	p.mu.RUnlock()
	p.updateMetrics()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultChan:
		return r.res, r.err
	}
}

// enqueue must be called with p.mu read-locked so Stop cannot close the
// channel under a pending send.
func (p *WorkerPool) enqueue(ctx context.Context, job Job, wait bool) error {
	if wait {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.jobs <- job:
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolBusy
	}
}

// SubmitWithRetry submits a job, backing off exponentially while the pool
// is busy. Any other error ends the retries immediately.
func (p *WorkerPool) SubmitWithRetry(ctx context.Context, name string, data []byte, maxRetries int) (*Result, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	var res *Result
	op := func() error {
		r, err := p.Submit(ctx, name, data)
		if errors.Is(err, ErrPoolBusy) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return res, nil
}

// CompressBatch compresses every file through the pool and returns one item
// per input, in input order. Items wait for queue space rather than failing
// with ErrPoolBusy, so only ctx or the file itself can fail an item.
func (p *WorkerPool) CompressBatch(ctx context.Context, files []File) []BatchItem {
	items := make([]BatchItem, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			res, err := p.SubmitWait(ctx, f.Name, f.Data)
			items[i] = BatchItem{Name: f.Name, Result: res, Err: err}
		}(i, f)
	}
	wg.Wait()
	return items
}

// Stop gracefully shuts down the worker pool
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// Stats returns the number of queued jobs and the number being processed
func (p *WorkerPool) Stats() (queued, active int) {
	return len(p.jobs), int(p.active.Load())
}
