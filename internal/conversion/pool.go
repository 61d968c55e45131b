package conversion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"mediaconv/internal/logging"
)

// ErrPoolClosed is returned by Submit once the pool is stopping.
var ErrPoolClosed = errors.New("conversion pool closed")

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type job struct {
	ctx  context.Context
	req  Request
	done chan Result
}

// Pool bounds how many conversions run at once. Requests beyond the worker
// count wait in a fixed-size queue; Submit blocks while the queue is full.
type Pool struct {
	converter Converter
	workers   int
	jobs      chan job
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	stopWatch func() bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool. Values below 1 fall back to one worker and an
// unbuffered queue.
func NewPool(converter Converter, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		converter: converter,
		workers:   workers,
		jobs:      make(chan job, queueSize),
		logger:    logging.NewComponentLogger(logger, "pool"),
	}
}

// Start launches the workers. Cancelling ctx stops the pool and cancels
// in-flight conversions.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
		p.stopWatch = context.AfterFunc(ctx, p.close)
		p.logger.Info("conversion pool started",
			logging.Int("workers", p.workers),
			logging.Int("queue_size", cap(p.jobs)),
		)
	})
}

// Submit queues req and waits for its result. It returns ErrPoolClosed when
// the pool is stopping, or ctx.Err() if the caller gives up first.
func (p *Pool) Submit(ctx context.Context, req Request) (Result, error) {
	j := job{ctx: ctx, req: req, done: make(chan Result, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Result{}, ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return Result{}, ctx.Err()
	}

	select {
	case res := <-j.done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop refuses new work, lets queued conversions drain, and waits for the
// workers to exit.
func (p *Pool) Stop() {
	p.close()
	p.wg.Wait()
	if p.stopWatch != nil {
		p.stopWatch()
	}
}

// Stats reports current pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Queued:    len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		if j.ctx.Err() != nil {
			continue
		}
		p.run(ctx, id, j)
	}
}

func (p *Pool) run(poolCtx context.Context, id int, j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	p.active.Add(1)
	defer p.active.Add(-1)

	res := p.convert(ctx, id, j.req)
	if res.Succeeded() {
		p.completed.Add(1)
	} else {
		p.failed.Add(1)
	}
	j.done <- res
}

func (p *Pool) convert(ctx context.Context, id int, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "conversion panicked", "conversion_panic",
				logging.Int("worker", id),
				logging.Any("panic", r),
			)
			res = Result{
				Status: StatusFailure,
				Kind:   req.Kind,
				Error:  "internal error",
				Err:    errors.New("conversion panicked"),
			}
		}
	}()
	return p.converter.Convert(ctx, req)
}
