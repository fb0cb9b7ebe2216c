package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

type job struct {
	id   string
	fn   Func
	done chan<- outcome
}

type outcome struct {
	result any
	err    error
}

// Pool runs submitted tasks on a fixed number of workers with a bounded
// backlog. Started tasks always run to completion.
type Pool struct {
	jobs      chan job
	workers   int
	publisher Publisher
	inFlight  Gauge
	logger    *slog.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithInFlightGauge reports the number of executing tasks.
func WithInFlightGauge(g Gauge) PoolOption {
	return func(p *Pool) { p.inFlight = g }
}

// NewPool creates a pool. queueSize bounds the tasks waiting for a worker.
func NewPool(workers, queueSize int, publisher Publisher, logger *slog.Logger, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:      make(chan job, queueSize),
		workers:   workers,
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Tasks run with a context detached from ctx's
// cancellation so in-flight work is never abandoned.
func (p *Pool) Start(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}
	p.logger.Info("task pool started", slog.Int("workers", p.workers), slog.Int("queue_size", cap(p.jobs)))
}

// Submit enqueues fn and returns its task id. It never blocks: a full
// backlog yields ErrQueueFull.
func (p *Pool) Submit(fn Func) (string, error) {
	return p.enqueue(fn, nil)
}

// Do runs fn on the pool and waits for its outcome. The task is admitted
// like Submit and is not cancelled by ctx: when ctx is done first Do returns
// ctx.Err() while the task runs to completion.
func (p *Pool) Do(ctx context.Context, fn Func) (any, error) {
	done := make(chan outcome, 1)
	if _, err := p.enqueue(fn, done); err != nil {
		return nil, err
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) enqueue(fn Func, done chan<- outcome) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return "", ErrPoolClosed
	}

	id := uuid.NewString()
	select {
	case p.jobs <- job{id: id, fn: fn, done: done}:
	default:
		return "", ErrQueueFull
	}

	p.publisher.Publish(Event{TaskID: id, State: StateQueued, Message: "queued"})
	return id, nil
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(ctx, j)
	}
}

func (p *Pool) run(ctx context.Context, j job) {
	if p.inFlight != nil {
		p.inFlight.Inc()
		defer p.inFlight.Dec()
	}

	logger := p.logger.With(slog.String("task_id", j.id))
	ctx = applog.WithContext(ctx, logger)
	report := func(progress int, msg string) {
		p.publisher.Publish(Event{TaskID: j.id, State: StateProcessing, Progress: progress, Message: msg})
	}
	report(0, "started")

	result, err := p.execute(ctx, j.fn, report)
	if j.done != nil {
		j.done <- outcome{result: result, err: err}
	}
	if err != nil {
		logger.Warn("task failed", slog.Any("error", err))
		p.publisher.Publish(Event{
			TaskID:    j.id,
			State:     StateFailed,
			Message:   "failed",
			ErrorKind: statement.KindOf(err),
			Error:     err.Error(),
		})
		return
	}

	p.publisher.Publish(Event{TaskID: j.id, State: StateCompleted, Progress: 100, Message: "done", Result: result})
}

func (p *Pool) execute(ctx context.Context, fn Func, report ReportFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &statement.ProcessingError{Stage: "task", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn(ctx, report)
}

// Stop rejects new work and waits until queued and running tasks finish or
// ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
