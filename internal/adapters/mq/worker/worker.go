// Package worker runs asynchronous tasks pulled off the queue.
//
// A worker claims the task in the task store before running it, so an id
// delivered twice (requeued by the watchdog, or raced by another process)
// executes at most once.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultTaskTimeout      = 30 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Handler executes one task kind and returns the JSON result stored on success.
type Handler func(ctx context.Context, task model.Task) (json.RawMessage, error)

// Handlers maps task kinds to their handler.
type Handlers map[model.TaskKind]Handler

// Queue defines how workers receive task ids.
type Queue interface {
	Dequeue(ctx context.Context) <-chan string
}

// Store is the part of the task store workers drive.
type Store interface {
	Claim(ctx context.Context, id string, now time.Time) (model.Task, bool, error)
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Fail(ctx context.Context, id, reason string) error
}

// Worker processes task ids until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker after the task in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	store    Store
	handlers Handlers
	name     string
	timeout  time.Duration
	now      func() time.Time

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, store Store, handlers Handlers, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		store:    store,
		handlers: handlers,
		name:     "worker",
		timeout:  defaultTaskTimeout,
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ids := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			if err := w.process(ctx, id); err != nil {
				w.logger.Error(ctx, "error processing task", logger.String("task_id", id), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process claims and runs a single task.
func (w *InMemoryWorker) process(ctx context.Context, id string) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	task, claimed, err := w.store.Claim(ctx, id, w.now())
	if err != nil {
		metrics.RecordErrorByComponent("worker", "claim_error")
		return fmt.Errorf("claim task %s: %w", id, err)
	}
	if !claimed {
		// Already taken by another worker or already terminal.
		metrics.RecordWorkerClaimLost()
		return nil
	}

	metrics.WorkerBusy(1)
	defer metrics.WorkerBusy(-1)

	// Terminal writes must land even when ctx is being cancelled.
	writeCtx := context.WithoutCancel(ctx)

	handler, ok := w.handlers[task.Kind]
	if !ok {
		metrics.RecordTaskFinished(string(task.Kind), string(model.TaskFailure), msSince(start))
		return w.fail(writeCtx, task, ErrUnknownKind.Error()+": "+string(task.Kind))
	}

	result, err := w.run(ctx, handler, task)
	if err != nil {
		metrics.RecordTaskFinished(string(task.Kind), string(model.TaskFailure), msSince(start))
		return w.fail(writeCtx, task, err.Error())
	}

	if err := w.store.Complete(writeCtx, task.ID, result); err != nil {
		if errors.Is(err, model.ErrTaskFinished) {
			// The watchdog failed it first; its verdict stands.
			w.logger.Warn(ctx, "task finished before completion was recorded", logger.String("task_id", task.ID))
			return nil
		}
		metrics.RecordErrorByComponent("worker", "complete_error")
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	metrics.RecordTaskFinished(string(task.Kind), string(model.TaskSuccess), msSince(start))
	w.logger.Debug(ctx, "task completed", logger.String("task_id", task.ID), logger.String("kind", string(task.Kind)))
	return nil
}

// run calls the handler under the per-task timeout and turns panics into errors.
func (w *InMemoryWorker) run(ctx context.Context, handler Handler, task model.Task) (result json.RawMessage, err error) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			w.logger.Error(ctx, "task handler panicked", logger.String("task_id", task.ID), logger.Any("panic", r))
			result, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return handler(runCtx, task)
}

func (w *InMemoryWorker) fail(ctx context.Context, task model.Task, reason string) error {
	if err := w.store.Fail(ctx, task.ID, reason); err != nil && !errors.Is(err, model.ErrTaskFinished) {
		metrics.RecordErrorByComponent("worker", "fail_error")
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	w.logger.Warn(ctx, "task failed",
		logger.String("task_id", task.ID),
		logger.String("kind", string(task.Kind)),
		logger.String("reason", reason),
	)
	return nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. Options apply to every worker.
func NewPool(workerCount int, queue Queue, store Store, handlers Handlers, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, store, handlers, workerOpts...)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new ids
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ErrStopTimeout)
	}
	return nil
}
