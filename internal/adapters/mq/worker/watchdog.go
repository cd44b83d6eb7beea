package worker

import (
	"context"
	"errors"
	"time"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

const (
	defaultWatchdogInterval = 5 * time.Second
	defaultRequeueAfter     = 10 * time.Second
	requeueBatch            = 500
)

// TaskScanner is the part of the task store the watchdog reads and writes.
type TaskScanner interface {
	Stale(ctx context.Context, claimedBefore time.Time) ([]string, error)
	Pending(ctx context.Context, createdBefore time.Time, limit int) ([]string, error)
	Fail(ctx context.Context, id, reason string) error
}

// Evicter is implemented by task stores that keep finished tasks until told
// to drop them.
type Evicter interface {
	Evict(ctx context.Context, finishedBefore time.Time) (int, error)
}

// Enqueuer offers ids to the workers without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string) bool
}

// Watchdog fails tasks stuck IN_PROGRESS and re-offers PENDING tasks the
// queue refused or dropped.
type Watchdog struct {
	store        TaskScanner
	queue        Enqueuer
	interval     time.Duration
	staleAfter   time.Duration
	requeueAfter time.Duration
	retention    time.Duration // zero keeps finished tasks
	now          func() time.Time
	logger       logger.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// NewWatchdog creates a watchdog over store and queue.
func NewWatchdog(store TaskScanner, queue Enqueuer, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		store:        store,
		queue:        queue,
		interval:     defaultWatchdogInterval,
		staleAfter:   defaultTaskTimeout,
		requeueAfter: defaultRequeueAfter,
		now:          time.Now,
		logger:       logger.Get().Named("watchdog"),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps every interval until ctx is done or Shutdown is called.
func (w *Watchdog) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-ticker.C:
			if _, _, err := w.Sweep(ctx); err != nil {
				w.logger.Error(ctx, "watchdog sweep failed", logger.Error(err))
			}
		}
	}
}

// Sweep runs one pass and reports how many tasks were failed and re-offered.
func (w *Watchdog) Sweep(ctx context.Context) (failed, requeued int, err error) {
	now := w.now()

	stale, err := w.store.Stale(ctx, now.Add(-w.staleAfter))
	if err != nil {
		metrics.RecordWatchdogSweep(true)
		return 0, 0, err
	}
	for _, id := range stale {
		if err := w.store.Fail(ctx, id, "task timed out"); err != nil {
			if errors.Is(err, model.ErrTaskFinished) {
				continue
			}
			w.logger.Error(ctx, "failed to time out task", logger.String("task_id", id), logger.Error(err))
			continue
		}
		failed++
		metrics.RecordTaskTimedOut()
		w.logger.Warn(ctx, "task timed out", logger.String("task_id", id))
	}

	pending, err := w.store.Pending(ctx, now.Add(-w.requeueAfter), requeueBatch)
	if err != nil {
		metrics.RecordWatchdogSweep(true)
		return failed, 0, err
	}
	for _, id := range pending {
		if !w.queue.Enqueue(ctx, id) {
			// Still full; the next sweep tries again.
			break
		}
		requeued++
		metrics.RecordTaskRequeued()
	}

	evicted, err := w.evict(ctx, now)
	if err != nil {
		metrics.RecordWatchdogSweep(true)
		return failed, requeued, err
	}

	metrics.RecordWatchdogSweep(false)
	if failed > 0 || requeued > 0 || evicted > 0 {
		w.logger.Info(ctx, "watchdog sweep",
			logger.Int("timed_out", failed),
			logger.Int("requeued", requeued),
			logger.Int("evicted", evicted),
		)
	}
	return failed, requeued, nil
}

// evict drops finished tasks older than the retention when the store keeps
// them itself.
func (w *Watchdog) evict(ctx context.Context, now time.Time) (int, error) {
	ev, ok := w.store.(Evicter)
	if !ok || w.retention <= 0 {
		return 0, nil
	}
	return ev.Evict(ctx, now.Add(-w.retention))
}

// Shutdown stops the sweep loop.
func (w *Watchdog) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
