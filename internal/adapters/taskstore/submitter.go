package taskstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

// Enqueuer offers task ids to the workers without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string) bool
}

// Submitter persists new tasks and hands their ids to the queue.
type Submitter struct {
	store  Store
	queue  Enqueuer
	now    func() time.Time
	logger logger.Logger
}

// NewSubmitter creates a submitter over store and queue.
func NewSubmitter(store Store, queue Enqueuer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		store:  store,
		queue:  queue,
		now:    time.Now,
		logger: logger.Get().Named("submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a PENDING task and returns its id. If the queue is full the
// task stays PENDING and the watchdog offers it again later.
func (s *Submitter) Submit(ctx context.Context, kind model.TaskKind, payload any) (string, error) {
	const op = "taskstore.Submit"

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, model.ErrInvalidInput, err)
	}

	now := s.now()
	t := model.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    model.TaskPending,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordTaskSubmitted(string(kind))

	if !s.queue.Enqueue(ctx, t.ID) {
		s.logger.Warn(ctx, "queue refused task, leaving it for the watchdog",
			logger.String("task_id", t.ID),
			logger.String("kind", string(kind)),
		)
	}
	return t.ID, nil
}
