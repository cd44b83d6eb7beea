// Package taskstore records the state of asynchronous tasks.
//
// A task moves PENDING -> IN_PROGRESS -> SUCCESS|FAILURE, or straight from
// PENDING to FAILURE. Claim is the only way into IN_PROGRESS and succeeds for
// at most one caller, so several workers (or processes, with the Redis
// implementation) can race on the same id without running it twice.
package taskstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okian/checkin/internal/domain/model"
)

// Store is the durable task state machine.
type Store interface {
	// Create persists a new PENDING task.
	Create(ctx context.Context, t model.Task) error

	// Get returns the task or model.ErrTaskNotFound.
	Get(ctx context.Context, id string) (model.Task, error)

	// Claim moves a PENDING task to IN_PROGRESS. The bool is false when the
	// task was not PENDING, including when another worker won the race.
	Claim(ctx context.Context, id string, now time.Time) (model.Task, bool, error)

	// Complete moves an IN_PROGRESS task to SUCCESS with result.
	Complete(ctx context.Context, id string, result json.RawMessage) error

	// Fail moves a non-terminal task to FAILURE with reason.
	Fail(ctx context.Context, id, reason string) error

	// Stale lists IN_PROGRESS tasks claimed before claimedBefore.
	Stale(ctx context.Context, claimedBefore time.Time) ([]string, error)

	// Pending lists up to limit PENDING tasks created before createdBefore, oldest first.
	Pending(ctx context.Context, createdBefore time.Time, limit int) ([]string, error)
}

// claim applies the PENDING -> IN_PROGRESS transition in place.
func claim(t *model.Task, now time.Time) bool {
	if t.Status != model.TaskPending {
		return false
	}
	t.Status = model.TaskInProgress
	t.ClaimedAt = now
	t.UpdatedAt = now
	return true
}

// complete applies the IN_PROGRESS -> SUCCESS transition in place.
func complete(t *model.Task, result json.RawMessage, now time.Time) error {
	switch {
	case t.Status.Terminal():
		return ErrTaskFinished
	case t.Status != model.TaskInProgress:
		return ErrNotClaimed
	}
	t.Status = model.TaskSuccess
	t.Result = result
	t.Error = ""
	t.UpdatedAt = now
	return nil
}

// fail applies the transition to FAILURE in place.
func fail(t *model.Task, reason string, now time.Time) error {
	if t.Status.Terminal() {
		return ErrTaskFinished
	}
	if reason == "" {
		reason = "task failed"
	}
	t.Status = model.TaskFailure
	t.Error = reason
	t.Result = nil
	t.UpdatedAt = now
	return nil
}
