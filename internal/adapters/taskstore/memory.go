package taskstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/okian/checkin/internal/domain/model"
)

// MemoryStore keeps tasks in a map. All transitions happen under one mutex.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]model.Task
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]model.Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return ErrDuplicateID
	}
	s.tasks[t.ID] = t
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, model.ErrTaskNotFound
	}
	return t, nil
}

// Claim implements Store.Claim.
func (s *MemoryStore) Claim(_ context.Context, id string, now time.Time) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false, model.ErrTaskNotFound
	}
	if !claim(&t, now) {
		return t, false, nil
	}
	s.tasks[id] = t
	return t, true, nil
}

// Complete implements Store.Complete.
func (s *MemoryStore) Complete(_ context.Context, id string, result json.RawMessage) error {
	return s.update(id, func(t *model.Task) error {
		return complete(t, result, s.now())
	})
}

// Fail implements Store.Fail.
func (s *MemoryStore) Fail(_ context.Context, id, reason string) error {
	return s.update(id, func(t *model.Task) error {
		return fail(t, reason, s.now())
	})
}

func (s *MemoryStore) update(id string, fn func(*model.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.ErrTaskNotFound
	}
	if err := fn(&t); err != nil {
		return err
	}
	s.tasks[id] = t
	return nil
}

// Stale implements Store.Stale.
func (s *MemoryStore) Stale(_ context.Context, claimedBefore time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, t := range s.tasks {
		if t.Status == model.TaskInProgress && t.ClaimedAt.Before(claimedBefore) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Pending implements Store.Pending.
func (s *MemoryStore) Pending(_ context.Context, createdBefore time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	pending := make([]model.Task, 0)
	for _, t := range s.tasks {
		if t.Status == model.TaskPending && t.CreatedAt.Before(createdBefore) {
			pending = append(pending, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]string, len(pending))
	for i, t := range pending {
		out[i] = t.ID
	}
	return out, nil
}

// Evict drops terminal tasks last updated before finishedBefore and returns
// how many were removed.
func (s *MemoryStore) Evict(_ context.Context, finishedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(finishedBefore) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored tasks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
