package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/metrics"
)

const (
	defaultKeyPrefix = "checkin:"
	defaultTaskTTL   = 24 * time.Hour
	maxTxRetries     = 5
)

// RedisStore keeps each task as a JSON value and indexes the PENDING and
// IN_PROGRESS sets in sorted sets scored by unix milliseconds. Transitions
// use WATCH/MULTI so concurrent processes claim a task at most once.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    defaultTaskTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) taskKey(id string) string { return s.prefix + "task:" + id }
func (s *RedisStore) pendingKey() string       { return s.prefix + "tasks:pending" }
func (s *RedisStore) inflightKey() string      { return s.prefix + "tasks:inflight" }

func unavailable(op string, err error) error {
	metrics.RecordStorageError(op)
	return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
}

func millis(t time.Time) float64 { return float64(t.UnixMilli()) }

// Create implements Store.Create.
func (s *RedisStore) Create(ctx context.Context, t model.Task) error {
	const op = "taskstore.redis.Create"

	data, err := sonic.Marshal(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return unavailable(op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrDuplicateID)
	}
	if err := s.client.ZAdd(ctx, s.pendingKey(), redis.Z{Score: millis(t.CreatedAt), Member: t.ID}).Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func decode(raw []byte) (model.Task, error) {
	var t model.Task
	err := sonic.Unmarshal(raw, &t)
	return t, err
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Task, error) {
	const op = "taskstore.redis.Get"

	raw, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Task{}, fmt.Errorf("%s: %w", op, model.ErrTaskNotFound)
		}
		return model.Task{}, unavailable(op, err)
	}
	t, err := decode(raw)
	if err != nil {
		return model.Task{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// transact reads the task under WATCH, lets fn mutate it and writes it back
// in a MULTI block together with the index updates fn queues.
func (s *RedisStore) transact(ctx context.Context, op, id string, fn func(t *model.Task, p redis.Pipeliner) (bool, error)) (model.Task, bool, error) {
	key := s.taskKey(id)
	var (
		result  model.Task
		written bool
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		t, err := decode(raw)
		if err != nil {
			return err
		}
		result, written = t, false

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			changed, err := fn(&t, p)
			if err != nil || !changed {
				return err
			}
			data, err := sonic.Marshal(t)
			if err != nil {
				return err
			}
			ttl := time.Duration(0)
			if t.Status.Terminal() {
				ttl = s.ttl
			}
			p.Set(ctx, key, data, ttl)
			result, written = t, true
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, written, nil
		case errors.Is(err, redis.TxFailedErr):
			// Another writer touched the key; read again.
			continue
		case errors.Is(err, redis.Nil):
			return model.Task{}, false, fmt.Errorf("%s: %w", op, model.ErrTaskNotFound)
		case errors.Is(err, model.ErrConflict):
			return result, false, fmt.Errorf("%s: %w", op, err)
		default:
			return model.Task{}, false, unavailable(op, err)
		}
	}
	return model.Task{}, false, fmt.Errorf("%s: %w: too much contention", op, model.ErrUnavailable)
}

// Claim implements Store.Claim.
func (s *RedisStore) Claim(ctx context.Context, id string, now time.Time) (model.Task, bool, error) {
	const op = "taskstore.redis.Claim"

	return s.transact(ctx, op, id, func(t *model.Task, p redis.Pipeliner) (bool, error) {
		if !claim(t, now) {
			return false, nil
		}
		p.ZRem(ctx, s.pendingKey(), id)
		p.ZAdd(ctx, s.inflightKey(), redis.Z{Score: millis(now), Member: id})
		return true, nil
	})
}

// Complete implements Store.Complete.
func (s *RedisStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	const op = "taskstore.redis.Complete"

	_, _, err := s.transact(ctx, op, id, func(t *model.Task, p redis.Pipeliner) (bool, error) {
		if err := complete(t, result, s.now()); err != nil {
			return false, err
		}
		p.ZRem(ctx, s.inflightKey(), id)
		return true, nil
	})
	return err
}

// Fail implements Store.Fail.
func (s *RedisStore) Fail(ctx context.Context, id, reason string) error {
	const op = "taskstore.redis.Fail"

	_, _, err := s.transact(ctx, op, id, func(t *model.Task, p redis.Pipeliner) (bool, error) {
		if err := fail(t, reason, s.now()); err != nil {
			return false, err
		}
		p.ZRem(ctx, s.pendingKey(), id)
		p.ZRem(ctx, s.inflightKey(), id)
		return true, nil
	})
	return err
}

// Stale implements Store.Stale.
func (s *RedisStore) Stale(ctx context.Context, claimedBefore time.Time) ([]string, error) {
	const op = "taskstore.redis.Stale"

	ids, err := s.client.ZRangeByScore(ctx, s.inflightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(claimedBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	return ids, nil
}

// Pending implements Store.Pending.
func (s *RedisStore) Pending(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	const op = "taskstore.redis.Pending"

	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(createdBefore.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(), by).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	return ids, nil
}
