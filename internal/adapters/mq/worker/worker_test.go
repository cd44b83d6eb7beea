package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/checkin/internal/adapters/mq/queue"
	worker "github.com/okian/checkin/internal/adapters/mq/worker"
	"github.com/okian/checkin/internal/adapters/taskstore"
	model "github.com/okian/checkin/internal/domain/model"
	logging "github.com/okian/checkin/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const (
	kindEcho  model.TaskKind = "echo"
	kindBoom  model.TaskKind = "boom"
	kindPanic model.TaskKind = "panic"
	kindSlow  model.TaskKind = "slow"
)

func testHandlers(calls *atomic.Int64) worker.Handlers {
	return worker.Handlers{
		kindEcho: func(_ context.Context, task model.Task) (json.RawMessage, error) {
			calls.Add(1)
			return task.Payload, nil
		},
		kindBoom: func(context.Context, model.Task) (json.RawMessage, error) {
			return nil, errors.New("provisioning failed")
		},
		kindPanic: func(context.Context, model.Task) (json.RawMessage, error) {
			panic("kaboom")
		},
		kindSlow: func(ctx context.Context, _ model.Task) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func submit(store *taskstore.MemoryStore, q *queue.InMemoryQueue, id string, kind model.TaskKind) {
	now := time.Now()
	_ = store.Create(context.Background(), model.Task{
		ID: id, Kind: kind, Status: model.TaskPending,
		Payload: json.RawMessage(`{"ok":true}`), CreatedAt: now, UpdatedAt: now,
	})
	q.Enqueue(context.Background(), id)
}

// waitTerminal polls until the task leaves PENDING/IN_PROGRESS or a second passes.
func waitTerminal(store *taskstore.MemoryStore, id string) model.Task {
	deadline := time.Now().Add(time.Second)
	for {
		task, _ := store.Get(context.Background(), id)
		if task.Status.Terminal() || time.Now().After(deadline) {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker over a memory task store", t, func() {
		_ = logging.Init()

		store := taskstore.NewMemoryStore()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		var calls atomic.Int64
		w := worker.NewInMemoryWorker(q, store, testHandlers(&calls),
			worker.WithName("test-worker"),
			worker.WithTaskTimeout(50*time.Millisecond),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a task succeeds", func() {
			submit(store, q, "t-echo", kindEcho)
			task := waitTerminal(store, "t-echo")

			convey.Convey("Then the handler result is stored", func() {
				convey.So(task.Status, convey.ShouldEqual, model.TaskSuccess)
				convey.So(string(task.Result), convey.ShouldEqual, `{"ok":true}`)
			})
		})

		convey.Convey("When the same id is delivered twice", func() {
			submit(store, q, "t-dup", kindEcho)
			q.Enqueue(ctx, "t-dup")
			waitTerminal(store, "t-dup")
			time.Sleep(20 * time.Millisecond)

			convey.Convey("Then the handler runs once", func() {
				convey.So(calls.Load(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the handler returns an error", func() {
			submit(store, q, "t-boom", kindBoom)
			task := waitTerminal(store, "t-boom")

			convey.Convey("Then the task fails with the error text", func() {
				convey.So(task.Status, convey.ShouldEqual, model.TaskFailure)
				convey.So(task.Error, convey.ShouldEqual, "provisioning failed")
			})
		})

		convey.Convey("When the handler panics", func() {
			submit(store, q, "t-panic", kindPanic)
			task := waitTerminal(store, "t-panic")

			convey.Convey("Then the task fails and the worker keeps running", func() {
				convey.So(task.Status, convey.ShouldEqual, model.TaskFailure)
				convey.So(task.Error, convey.ShouldContainSubstring, "kaboom")

				submit(store, q, "t-after", kindEcho)
				convey.So(waitTerminal(store, "t-after").Status, convey.ShouldEqual, model.TaskSuccess)
			})
		})

		convey.Convey("When the handler outlives the task timeout", func() {
			submit(store, q, "t-slow", kindSlow)
			task := waitTerminal(store, "t-slow")

			convey.Convey("Then it fails with the deadline", func() {
				convey.So(task.Status, convey.ShouldEqual, model.TaskFailure)
				convey.So(task.Error, convey.ShouldEqual, context.DeadlineExceeded.Error())
			})
		})

		convey.Convey("When the kind has no handler", func() {
			submit(store, q, "t-unknown", model.TaskKind("mystery"))
			task := waitTerminal(store, "t-unknown")

			convey.Convey("Then it fails as unknown", func() {
				convey.So(task.Status, convey.ShouldEqual, model.TaskFailure)
				convey.So(strings.Contains(task.Error, "unknown task kind"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should shutdown gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of four workers", t, func() {
		_ = logging.Init()

		store := taskstore.NewMemoryStore()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		var calls atomic.Int64
		pool := worker.NewPool(4, q, store, testHandlers(&calls))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		convey.Convey("When many tasks are submitted and some ids repeat", func() {
			ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
			for _, id := range ids {
				submit(store, q, id, kindEcho)
				q.Enqueue(ctx, id)
			}
			for _, id := range ids {
				waitTerminal(store, id)
			}

			convey.Convey("Then every task succeeds exactly once", func() {
				for _, id := range ids {
					task, _ := store.Get(ctx, id)
					convey.So(task.Status, convey.ShouldEqual, model.TaskSuccess)
				}
				time.Sleep(20 * time.Millisecond)
				convey.So(calls.Load(), convey.ShouldEqual, len(ids))
			})
		})

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the queue is closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
