package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/checkin/internal/adapters/mq/worker"
	"github.com/okian/checkin/internal/adapters/taskstore"
	model "github.com/okian/checkin/internal/domain/model"
	logging "github.com/okian/checkin/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingQueue struct {
	mu     sync.Mutex
	ids    []string
	refuse bool
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refuse {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

func TestWatchdog(t *testing.T) {
	convey.Convey("Given a task store with a stuck and an orphaned task", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store := taskstore.NewMemoryStore()
		for _, id := range []string{"stuck", "orphan", "fresh"} {
			created := now.Add(-time.Minute)
			if id == "fresh" {
				created = now
			}
			_ = store.Create(ctx, model.Task{ID: id, Kind: model.TaskCreateEvent, Status: model.TaskPending, CreatedAt: created})
		}
		_, _, _ = store.Claim(ctx, "stuck", now.Add(-time.Minute))

		q := &recordingQueue{}
		wd := worker.NewWatchdog(store, q,
			worker.WithStaleAfter(30*time.Second),
			worker.WithRequeueAfter(10*time.Second),
			worker.WithWatchdogClock(func() time.Time { return now }),
		)

		convey.Convey("When a sweep runs", func() {
			failed, requeued, err := wd.Sweep(ctx)

			convey.Convey("Then the stuck task times out", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(failed, convey.ShouldEqual, 1)
				task, _ := store.Get(ctx, "stuck")
				convey.So(task.Status, convey.ShouldEqual, model.TaskFailure)
				convey.So(task.Error, convey.ShouldEqual, "task timed out")
			})

			convey.Convey("Then only the old pending task is re-offered", func() {
				convey.So(requeued, convey.ShouldEqual, 1)
				convey.So(q.ids, convey.ShouldResemble, []string{"orphan"})
			})
		})

		convey.Convey("When the queue is still full", func() {
			q.refuse = true
			_, requeued, err := wd.Sweep(ctx)

			convey.Convey("Then nothing is lost and the task stays pending", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(requeued, convey.ShouldEqual, 0)
				task, _ := store.Get(ctx, "orphan")
				convey.So(task.Status, convey.ShouldEqual, model.TaskPending)
			})
		})

		convey.Convey("When the loop runs and is shut down", func() {
			runner := worker.NewWatchdog(store, q, worker.WithInterval(5*time.Millisecond))
			go runner.Run(ctx)
			time.Sleep(20 * time.Millisecond)

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then it stops cleanly", func() {
				convey.So(runner.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWatchdogRetention(t *testing.T) {
	convey.Convey("Given a memory store holding an old finished task", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		old := now.Add(-2 * time.Hour)
		store := taskstore.NewMemoryStore(taskstore.WithMemoryClock(func() time.Time { return old }))
		_ = store.Create(ctx, model.Task{ID: "done", Kind: model.TaskCreateEvent, Status: model.TaskPending, CreatedAt: old})
		_, _, _ = store.Claim(ctx, "done", old)
		_ = store.Fail(ctx, "done", "boom")
		_ = store.Create(ctx, model.Task{ID: "waiting", Kind: model.TaskCreateEvent, Status: model.TaskPending, CreatedAt: now})

		clock := worker.WithWatchdogClock(func() time.Time { return now })

		convey.Convey("When a sweep runs with a one hour retention", func() {
			wd := worker.NewWatchdog(store, &recordingQueue{}, clock, worker.WithRetention(time.Hour))
			_, _, err := wd.Sweep(ctx)

			convey.Convey("Then the finished task is evicted and the pending one kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Len(), convey.ShouldEqual, 1)
				task, err := store.Get(ctx, "waiting")
				convey.So(err, convey.ShouldBeNil)
				convey.So(task.Status, convey.ShouldEqual, model.TaskPending)
			})
		})

		convey.Convey("When a sweep runs without a retention", func() {
			wd := worker.NewWatchdog(store, &recordingQueue{}, clock)
			_, _, err := wd.Sweep(ctx)

			convey.Convey("Then finished tasks are kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Len(), convey.ShouldEqual, 2)
			})
		})
	})
}
