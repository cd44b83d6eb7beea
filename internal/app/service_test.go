package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/checkin/internal/app"
	"github.com/okian/checkin/internal/config"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.PhotoDir = t.TempDir()
	cfg.WorkerCount = 2
	cfg.QueueSize = 64
	cfg.WatchdogInterval = 50 * time.Millisecond
	cfg.RequeueAfter = 100 * time.Millisecond
	cfg.BcryptCost = 4
	cfg.JWTSecret = "test-secret"
	return cfg
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with a nil config", t, func() {
		svc := service.New(nil)

		Convey("Then it should fall back to defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["storage"], ShouldEqual, config.StorageMemory)
		})

		Convey("And Ping should report it is not started", func() {
			err := svc.Ping(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(testConfig(t))
		defer svc.Stop(ctx)

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			So(err, ShouldBeNil)

			Convey("Then it should report healthy and started", func() {
				So(svc.Ping(ctx), ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workers"], ShouldEqual, 2)
				So(stats["queue_capacity"], ShouldEqual, 64)
				So(stats["events"], ShouldEqual, 0)
			})

			Convey("And starting twice is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping it marks it stopped", func() {
				svc.Stop(ctx)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(errors.Is(svc.Ping(ctx), service.ErrNotStarted), ShouldBeTrue)

				Convey("And stopping again is safe", func() {
					So(func() { svc.Stop(ctx) }, ShouldNotPanic)
				})
			})
		})
	})
}

func TestService_StartFailures(t *testing.T) {
	Convey("Given a config pointing at an unreachable redis", t, func() {
		cfg := testConfig(t)
		cfg.TaskStore = config.TaskStoreRedis
		cfg.RedisAddr = "127.0.0.1:1"

		svc := service.New(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Convey("Then Start should fail as unavailable", func() {
			err := svc.Start(ctx)
			So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a photo directory that cannot be created", t, func() {
		cfg := testConfig(t)
		cfg.PhotoDir = "/dev/null/photos"

		svc := service.New(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Convey("Then Start should fail", func() {
			So(svc.Start(ctx), ShouldNotBeNil)
		})
	})
}
