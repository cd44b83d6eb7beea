package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.joins.WithLabelValues("joined").Inc()

			Convey("Then its collectors are registered under the namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_joins_total" {
						found = true
						So(f.GetMetric()[0].GetLabel(), ShouldNotBeEmpty)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share one registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When join outcomes are recorded", func() {
			before := testutil.ToFloat64(globalManager.joins.WithLabelValues("already_member"))
			RecordJoin("already_member")
			RecordJoin("already_member")

			Convey("Then the labelled counter grows", func() {
				So(testutil.ToFloat64(globalManager.joins.WithLabelValues("already_member")), ShouldEqual, before+2)
			})
		})

		Convey("When check-ins are recorded", func() {
			before := testutil.ToFloat64(globalManager.checkIns)
			RecordCheckIns(3)

			Convey("Then the counter adds the batch size", func() {
				So(testutil.ToFloat64(globalManager.checkIns), ShouldEqual, before+3)
			})
		})

		Convey("When queue gauges are set", func() {
			UpdateQueueCapacity(100)
			UpdateQueueSize(25)
			UpdateQueueUtilization(0.25)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 25)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
			})
		})

		Convey("When everything else is recorded", func() {
			So(func() {
				RecordTaskSubmitted("create_event")
				RecordTaskFinished("create_event", "SUCCESS", 12)
				RecordTaskTimedOut()
				RecordTaskRequeued()
				RecordRankingRequest("snapshot")
				RecordRankingBuild(3)
				RecordRankingInvalidation()
				RecordBlobStored(2048)
				RecordAuth("login", "ok")
				UpdateTotalEvents(4)
				RecordStorageLatency("join", 1.5)
				RecordStorageError("join")
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected("full")
				UpdateWorkerActiveCount(4)
				WorkerBusy(1)
				WorkerBusy(-1)
				RecordWorkerPanic()
				RecordWorkerClaimLost()
				RecordWorkerProcessingLatency(8)
				RecordWatchdogSweep(false)
				RecordHTTPRequest("ranking", "GET", "200")
				RecordHTTPRequestDuration("ranking", "GET", "200", 4)
				RecordErrorByComponent("ledger", "storage")
				RecordErrorByEndpoint("join", "POST", "not_found")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordTaskSubmitted("create_event")

		Convey("Then it exposes checkin metrics without Go runtime collectors", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			joined := strings.Join(names, ",")
			So(joined, ShouldContainSubstring, "checkin_contest_tasks_submitted_total")
			So(joined, ShouldNotContainSubstring, "go_goroutines")
		})
	})
}
