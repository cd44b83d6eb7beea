package loadtest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/checkin/internal/adapters/http/api"
	service "github.com/okian/checkin/internal/app"
	"github.com/okian/checkin/internal/config"
	"github.com/okian/checkin/internal/loadtest"
	"github.com/okian/checkin/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestVerify(t *testing.T) {
	Convey("Given the check-ins accepted per team", t, func() {
		accepted := map[int64]int64{1: 4, 2: 6, 3: 4}

		Convey("When the ranking matches", func() {
			entries := []loadtest.RankingEntry{
				{Rank: 1, TeamID: 2, Score: 6},
				{Rank: 2, TeamID: 1, Score: 4},
				{Rank: 3, TeamID: 3, Score: 4},
			}
			So(loadtest.Verify(entries, accepted), ShouldBeNil)
		})

		Convey("When ties are ordered by descending id", func() {
			entries := []loadtest.RankingEntry{
				{Rank: 1, TeamID: 2, Score: 6},
				{Rank: 2, TeamID: 3, Score: 4},
				{Rank: 3, TeamID: 1, Score: 4},
			}
			So(loadtest.Verify(entries, accepted), ShouldNotBeNil)
		})

		Convey("When a score is off", func() {
			entries := []loadtest.RankingEntry{
				{Rank: 1, TeamID: 2, Score: 7},
				{Rank: 2, TeamID: 1, Score: 4},
				{Rank: 3, TeamID: 3, Score: 4},
			}
			So(loadtest.Verify(entries, accepted), ShouldNotBeNil)
		})

		Convey("When ranks skip", func() {
			entries := []loadtest.RankingEntry{
				{Rank: 1, TeamID: 2, Score: 6},
				{Rank: 3, TeamID: 1, Score: 4},
			}
			So(loadtest.Verify(entries, accepted), ShouldNotBeNil)
		})

		Convey("When a scored team is missing", func() {
			entries := []loadtest.RankingEntry{
				{Rank: 1, TeamID: 2, Score: 6},
				{Rank: 2, TeamID: 1, Score: 4},
			}
			So(loadtest.Verify(entries, accepted), ShouldNotBeNil)
		})
	})
}

func TestVerifyMembership(t *testing.T) {
	Convey("Given the users joined per team", t, func() {
		joined := map[int64]int{1: 2, 2: 3}

		Convey("When team sizes match", func() {
			entries := []loadtest.RankingEntry{{Rank: 1, TeamID: 2, TeamSize: 3}, {Rank: 2, TeamID: 1, TeamSize: 2}}
			So(loadtest.VerifyMembership(entries, joined), ShouldBeNil)
		})

		Convey("When a repeat join was counted twice", func() {
			entries := []loadtest.RankingEntry{{Rank: 1, TeamID: 2, TeamSize: 4}, {Rank: 2, TeamID: 1, TeamSize: 2}}
			So(loadtest.VerifyMembership(entries, joined), ShouldNotBeNil)
		})
	})
}

func TestLatencies(t *testing.T) {
	Convey("Given one hundred samples of 1..100ms", t, func() {
		l := loadtest.NewLatencies()
		for i := 100; i >= 1; i-- {
			l.Observe("checkin", time.Duration(i)*time.Millisecond)
		}
		l.Observe("ranking", 7*time.Millisecond)

		summary := l.Summary()

		Convey("Then percentiles use the nearest rank", func() {
			s := summary["checkin"]
			So(s.Count, ShouldEqual, 100)
			So(s.P50, ShouldEqual, 50*time.Millisecond)
			So(s.P95, ShouldEqual, 95*time.Millisecond)
			So(s.P99, ShouldEqual, 99*time.Millisecond)
			So(s.Max, ShouldEqual, 100*time.Millisecond)
		})

		Convey("Then a single sample is every percentile", func() {
			s := summary["ranking"]
			So(s.Count, ShouldEqual, 1)
			So(s.P50, ShouldEqual, 7*time.Millisecond)
			So(s.P99, ShouldEqual, 7*time.Millisecond)
		})
	})
}

func TestNewRunner(t *testing.T) {
	Convey("Given invalid settings", t, func() {
		_, err := loadtest.NewRunner(loadtest.Config{BaseURL: "http://x", Teams: 1, Users: 1})

		Convey("Then the runner is not created", func() {
			So(errors.Is(err, loadtest.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRunAgainstServer(t *testing.T) {
	Convey("Given a running check-in server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		cfg := config.New()
		cfg.WorkerCount = 2
		cfg.BcryptCost = 4
		cfg.PhotoDir = t.TempDir()
		svc := service.New(cfg)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a small contest is driven through it", func() {
			runner, err := loadtest.NewRunner(loadtest.Config{
				BaseURL:         srv.URL,
				Teams:           3,
				Users:           12,
				CheckInsPerUser: 5,
				DuplicateJoins:  1,
				Workers:         8,
				Timeout:         10 * time.Second,
				EventDuration:   time.Hour,
				PollInterval:    10 * time.Millisecond,
				RankingPoll:     5 * time.Millisecond,
			})
			So(err, ShouldBeNil)

			stats, err := runner.Run(ctx)

			Convey("Then every check-in is reflected in the ranking", func() {
				So(err, ShouldBeNil)
				So(stats.UsersRegistered, ShouldEqual, 12)
				So(stats.JoinsSucceeded, ShouldEqual, 12)
				So(stats.CheckInsSent, ShouldEqual, 60)
				So(stats.CheckInsFailed, ShouldEqual, 0)
				So(stats.RankedTeams, ShouldEqual, 3)
			})

			Convey("Then each user's second join is reported as a repeat", func() {
				So(stats.DuplicateJoins, ShouldEqual, 12)
				So(stats.Latency["join"].Count, ShouldEqual, 24)
				So(stats.Latency["checkin"].Count, ShouldEqual, 60)
			})
		})
	})
}
