package loadtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/checkin/pkg/logger"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultRankingPoll  = time.Second
	userPassword        = "loadtest-pass"
	percentMultiplier   = 100
)

// Runner executes a load test against one server.
type Runner struct {
	cfg       Config
	client    *Client
	logger    logger.Logger
	latencies *Latencies
	stats     Stats
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RankingPoll <= 0 {
		cfg.RankingPoll = defaultRankingPoll
	}
	return &Runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		logger: logger.Get().Named("loadtest"),
	}, nil
}

// Run executes the complete scenario and verifies the final ranking.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.stats = Stats{StartTime: time.Now()}
	r.latencies = NewLatencies()
	r.logger.Info(ctx, "starting check-in load test",
		logger.String("base_url", r.cfg.BaseURL),
		logger.Int("teams", r.cfg.Teams),
		logger.Int("users", r.cfg.Users),
		logger.Int("checkins_per_user", r.cfg.CheckInsPerUser),
		logger.Int("duplicate_joins", r.cfg.DuplicateJoins),
		logger.Int("workers", r.cfg.Workers))

	if err := r.client.Health(ctx); err != nil {
		return r.stats, fmt.Errorf("service health check failed: %w", err)
	}

	run := uuid.NewString()[:8]
	now := time.Now()
	var eventID int64
	err := r.timed("create_event", func() (err error) {
		eventID, err = r.client.CreateEvent(ctx, "load-"+run, now.Add(-time.Minute), now.Add(r.cfg.EventDuration), r.cfg.PollInterval)
		return err
	})
	if err != nil {
		return r.stats, fmt.Errorf("event provisioning failed: %w", err)
	}
	r.stats.EventID = eventID

	teams := make([]int64, r.cfg.Teams)
	for i := range teams {
		err = r.timed("create_team", func() (err error) {
			teams[i], err = r.client.CreateTeam(ctx, eventID, fmt.Sprintf("team-%s-%03d", run, i))
			return err
		})
		if err != nil {
			return r.stats, fmt.Errorf("team creation failed: %w", err)
		}
	}

	pool, err := ants.NewPool(r.cfg.Workers)
	if err != nil {
		return r.stats, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	users, err := r.enroll(ctx, pool, run, eventID, teams)
	if err != nil {
		return r.stats, err
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	polled := make(chan error, 1)
	go func() { polled <- r.pollRanking(pollCtx, eventID) }()

	accepted, err := r.checkIn(ctx, pool, eventID, users)
	stopPolling()
	if pollErr := <-polled; err == nil && pollErr != nil {
		err = fmt.Errorf("live ranking verification failed: %w", pollErr)
	}
	if err != nil {
		return r.stats, err
	}

	var entries []RankingEntry
	err = r.timed("ranking", func() (err error) {
		entries, err = r.client.Ranking(ctx, eventID)
		return err
	})
	if err != nil {
		return r.stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}
	r.stats.RankedTeams = len(entries)
	if err := Verify(entries, accepted); err != nil {
		return r.stats, fmt.Errorf("ranking verification failed: %w", err)
	}
	if err := VerifyMembership(entries, teamSizes(users)); err != nil {
		return r.stats, fmt.Errorf("membership verification failed: %w", err)
	}

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.stats.Latency = r.latencies.Summary()
	r.report(ctx)
	return r.stats, nil
}

func (r *Runner) timed(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.latencies.Observe(step, time.Since(start))
	return err
}

type member struct {
	userID int64
	teamID int64
}

func teamSizes(users []member) map[int64]int {
	sizes := make(map[int64]int)
	for _, m := range users {
		sizes[m.teamID]++
	}
	return sizes
}

// enroll registers users and joins each to one team, firing
// 1+DuplicateJoins joins at once per user. Only users whose joins all
// succeeded are returned.
func (r *Runner) enroll(ctx context.Context, pool *ants.Pool, run string, eventID int64, teams []int64) ([]member, error) {
	var (
		mu         sync.Mutex
		out        = make([]member, 0, r.cfg.Users)
		wg         sync.WaitGroup
		created    atomic.Int32
		duplicates atomic.Int32
	)
	for i := range r.cfg.Users {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			name := fmt.Sprintf("u%s%05d", run, i)
			var uid int64
			err := r.timed("register", func() (err error) {
				uid, err = r.client.Register(ctx, name, name+"@loadtest.local", userPassword)
				return err
			})
			if err != nil {
				r.failed(ctx, "register", err)
				return
			}
			created.Add(1)

			team := teams[i%len(teams)]
			var g errgroup.Group
			for range 1 + r.cfg.DuplicateJoins {
				g.Go(func() error {
					return r.timed("join", func() error {
						already, err := r.client.Join(ctx, eventID, team, uid)
						if already {
							duplicates.Add(1)
						}
						return err
					})
				})
			}
			if err := g.Wait(); err != nil {
				r.failed(ctx, "join", err)
				return
			}
			mu.Lock()
			out = append(out, member{userID: uid, teamID: team})
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit task to worker pool: %w", err)
		}
	}
	wg.Wait()

	r.stats.UsersRegistered = int(created.Load())
	r.stats.JoinsSucceeded = len(out)
	r.stats.DuplicateJoins = int(duplicates.Load())
	r.logger.Info(ctx, "users enrolled",
		logger.Int("registered", r.stats.UsersRegistered),
		logger.Int("joined", r.stats.JoinsSucceeded),
		logger.Int("duplicate_joins", r.stats.DuplicateJoins))
	return out, nil
}

// checkIn fires CheckInsPerUser check-ins per member and returns the number
// accepted per team.
func (r *Runner) checkIn(ctx context.Context, pool *ants.Pool, eventID int64, users []member) (map[int64]int64, error) {
	var (
		mu       sync.Mutex
		accepted = make(map[int64]int64)
		wg       sync.WaitGroup
		sent     atomic.Int32
		failed   atomic.Int32
	)
	for _, m := range users {
		for n := range r.cfg.CheckInsPerUser {
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				sent.Add(1)
				err := r.timed("checkin", func() error {
					return r.client.CheckIn(ctx, eventID, m.userID, fmt.Sprintf("lap %d", n))
				})
				if err != nil {
					failed.Add(1)
					r.failed(ctx, "checkin", err)
					return
				}
				mu.Lock()
				accepted[m.teamID]++
				mu.Unlock()
			}); err != nil {
				wg.Done()
				return nil, fmt.Errorf("submit task to worker pool: %w", err)
			}
		}
	}
	wg.Wait()

	r.stats.CheckInsSent = int(sent.Load())
	r.stats.CheckInsFailed = int(failed.Load())
	r.stats.CheckInsAccepted = r.stats.CheckInsSent - r.stats.CheckInsFailed
	return accepted, nil
}

// pollRanking reads the ranking every RankingPoll until ctx ends, the way a
// scoreboard client does, and checks every answer is well ordered.
func (r *Runner) pollRanking(ctx context.Context, eventID int64) error {
	ticker := time.NewTicker(r.cfg.RankingPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		var entries []RankingEntry
		err := r.timed("ranking", func() (err error) {
			entries, err = r.client.Ranking(ctx, eventID)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.failed(ctx, "ranking", err)
			continue
		}
		r.stats.RankingPolls++
		if err := verifyOrder(entries); err != nil {
			return err
		}
	}
}

func (r *Runner) failed(ctx context.Context, step string, err error) {
	if r.cfg.Verbose {
		r.logger.Warn(ctx, "request failed", logger.String("step", step), logger.Error(err))
	}
}

func (r *Runner) report(ctx context.Context) {
	var successRate, perSecond float64
	if r.stats.CheckInsSent > 0 {
		successRate = float64(r.stats.CheckInsAccepted) / float64(r.stats.CheckInsSent) * percentMultiplier
	}
	if r.stats.Duration > 0 {
		perSecond = float64(r.stats.CheckInsSent) / r.stats.Duration.Seconds()
	}
	r.logger.Info(ctx, "final statistics",
		logger.Int64("event_id", r.stats.EventID),
		logger.Int("users_registered", r.stats.UsersRegistered),
		logger.Int("joins", r.stats.JoinsSucceeded),
		logger.Int("duplicate_joins", r.stats.DuplicateJoins),
		logger.Int("checkins_sent", r.stats.CheckInsSent),
		logger.Int("checkins_accepted", r.stats.CheckInsAccepted),
		logger.Int("checkins_failed", r.stats.CheckInsFailed),
		logger.Int("ranked_teams", r.stats.RankedTeams),
		logger.Int("ranking_polls", r.stats.RankingPolls),
		logger.Duration("duration", r.stats.Duration),
		logger.Float64("success_rate", successRate),
		logger.Float64("checkins_per_second", perSecond))

	steps := make([]string, 0, len(r.stats.Latency))
	for step := range r.stats.Latency {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		l := r.stats.Latency[step]
		r.logger.Info(ctx, "latency",
			logger.String("step", step),
			logger.Int("count", l.Count),
			logger.Duration("p50", l.P50),
			logger.Duration("p95", l.P95),
			logger.Duration("p99", l.P99),
			logger.Duration("max", l.Max))
	}
}
