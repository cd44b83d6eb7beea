// Command loadgen drives a running check-in server through a full contest
// and verifies the resulting ranking.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/checkin/internal/loadtest"
	"github.com/okian/checkin/pkg/logger"
)

// Default configuration constants.
const (
	defaultTeams       = 10
	defaultUsers       = 200
	defaultCheckIns    = 20
	defaultWorkers     = 4 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		teams    = flag.Int("teams", defaultTeams, "Number of teams in the event")
		users    = flag.Int("users", defaultUsers, "Number of users to register and enroll")
		checkIns = flag.Int("checkins", defaultCheckIns, "Check-ins submitted by each user")
		dupJoins = flag.Int("duplicate-joins", 1, "Extra concurrent joins each user fires for its team")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent requests")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		duration = flag.Duration("event-duration", time.Hour, "Length of the provisioned event")
		poll     = flag.Duration("ranking-poll", time.Second, "Ranking poll interval while check-ins run")
		format   = flag.String("log-format", "text", "Log format: text or json")
		verbose  = flag.Bool("verbose", false, "Log every failed request")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	runner, err := loadtest.NewRunner(loadtest.Config{
		BaseURL:         *baseURL,
		Teams:           *teams,
		Users:           *users,
		CheckInsPerUser: *checkIns,
		DuplicateJoins:  *dupJoins,
		Workers:         *workers,
		Timeout:         *timeout,
		EventDuration:   *duration,
		RankingPoll:     *poll,
		Verbose:         *verbose,
	})
	if err != nil {
		logger.Get().Error(ctx, "invalid flags", logger.Error(err))
		os.Exit(2)
	}

	if _, err := runner.Run(ctx); err != nil {
		logger.Get().Error(ctx, "load test failed", logger.Error(err))
		os.Exit(1)
	}
}
