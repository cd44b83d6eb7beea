// Package loadtest drives a running check-in server through a full contest:
// it provisions an event, registers users, forms teams, fires concurrent
// check-ins and checks the resulting ranking against what it submitted.
package loadtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig reports unusable load test settings.
var ErrInvalidConfig = errors.New("invalid load test config")

// Config holds configuration for a load test run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Teams           int           // Teams created in the event
	Users           int           // Users registered; user i joins team i mod Teams
	CheckInsPerUser int           // Check-ins each user submits
	DuplicateJoins  int           // Extra concurrent joins each user fires for its team
	Workers         int           // Concurrent requests in flight
	Timeout         time.Duration // HTTP request timeout
	EventDuration   time.Duration // Length of the provisioned event window
	PollInterval    time.Duration // Delay between task status polls
	RankingPoll     time.Duration // Delay between ranking polls while check-ins run
	Verbose         bool          // Log every failed request
}

// Validate checks the run can make progress.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Teams <= 0 || c.Users <= 0:
		return fmt.Errorf("%w: teams and users must be positive", ErrInvalidConfig)
	case c.CheckInsPerUser < 0 || c.DuplicateJoins < 0:
		return fmt.Errorf("%w: check-ins and duplicate joins must not be negative", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.EventDuration <= 0 || c.Timeout <= 0:
		return fmt.Errorf("%w: event duration and timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	EventID          int64
	UsersRegistered  int
	JoinsSucceeded   int
	DuplicateJoins   int // repeat joins the server reported as already_member
	CheckInsSent     int
	CheckInsAccepted int
	CheckInsFailed   int
	RankedTeams      int
	RankingPolls     int
	Latency          map[string]LatencySummary
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
