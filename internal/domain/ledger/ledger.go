// Package ledger manages teams and the memberships that tie users to them.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

// Store is the persistence the ledger needs.
type Store interface {
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	GetTeam(ctx context.Context, id int64) (model.Team, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error)
	AddMember(ctx context.Context, m model.Membership) (bool, error)
	ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error)
	ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error)
	TeamMembers(ctx context.Context, teamID int64) ([]model.User, error)
}

// Invalidator drops cached rankings of an event.
type Invalidator interface {
	Invalidate(eventID int64)
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	AlreadyMember bool
}

// Service is the membership ledger.
type Service struct {
	store       Store
	invalidator Invalidator
	strict      bool
	now         func() time.Time
	logger      logger.Logger
}

// New creates a ledger. invalidator may be nil.
func New(store Store, invalidator Invalidator, opts ...Option) *Service {
	s := &Service{
		store:       store,
		invalidator: invalidator,
		now:         time.Now,
		logger:      logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTeam adds a team to an event. Names are unique within the event.
func (s *Service) CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error) {
	const op = "ledger.CreateTeam"

	name = strings.TrimSpace(name)
	if name == "" {
		return model.Team{}, fmt.Errorf("%s: %w", op, model.ErrEmptyName)
	}

	team, err := s.store.CreateTeam(ctx, eventID, name, description)
	if err != nil {
		return model.Team{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(eventID)
	}

	s.logger.Info(ctx, "team created",
		logger.Int64("event_id", eventID),
		logger.Int64("team_id", team.ID),
		logger.String("name", team.Name))
	return team, nil
}

// Join adds userID to teamID. A repeat join is reported through
// JoinResult.AlreadyMember, or as ErrAlreadyMember in strict mode.
func (s *Service) Join(ctx context.Context, eventID, teamID, userID int64) (JoinResult, error) {
	const op = "ledger.Join"

	res, err := s.join(ctx, eventID, teamID, userID)
	switch {
	case err != nil:
		metrics.RecordJoin("rejected")
		return JoinResult{}, fmt.Errorf("%s: %w", op, err)
	case res.AlreadyMember:
		metrics.RecordJoin("already_member")
		if s.strict {
			return res, fmt.Errorf("%s: %w", op, model.ErrAlreadyMember)
		}
		return res, nil
	default:
		metrics.RecordJoin("new")
		return res, nil
	}
}

func (s *Service) join(ctx context.Context, eventID, teamID, userID int64) (JoinResult, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return JoinResult{}, err
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return JoinResult{}, err
	}
	if team.EventID != eventID {
		return JoinResult{}, model.ErrTeamNotFound
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return JoinResult{}, err
	}
	if !event.IsActive(s.now()) {
		return JoinResult{}, model.ErrEventNotActive
	}

	inserted, err := s.store.AddMember(ctx, model.Membership{
		EventID:  eventID,
		TeamID:   teamID,
		UserID:   userID,
		JoinedAt: s.now(),
	})
	if err != nil {
		return JoinResult{}, err
	}
	if !inserted {
		return JoinResult{AlreadyMember: true}, nil
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(eventID)
	}
	s.logger.Debug(ctx, "member joined",
		logger.Int64("event_id", eventID),
		logger.Int64("team_id", teamID),
		logger.Int64("user_id", userID))
	return JoinResult{}, nil
}

// ListTeamsForEvent returns the teams of an event ordered by id.
func (s *Service) ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error) {
	const op = "ledger.ListTeamsForEvent"

	teams, err := s.store.ListTeamsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return teams, nil
}

// ListTeamsForUser returns every team the user belongs to, across events.
func (s *Service) ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error) {
	const op = "ledger.ListTeamsForUser"

	teams, err := s.store.ListTeamsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return teams, nil
}

// TeamMembers returns the users of a team.
func (s *Service) TeamMembers(ctx context.Context, teamID int64) ([]model.User, error) {
	const op = "ledger.TeamMembers"

	users, err := s.store.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

