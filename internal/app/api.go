package service

import (
	"context"

	"github.com/okian/checkin/internal/adapters/http/api"
	"github.com/okian/checkin/internal/domain/auth"
	"github.com/okian/checkin/internal/domain/checkin"
	"github.com/okian/checkin/internal/domain/ledger"
	"github.com/okian/checkin/internal/domain/model"
)

var (
	_ api.Dependencies   = (*Service)(nil)
	_ api.StatusProvider = (*Service)(nil)
)

// CreateEvent submits an event for asynchronous provisioning.
func (s *Service) CreateEvent(ctx context.Context, in model.NewEvent) (string, error) {
	return s.events.CreateEvent(ctx, in)
}

// TaskStatus returns the task as polling clients see it.
func (s *Service) TaskStatus(ctx context.Context, taskID string) (model.Task, error) {
	return s.events.TaskStatus(ctx, taskID)
}

func (s *Service) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	return s.events.GetEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.ListEvents(ctx)
}

func (s *Service) CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error) {
	return s.teams.CreateTeam(ctx, eventID, name, description)
}

// Join adds userID to teamID.
func (s *Service) Join(ctx context.Context, eventID, teamID, userID int64) (ledger.JoinResult, error) {
	return s.teams.Join(ctx, eventID, teamID, userID)
}

func (s *Service) ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error) {
	return s.teams.ListTeamsForEvent(ctx, eventID)
}

func (s *Service) ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error) {
	return s.teams.ListTeamsForUser(ctx, userID)
}

func (s *Service) TeamMembers(ctx context.Context, teamID int64) ([]model.User, error) {
	return s.teams.TeamMembers(ctx, teamID)
}

// Submit records a check-in for one team or every team of the user.
func (s *Service) Submit(ctx context.Context, in checkin.SubmitInput) ([]model.CheckIn, error) {
	return s.checkins.Submit(ctx, in)
}

func (s *Service) ListRecent(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error) {
	return s.checkins.ListRecent(ctx, eventID, limit)
}

// Ranking returns the ordered standings of an event.
func (s *Service) Ranking(ctx context.Context, eventID int64) ([]model.RankingEntry, error) {
	return s.rankings.Ranking(ctx, eventID)
}

func (s *Service) Register(ctx context.Context, username, email, password string) (model.User, error) {
	return s.users.Register(ctx, username, email, password)
}

func (s *Service) Login(ctx context.Context, email, password string) (auth.Session, error) {
	return s.users.Login(ctx, email, password)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.users.Logout(ctx, token)
}

// Verify returns the user id carried by a live token.
func (s *Service) Verify(ctx context.Context, token string) (int64, error) {
	return s.users.Verify(ctx, token)
}
