// Package repository defines the relational storage contract of the contest
// and an in-memory implementation of it.
package repository

import (
	"context"

	"github.com/okian/checkin/internal/domain/model"
)

// Store provides read/write access to events, teams, memberships, check-ins
// and users. Implementations return model errors for missing rows and wrap
// storage failures in model.ErrUnavailable.
type Store interface {
	// CreateEvent persists an event provisioned by taskID. Calling it again
	// with the same taskID returns the event created the first time.
	CreateEvent(ctx context.Context, taskID string, in model.NewEvent) (model.Event, error)
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	CountEvents(ctx context.Context) (int, error)

	// CreateTeam fails with model.ErrTeamNameTaken when the name is used in the event.
	CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error)
	GetTeam(ctx context.Context, id int64) (model.Team, error)
	ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error)
	ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error)
	ListTeamsForUserInEvent(ctx context.Context, eventID, userID int64) ([]model.Team, error)

	// AddMember inserts the membership unless the triple already exists.
	// Returns true only for the caller whose row was written.
	AddMember(ctx context.Context, m model.Membership) (bool, error)
	IsMember(ctx context.Context, teamID, userID int64) (bool, error)
	TeamMembers(ctx context.Context, teamID int64) ([]model.User, error)

	// RecordCheckIns persists the rows and adds one point per row to the
	// owning team, all or nothing. Returned rows carry their ids.
	RecordCheckIns(ctx context.Context, rows []model.CheckIn) ([]model.CheckIn, error)
	// RecentCheckIns returns up to limit rows ordered by created_at desc, id asc.
	RecentCheckIns(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error)

	// Standings returns every team of the event ordered by score desc, id asc.
	Standings(ctx context.Context, eventID int64) ([]model.Standing, error)

	// CreateUser fails with model.ErrUserExists on a duplicate username or email.
	CreateUser(ctx context.Context, username, email string, passwordHash []byte) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	Ping(ctx context.Context) error
	Close() error
}
