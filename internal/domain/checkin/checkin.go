// Package checkin accepts check-ins and turns each into one point for a team.
package checkin

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

const (
	// MaxCommentRunes bounds the comment length.
	MaxCommentRunes = 500

	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Store is the persistence the ingestion service needs.
type Store interface {
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	GetTeam(ctx context.Context, id int64) (model.Team, error)
	IsMember(ctx context.Context, teamID, userID int64) (bool, error)
	ListTeamsForUserInEvent(ctx context.Context, eventID, userID int64) ([]model.Team, error)
	RecordCheckIns(ctx context.Context, rows []model.CheckIn) ([]model.CheckIn, error)
	RecentCheckIns(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error)
}

// BlobStore keeps check-in photos and returns where they can be fetched.
type BlobStore interface {
	Store(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// Invalidator drops cached rankings of an event.
type Invalidator interface {
	Invalidate(eventID int64)
}

// SubmitInput is one check-in request. TeamID zero means every team the user
// belongs to in the event.
type SubmitInput struct {
	EventID int64
	TeamID  int64
	UserID  int64
	Comment string
	Photo   []byte
}

// Service is the check-in ingestion service.
type Service struct {
	store        Store
	blobs        BlobStore
	invalidator  Invalidator
	defaultLimit int
	maxLimit     int
	now          func() time.Time
	logger       logger.Logger
}

// New creates the ingestion service. blobs and invalidator may be nil.
func New(store Store, blobs BlobStore, invalidator Invalidator, opts ...Option) *Service {
	s := &Service{
		store:        store,
		blobs:        blobs,
		invalidator:  invalidator,
		defaultLimit: defaultRecentLimit,
		maxLimit:     maxRecentLimit,
		now:          time.Now,
		logger:       logger.Get().Named("checkin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a check-in for one team, or for all of the user's teams in
// the event when in.TeamID is zero. All rows and score increments are
// persisted together. Errors come in the order the membership ledger uses:
// missing event, then team resolution, then the event window.
func (s *Service) Submit(ctx context.Context, in SubmitInput) ([]model.CheckIn, error) {
	const op = "checkin.Submit"

	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	teams, err := s.targetTeams(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	if !event.IsActive(now) {
		return nil, fmt.Errorf("%s: %w", op, model.ErrEventNotActive)
	}
	if utf8.RuneCountInString(in.Comment) > MaxCommentRunes {
		return nil, fmt.Errorf("%s: %w", op, model.ErrCommentTooLong)
	}

	var photoURL string
	if len(in.Photo) > 0 {
		if s.blobs == nil {
			return nil, fmt.Errorf("%s: %w: photo storage disabled", op, model.ErrUnavailable)
		}
		photoURL, err = s.blobs.Store(ctx, in.Photo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	rows := make([]model.CheckIn, 0, len(teams))
	for _, teamID := range teams {
		rows = append(rows, model.CheckIn{
			EventID:   in.EventID,
			TeamID:    teamID,
			UserID:    in.UserID,
			Comment:   in.Comment,
			PhotoURL:  photoURL,
			CreatedAt: now,
		})
	}

	saved, err := s.store.RecordCheckIns(ctx, rows)
	if err != nil {
		metrics.RecordErrorByComponent("checkin", "record")
		if photoURL != "" {
			s.discardPhoto(ctx, photoURL)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(in.EventID)
	}
	metrics.RecordCheckIns(len(saved))

	s.logger.Debug(ctx, "check-ins recorded",
		logger.Int64("event_id", in.EventID),
		logger.Int64("user_id", in.UserID),
		logger.Int("teams", len(saved)),
		logger.Bool("photo", photoURL != ""))
	return saved, nil
}

// discardPhoto removes a photo whose check-in was never recorded.
func (s *Service) discardPhoto(ctx context.Context, url string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), url); err != nil {
		s.logger.Warn(ctx, "failed to delete orphaned photo",
			logger.String("photo_url", url),
			logger.Error(err))
	}
}

// targetTeams resolves which teams receive the check-in.
func (s *Service) targetTeams(ctx context.Context, in SubmitInput) ([]int64, error) {
	if in.TeamID == 0 {
		teams, err := s.store.ListTeamsForUserInEvent(ctx, in.EventID, in.UserID)
		if err != nil {
			return nil, err
		}
		if len(teams) == 0 {
			return nil, model.ErrNoTeams
		}
		ids := make([]int64, 0, len(teams))
		for _, t := range teams {
			ids = append(ids, t.ID)
		}
		return ids, nil
	}

	team, err := s.store.GetTeam(ctx, in.TeamID)
	if err != nil {
		return nil, err
	}
	if team.EventID != in.EventID {
		return nil, model.ErrTeamNotFound
	}
	member, err := s.store.IsMember(ctx, in.TeamID, in.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, model.ErrNotMember
	}
	return []int64{in.TeamID}, nil
}

// ListRecent returns the newest check-ins of an event. A zero limit selects
// the default page size.
func (s *Service) ListRecent(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error) {
	const op = "checkin.ListRecent"

	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > s.maxLimit {
		return nil, fmt.Errorf("%s: %w", op, model.ErrInvalidLimit)
	}

	rows, err := s.store.RecentCheckIns(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}
