package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/checkin/internal/domain/dedupe"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. A single RWMutex guards all tables so
// multi-row writes (check-in plus score) are atomic. Team standings are kept
// on a per-event treap so ranking reads never scan check-ins.
type MemStore struct {
	mu  sync.RWMutex
	now func() time.Time

	members               dedupe.Deduper
	metricsUpdateInterval time.Duration

	nextEventID   int64
	nextTeamID    int64
	nextUserID    int64
	nextCheckInID int64

	events      map[int64]model.Event
	eventByTask map[string]int64

	teams       map[int64]model.Team
	teamByName  map[int64]map[string]int64 // event -> name -> team
	eventTeams  map[int64][]int64
	boards      map[int64]*board
	teamMembers map[int64][]int64
	userTeams   map[int64][]int64

	checkins map[int64][]model.CheckIn

	users       map[int64]model.User
	userByEmail map[string]int64
	userByName  map[string]int64

	closed   bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemStore constructs an in-memory store with configuration options.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		now:                   time.Now,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		events:                make(map[int64]model.Event),
		eventByTask:           make(map[string]int64),
		teams:                 make(map[int64]model.Team),
		teamByName:            make(map[int64]map[string]int64),
		eventTeams:            make(map[int64][]int64),
		boards:                make(map[int64]*board),
		teamMembers:           make(map[int64][]int64),
		userTeams:             make(map[int64][]int64),
		checkins:              make(map[int64][]model.CheckIn),
		users:                 make(map[int64]model.User),
		userByEmail:           make(map[string]int64),
		userByName:            make(map[string]int64),
		stopChan:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.members == nil {
		s.members = dedupe.NewInMemoryDeduper()
	}

	s.startMetricsUpdater(ctx)
	return s
}

func membershipKey(eventID, teamID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", eventID, teamID, userID)
}

func observe(op string, start time.Time) {
	metrics.RecordStorageLatency(op, float64(time.Since(start).Milliseconds()))
}

// CreateEvent implements Store.CreateEvent.
func (s *MemStore) CreateEvent(_ context.Context, taskID string, in model.NewEvent) (model.Event, error) {
	defer observe("create_event", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.Event{}, ErrClosed
	}
	if id, ok := s.eventByTask[taskID]; ok && taskID != "" {
		return s.events[id], nil
	}

	s.nextEventID++
	e := model.Event{
		ID:          s.nextEventID,
		Name:        in.Name,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		CreatedAt:   s.now(),
		TaskID:      taskID,
	}
	s.events[e.ID] = e
	if taskID != "" {
		s.eventByTask[taskID] = e.ID
	}
	s.boards[e.ID] = newBoard()
	return e, nil
}

// GetEvent implements Store.GetEvent.
func (s *MemStore) GetEvent(_ context.Context, id int64) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	return e, nil
}

// ListEvents returns all events ordered by id.
func (s *MemStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountEvents implements Store.CountEvents.
func (s *MemStore) CountEvents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// CreateTeam implements Store.CreateTeam.
func (s *MemStore) CreateTeam(_ context.Context, eventID int64, name, description string) (model.Team, error) {
	defer observe("create_team", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.Team{}, ErrClosed
	}
	if _, ok := s.events[eventID]; !ok {
		return model.Team{}, model.ErrEventNotFound
	}
	names := s.teamByName[eventID]
	if names == nil {
		names = make(map[string]int64)
		s.teamByName[eventID] = names
	}
	if _, taken := names[name]; taken {
		return model.Team{}, model.ErrTeamNameTaken
	}

	s.nextTeamID++
	t := model.Team{
		ID:          s.nextTeamID,
		EventID:     eventID,
		Name:        name,
		Description: description,
		CreatedAt:   s.now(),
	}
	s.teams[t.ID] = t
	names[name] = t.ID
	s.eventTeams[eventID] = append(s.eventTeams[eventID], t.ID)
	s.boardFor(eventID).add(t.ID, 0)
	return t, nil
}

func (s *MemStore) boardFor(eventID int64) *board {
	b, ok := s.boards[eventID]
	if !ok {
		b = newBoard()
		s.boards[eventID] = b
	}
	return b
}

// GetTeam implements Store.GetTeam.
func (s *MemStore) GetTeam(_ context.Context, id int64) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[id]
	if !ok {
		return model.Team{}, model.ErrTeamNotFound
	}
	return t, nil
}

// ListTeamsForEvent returns the teams of an event ordered by id.
func (s *MemStore) ListTeamsForEvent(_ context.Context, eventID int64) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, model.ErrEventNotFound
	}
	return s.teamsByID(s.eventTeams[eventID], 0), nil
}

// ListTeamsForUser returns every team the user joined, across events.
func (s *MemStore) ListTeamsForUser(_ context.Context, userID int64) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.teamsByID(s.userTeams[userID], 0), nil
}

// ListTeamsForUserInEvent returns the user's teams within one event.
func (s *MemStore) ListTeamsForUserInEvent(_ context.Context, eventID, userID int64) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, model.ErrEventNotFound
	}
	return s.teamsByID(s.userTeams[userID], eventID), nil
}

// teamsByID copies teams sorted by id, optionally filtered by event. Caller holds the lock.
func (s *MemStore) teamsByID(ids []int64, eventID int64) []model.Team {
	out := make([]model.Team, 0, len(ids))
	for _, id := range ids {
		t := s.teams[id]
		if eventID != 0 && t.EventID != eventID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddMember implements Store.AddMember. The membership key is recorded under
// the write lock together with the row, so the index and the tables agree.
func (s *MemStore) AddMember(ctx context.Context, m model.Membership) (bool, error) {
	defer observe("add_member", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.events[m.EventID]; !ok {
		return false, model.ErrEventNotFound
	}
	t, ok := s.teams[m.TeamID]
	if !ok {
		return false, model.ErrTeamNotFound
	}
	if t.EventID != m.EventID {
		return false, ErrForeignTeam
	}
	if _, ok := s.users[m.UserID]; !ok {
		return false, model.ErrUserNotFound
	}

	key := membershipKey(m.EventID, m.TeamID, m.UserID)
	if s.members.SeenAndRecord(ctx, key) {
		return false, nil
	}

	s.teamMembers[m.TeamID] = append(s.teamMembers[m.TeamID], m.UserID)
	s.userTeams[m.UserID] = append(s.userTeams[m.UserID], m.TeamID)
	return true, nil
}

// IsMember implements Store.IsMember.
func (s *MemStore) IsMember(ctx context.Context, teamID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[teamID]
	if !ok {
		return false, model.ErrTeamNotFound
	}
	return s.members.Seen(ctx, membershipKey(t.EventID, teamID, userID)), nil
}

// TeamMembers returns the users of a team in join order.
func (s *MemStore) TeamMembers(_ context.Context, teamID int64) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, model.ErrTeamNotFound
	}
	ids := s.teamMembers[teamID]
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[id])
	}
	return out, nil
}

// RecordCheckIns implements Store.RecordCheckIns. Every row is validated
// before any is applied.
func (s *MemStore) RecordCheckIns(_ context.Context, rows []model.CheckIn) ([]model.CheckIn, error) {
	defer observe("record_checkins", time.Now())

	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	for _, r := range rows {
		if _, ok := s.events[r.EventID]; !ok {
			return nil, model.ErrEventNotFound
		}
		t, ok := s.teams[r.TeamID]
		if !ok {
			return nil, model.ErrTeamNotFound
		}
		if t.EventID != r.EventID {
			return nil, ErrForeignTeam
		}
	}

	now := s.now()
	out := make([]model.CheckIn, 0, len(rows))
	for _, r := range rows {
		s.nextCheckInID++
		r.ID = s.nextCheckInID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		s.checkins[r.EventID] = insertCheckIn(s.checkins[r.EventID], r)

		t := s.teams[r.TeamID]
		t.Score++
		s.teams[r.TeamID] = t
		s.boardFor(r.EventID).increment(r.TeamID, 1)

		out = append(out, r)
	}
	return out, nil
}

// RecentCheckIns implements Store.RecentCheckIns.
func (s *MemStore) RecentCheckIns(_ context.Context, eventID int64, limit int) ([]model.CheckIn, error) {
	defer observe("recent_checkins", time.Now())

	if limit < 1 {
		return nil, model.ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, model.ErrEventNotFound
	}
	rows := s.checkins[eventID]
	n := min(limit, len(rows))
	out := make([]model.CheckIn, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

// insertCheckIn keeps an event's rows in reverse listing order, so the
// newest page is the tail read backwards. New rows normally land at the end.
func insertCheckIn(rows []model.CheckIn, c model.CheckIn) []model.CheckIn {
	i := sort.Search(len(rows), func(j int) bool { return listsBefore(rows[j], c) })
	return slices.Insert(rows, i, c)
}

// listsBefore orders recent check-ins: created_at desc, then id asc.
func listsBefore(a, b model.CheckIn) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Standings reads the event's board in rank order.
func (s *MemStore) Standings(_ context.Context, eventID int64) ([]model.Standing, error) {
	defer observe("standings", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, model.ErrEventNotFound
	}
	ids := s.boardFor(eventID).ordered()
	out := make([]model.Standing, 0, len(ids))
	for _, id := range ids {
		t := s.teams[id]
		out = append(out, model.Standing{
			TeamID:   t.ID,
			TeamName: t.Name,
			Score:    t.Score,
			TeamSize: len(s.teamMembers[id]),
		})
	}
	return out, nil
}

// CreateUser implements Store.CreateUser.
func (s *MemStore) CreateUser(_ context.Context, username, email string, passwordHash []byte) (model.User, error) {
	defer observe("create_user", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.User{}, ErrClosed
	}
	if _, ok := s.userByName[username]; ok {
		return model.User{}, model.ErrUserExists
	}
	if _, ok := s.userByEmail[email]; ok {
		return model.User{}, model.ErrUserExists
	}

	s.nextUserID++
	u := model.User{
		ID:           s.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.userByName[username] = u.ID
	s.userByEmail[email] = u.ID
	return u, nil
}

// GetUser implements Store.GetUser.
func (s *MemStore) GetUser(_ context.Context, id int64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

// GetUserByEmail implements Store.GetUserByEmail.
func (s *MemStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByEmail[email]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return s.users[id], nil
}

// Ping reports whether the store accepts writes.
func (s *MemStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the background goroutines and rejects further writes.
func (s *MemStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// startMetricsUpdater starts a background goroutine that publishes table sizes.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				n := len(s.events)
				s.mu.RUnlock()
				metrics.UpdateTotalEvents(n)
			}
		}
	}()
}
