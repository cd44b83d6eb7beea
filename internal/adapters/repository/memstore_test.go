package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/checkin/internal/domain/model"
)

func newTestStore(t testing.TB) *MemStore {
	t.Helper()
	s := NewMemStore(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var taskSeq atomic.Int64

func seedEvent(t testing.TB, s *MemStore) model.Event {
	t.Helper()
	now := time.Now()
	e, err := s.CreateEvent(context.Background(), fmt.Sprintf("task-%d", taskSeq.Add(1)), model.NewEvent{
		Name:      "spring",
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func TestMemStore_CreateEventIsIdempotentPerTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	in := model.NewEvent{Name: "spring", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}

	first, err := s.CreateEvent(ctx, "task-1", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.CreateEvent(ctx, "task-1", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same event for one task, got %d and %d", first.ID, second.ID)
	}
	if n, _ := s.CountEvents(ctx); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	other, _ := s.CreateEvent(ctx, "task-2", in)
	if other.ID == first.ID {
		t.Error("expected a new event for a new task")
	}

	events, _ := s.ListEvents(ctx)
	if len(events) != 2 || events[0].ID > events[1].ID {
		t.Errorf("expected 2 events ordered by id, got %+v", events)
	}
}

func TestMemStore_GetEventNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetEvent(context.Background(), 404); !errors.Is(err, model.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemStore_TeamNameUniquePerEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e1 := seedEvent(t, s)
	e2 := seedEvent(t, s)

	if _, err := s.CreateTeam(ctx, e1.ID, "Alpha", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.CreateTeam(ctx, e1.ID, "Alpha", ""); !errors.Is(err, model.ErrTeamNameTaken) {
		t.Errorf("expected ErrTeamNameTaken, got %v", err)
	}
	if _, err := s.CreateTeam(ctx, e2.ID, "Alpha", ""); err != nil {
		t.Errorf("expected the name to be free in another event, got %v", err)
	}
	if _, err := s.CreateTeam(ctx, 999, "Beta", ""); !errors.Is(err, model.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemStore_AddMemberConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := seedEvent(t, s)
	team, _ := s.CreateTeam(ctx, e.ID, "Alpha", "")
	user, _ := s.CreateUser(ctx, "user42", "u42@example.com", nil)

	const callers = 64
	var inserted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AddMember(ctx, model.Membership{EventID: e.ID, TeamID: team.ID, UserID: user.ID})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	if inserted.Load() != 1 {
		t.Errorf("expected exactly one insert, got %d", inserted.Load())
	}
	members, _ := s.TeamMembers(ctx, team.ID)
	if len(members) != 1 || members[0].Username != "user42" {
		t.Errorf("expected one member user42, got %+v", members)
	}
	if ok, _ := s.IsMember(ctx, team.ID, user.ID); !ok {
		t.Error("expected user to be a member")
	}
}

func TestMemStore_AddMemberRejectsForeignTeam(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e1 := seedEvent(t, s)
	e2 := seedEvent(t, s)
	team, _ := s.CreateTeam(ctx, e2.ID, "Alpha", "")
	user, _ := s.CreateUser(ctx, "user1", "u1@example.com", nil)

	_, err := s.AddMember(ctx, model.Membership{EventID: e1.ID, TeamID: team.ID, UserID: user.ID})
	if !errors.Is(err, model.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}
	_, err = s.AddMember(ctx, model.Membership{EventID: e2.ID, TeamID: team.ID, UserID: 77})
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemStore_RecordCheckInsConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := seedEvent(t, s)
	alpha, _ := s.CreateTeam(ctx, e.ID, "Alpha", "")
	beta, _ := s.CreateTeam(ctx, e.ID, "Beta", "")

	const k = 100
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordCheckIns(ctx, []model.CheckIn{{EventID: e.ID, TeamID: alpha.ID, UserID: 1}}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetTeam(ctx, alpha.ID)
	if got.Score != k {
		t.Errorf("expected score %d, got %d", k, got.Score)
	}

	standings, _ := s.Standings(ctx, e.ID)
	if len(standings) != 2 || standings[0].TeamID != alpha.ID || standings[1].TeamID != beta.ID {
		t.Errorf("expected Alpha ahead of Beta, got %+v", standings)
	}
}

func TestMemStore_RecordCheckInsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := seedEvent(t, s)
	alpha, _ := s.CreateTeam(ctx, e.ID, "Alpha", "")

	_, err := s.RecordCheckIns(ctx, []model.CheckIn{
		{EventID: e.ID, TeamID: alpha.ID, UserID: 1},
		{EventID: e.ID, TeamID: 999, UserID: 1},
	})
	if !errors.Is(err, model.ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
	got, _ := s.GetTeam(ctx, alpha.ID)
	if got.Score != 0 {
		t.Errorf("expected no partial score, got %d", got.Score)
	}
	recent, _ := s.RecentCheckIns(ctx, e.ID, 20)
	if len(recent) != 0 {
		t.Errorf("expected no rows, got %d", len(recent))
	}

	if _, err := s.RecordCheckIns(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestMemStore_RecentCheckInsOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemStore(ctx, WithClock(func() time.Time { return base }))
	defer s.Close()

	e := seedEvent(t, s)
	team, _ := s.CreateTeam(ctx, e.ID, "Alpha", "")

	// Two rows share a timestamp; ties break by id ascending.
	rows := []model.CheckIn{
		{EventID: e.ID, TeamID: team.ID, UserID: 1, CreatedAt: base.Add(time.Second)},
		{EventID: e.ID, TeamID: team.ID, UserID: 2, CreatedAt: base.Add(3 * time.Second)},
		{EventID: e.ID, TeamID: team.ID, UserID: 3, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, r := range rows {
		if _, err := s.RecordCheckIns(ctx, []model.CheckIn{r}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.RecentCheckIns(ctx, e.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].UserID != 2 || got[1].UserID != 3 {
		t.Errorf("expected users 2 then 3, got %d then %d", got[0].UserID, got[1].UserID)
	}

	// A row stamped earlier than the rows already stored lands in its place.
	late := model.CheckIn{EventID: e.ID, TeamID: team.ID, UserID: 4, CreatedAt: base.Add(2 * time.Second)}
	if _, err := s.RecordCheckIns(ctx, []model.CheckIn{late}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := s.RecentCheckIns(ctx, e.ID, 10)
	wantUsers := []int64{2, 3, 4, 1}
	if len(all) != len(wantUsers) {
		t.Fatalf("expected %d rows, got %d", len(wantUsers), len(all))
	}
	for i, u := range wantUsers {
		if all[i].UserID != u {
			t.Errorf("row %d: expected user %d, got %d", i, u, all[i].UserID)
		}
	}

	if _, err := s.RecentCheckIns(ctx, e.ID, 0); !errors.Is(err, model.ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := s.RecentCheckIns(ctx, 999, 5); !errors.Is(err, model.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemStore_UsersUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.CreateUser(ctx, "alice", "alice@example.com", []byte("hash"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice", "other@example.com", nil); !errors.Is(err, model.ErrUserExists) {
		t.Errorf("expected ErrUserExists for username, got %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice2", "alice@example.com", nil); !errors.Is(err, model.ErrUserExists) {
		t.Errorf("expected ErrUserExists for email, got %v", err)
	}
	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("expected to find alice by email, got %+v, %v", byEmail, err)
	}
	if _, err := s.GetUser(ctx, 999); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemStore_Close(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(ctx)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("expected second close to be a no-op, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after close, got %v", err)
	}
	if _, err := s.CreateUser(ctx, "x", "x@example.com", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func BenchmarkMemStore_RecordCheckIns(b *testing.B) {
	ctx := context.Background()
	s := newTestStore(b)
	e := seedEvent(b, s)
	teams := make([]model.Team, 50)
	for i := range teams {
		teams[i], _ = s.CreateTeam(ctx, e.ID, fmt.Sprintf("team-%d", i), "")
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			team := teams[i%len(teams)]
			_, _ = s.RecordCheckIns(ctx, []model.CheckIn{{EventID: e.ID, TeamID: team.ID, UserID: 1}})
			i++
		}
	})
}

func BenchmarkMemStore_Standings(b *testing.B) {
	ctx := context.Background()
	s := newTestStore(b)
	e := seedEvent(b, s)
	for i := 0; i < 500; i++ {
		team, _ := s.CreateTeam(ctx, e.ID, fmt.Sprintf("team-%d", i), "")
		for j := 0; j < i%7; j++ {
			_, _ = s.RecordCheckIns(ctx, []model.CheckIn{{EventID: e.ID, TeamID: team.ID, UserID: 1}})
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = s.Standings(ctx, e.ID)
		}
	})
}
