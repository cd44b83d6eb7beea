// Package postgres implements repository.Store on PostgreSQL through pgx.
//
// Uniqueness lives in the schema: memberships are keyed by
// (event_id, team_id, user_id) and inserted with ON CONFLICT DO NOTHING, team
// names are unique per event and events are unique per provisioning task.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/checkin/internal/adapters/repository"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/metrics"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"

	constraintUsersUsername = "users_username_key"
	constraintUsersEmail    = "users_email_key"
	constraintTeamName      = "teams_event_name_key"
	constraintMemberUser    = "memberships_user_id_fkey"
	constraintCheckInUser   = "checkins_user_id_fkey"
)

var _ repository.Store = (*Store)(nil)

// Store is a pgxpool backed repository.Store.
type Store struct {
	pool     *pgxpool.Pool
	maxConns int32
	now      func() time.Time
}

// Connect parses dsn, opens the pool and verifies connectivity.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	const op = "postgres.Connect"

	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}
	if s.maxConns > 0 {
		cfg.MaxConns = s.maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}
	s.pool = pool

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// unavailable records a storage failure and wraps it into the taxonomy.
func unavailable(op string, err error) error {
	metrics.RecordStorageError(op)
	return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
}

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func observe(op string, start time.Time) {
	metrics.RecordStorageLatency(op, float64(time.Since(start).Milliseconds()))
}

// Ping checks the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	const op = "postgres.Ping"

	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const eventColumns = "id, COALESCE(task_id, ''), name, description, start_time, end_time, created_at"

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.TaskID, &e.Name, &e.Description, &e.StartTime, &e.EndTime, &e.CreatedAt)
	return e, err
}

// CreateEvent inserts the event or returns the one already created by taskID.
func (s *Store) CreateEvent(ctx context.Context, taskID string, in model.NewEvent) (model.Event, error) {
	const op = "postgres.CreateEvent"
	defer observe("create_event", time.Now())

	query := `INSERT INTO events (task_id, name, description, start_time, end_time, created_at)
		VALUES (NULLIF(@taskID, ''), @name, @description, @start, @end, @createdAt)
		ON CONFLICT (task_id) DO UPDATE SET task_id = EXCLUDED.task_id
		RETURNING ` + eventColumns
	args := pgx.NamedArgs{
		"taskID":      taskID,
		"name":        in.Name,
		"description": in.Description,
		"start":       in.StartTime,
		"end":         in.EndTime,
		"createdAt":   s.now(),
	}

	e, err := scanEvent(s.pool.QueryRow(ctx, query, args))
	if err != nil {
		return model.Event{}, unavailable(op, err)
	}
	return e, nil
}

// GetEvent implements repository.Store.
func (s *Store) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	const op = "postgres.GetEvent"

	e, err := scanEvent(s.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, fmt.Errorf("%s: %w", op, model.ErrEventNotFound)
		}
		return model.Event{}, unavailable(op, err)
	}
	return e, nil
}

// ListEvents implements repository.Store.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	const op = "postgres.ListEvents"

	rows, err := s.pool.Query(ctx, "SELECT "+eventColumns+" FROM events ORDER BY id")
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// CountEvents implements repository.Store.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	const op = "postgres.CountEvents"

	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, unavailable(op, err)
	}
	return n, nil
}

func (s *Store) eventExists(ctx context.Context, op string, id int64) error {
	var ok bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)", id).Scan(&ok); err != nil {
		return unavailable(op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, model.ErrEventNotFound)
	}
	return nil
}

const teamColumns = "id, event_id, name, description, score, created_at"

func scanTeam(row pgx.Row) (model.Team, error) {
	var t model.Team
	err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.Description, &t.Score, &t.CreatedAt)
	return t, err
}

func collectTeams(op string, rows pgx.Rows, err error) ([]model.Team, error) {
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]model.Team, 0)
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// CreateTeam implements repository.Store.
func (s *Store) CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error) {
	const op = "postgres.CreateTeam"
	defer observe("create_team", time.Now())

	query := `INSERT INTO teams (event_id, name, description, created_at)
		VALUES (@eventID, @name, @description, @createdAt)
		RETURNING ` + teamColumns
	args := pgx.NamedArgs{
		"eventID":     eventID,
		"name":        name,
		"description": description,
		"createdAt":   s.now(),
	}

	t, err := scanTeam(s.pool.QueryRow(ctx, query, args))
	if err != nil {
		switch code, constraint := pgCode(err); {
		case code == codeUniqueViolation && constraint == constraintTeamName:
			return model.Team{}, fmt.Errorf("%s: %w", op, model.ErrTeamNameTaken)
		case code == codeForeignKeyViolation:
			return model.Team{}, fmt.Errorf("%s: %w", op, model.ErrEventNotFound)
		}
		return model.Team{}, unavailable(op, err)
	}
	return t, nil
}

// GetTeam implements repository.Store.
func (s *Store) GetTeam(ctx context.Context, id int64) (model.Team, error) {
	const op = "postgres.GetTeam"

	t, err := scanTeam(s.pool.QueryRow(ctx, "SELECT "+teamColumns+" FROM teams WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Team{}, fmt.Errorf("%s: %w", op, model.ErrTeamNotFound)
		}
		return model.Team{}, unavailable(op, err)
	}
	return t, nil
}

// ListTeamsForEvent implements repository.Store.
func (s *Store) ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error) {
	const op = "postgres.ListTeamsForEvent"

	if err := s.eventExists(ctx, op, eventID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+teamColumns+" FROM teams WHERE event_id = $1 ORDER BY id", eventID)
	return collectTeams(op, rows, err)
}

// ListTeamsForUser implements repository.Store.
func (s *Store) ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error) {
	const op = "postgres.ListTeamsForUser"

	query := `SELECT t.id, t.event_id, t.name, t.description, t.score, t.created_at
		FROM teams t JOIN memberships m ON m.team_id = t.id
		WHERE m.user_id = $1 ORDER BY t.id`
	rows, err := s.pool.Query(ctx, query, userID)
	return collectTeams(op, rows, err)
}

// ListTeamsForUserInEvent implements repository.Store.
func (s *Store) ListTeamsForUserInEvent(ctx context.Context, eventID, userID int64) ([]model.Team, error) {
	const op = "postgres.ListTeamsForUserInEvent"

	if err := s.eventExists(ctx, op, eventID); err != nil {
		return nil, err
	}
	query := `SELECT t.id, t.event_id, t.name, t.description, t.score, t.created_at
		FROM teams t JOIN memberships m ON m.team_id = t.id
		WHERE m.event_id = $1 AND m.user_id = $2 ORDER BY t.id`
	rows, err := s.pool.Query(ctx, query, eventID, userID)
	return collectTeams(op, rows, err)
}

// AddMember inserts the membership with ON CONFLICT DO NOTHING. The row
// count tells the single winner apart from concurrent duplicates.
func (s *Store) AddMember(ctx context.Context, m model.Membership) (bool, error) {
	const op = "postgres.AddMember"
	defer observe("add_member", time.Now())

	team, err := s.GetTeam(ctx, m.TeamID)
	if err != nil {
		return false, err
	}
	if team.EventID != m.EventID {
		return false, fmt.Errorf("%s: %w", op, repository.ErrForeignTeam)
	}

	joined := m.JoinedAt
	if joined.IsZero() {
		joined = s.now()
	}
	query := `INSERT INTO memberships (event_id, team_id, user_id, joined_at)
		VALUES (@eventID, @teamID, @userID, @joinedAt)
		ON CONFLICT DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, pgx.NamedArgs{
		"eventID":  m.EventID,
		"teamID":   m.TeamID,
		"userID":   m.UserID,
		"joinedAt": joined,
	})
	if err != nil {
		if code, constraint := pgCode(err); code == codeForeignKeyViolation {
			if constraint == constraintMemberUser {
				return false, fmt.Errorf("%s: %w", op, model.ErrUserNotFound)
			}
			return false, fmt.Errorf("%s: %w", op, model.ErrTeamNotFound)
		}
		return false, unavailable(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsMember implements repository.Store.
func (s *Store) IsMember(ctx context.Context, teamID, userID int64) (bool, error) {
	const op = "postgres.IsMember"

	var ok bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM memberships WHERE team_id = $1 AND user_id = $2)",
		teamID, userID).Scan(&ok)
	if err != nil {
		return false, unavailable(op, err)
	}
	return ok, nil
}

// TeamMembers implements repository.Store.
func (s *Store) TeamMembers(ctx context.Context, teamID int64) ([]model.User, error) {
	const op = "postgres.TeamMembers"

	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	query := `SELECT u.id, u.username, u.email, u.created_at
		FROM users u JOIN memberships m ON m.user_id = u.id
		WHERE m.team_id = $1 ORDER BY m.joined_at, u.id`
	rows, err := s.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// RecordCheckIns inserts the rows and bumps team scores in one transaction.
// The score update is a relative increment, never a read-modify-write.
func (s *Store) RecordCheckIns(ctx context.Context, rows []model.CheckIn) (_ []model.CheckIn, err error) {
	const op = "postgres.RecordCheckIns"
	defer observe("record_checkins", time.Now())

	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrEmptyBatch)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.now()
	out := make([]model.CheckIn, 0, len(rows))
	for _, r := range rows {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}

		tag, execErr := tx.Exec(ctx,
			"UPDATE teams SET score = score + 1 WHERE id = $1 AND event_id = $2",
			r.TeamID, r.EventID)
		if execErr != nil {
			return nil, unavailable(op, execErr)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%s: %w", op, model.ErrTeamNotFound)
		}

		insertErr := tx.QueryRow(ctx,
			`INSERT INTO checkins (event_id, team_id, user_id, comment, photo_url, created_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			r.EventID, r.TeamID, r.UserID, r.Comment, r.PhotoURL, r.CreatedAt).Scan(&r.ID)
		if insertErr != nil {
			if code, constraint := pgCode(insertErr); code == codeForeignKeyViolation && constraint == constraintCheckInUser {
				return nil, fmt.Errorf("%s: %w", op, model.ErrUserNotFound)
			}
			return nil, unavailable(op, insertErr)
		}
		out = append(out, r)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// RecentCheckIns implements repository.Store.
func (s *Store) RecentCheckIns(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error) {
	const op = "postgres.RecentCheckIns"
	defer observe("recent_checkins", time.Now())

	if limit < 1 {
		return nil, fmt.Errorf("%s: %w", op, model.ErrInvalidLimit)
	}
	if err := s.eventExists(ctx, op, eventID); err != nil {
		return nil, err
	}

	query := `SELECT id, event_id, team_id, user_id, comment, photo_url, created_at
		FROM checkins WHERE event_id = $1
		ORDER BY created_at DESC, id ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, eventID, limit)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]model.CheckIn, 0, limit)
	for rows.Next() {
		var c model.CheckIn
		if err := rows.Scan(&c.ID, &c.EventID, &c.TeamID, &c.UserID, &c.Comment, &c.PhotoURL, &c.CreatedAt); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// Standings reads team scores through the (event_id, score DESC, id) index.
func (s *Store) Standings(ctx context.Context, eventID int64) ([]model.Standing, error) {
	const op = "postgres.Standings"
	defer observe("standings", time.Now())

	if err := s.eventExists(ctx, op, eventID); err != nil {
		return nil, err
	}

	query := `SELECT t.id, t.name, t.score,
			(SELECT COUNT(*) FROM memberships m WHERE m.team_id = t.id)
		FROM teams t WHERE t.event_id = $1
		ORDER BY t.score DESC, t.id ASC`
	rows, err := s.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]model.Standing, 0)
	for rows.Next() {
		var st model.Standing
		if err := rows.Scan(&st.TeamID, &st.TeamName, &st.Score, &st.TeamSize); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

const userColumns = "id, username, email, password_hash, created_at"

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// CreateUser implements repository.Store.
func (s *Store) CreateUser(ctx context.Context, username, email string, passwordHash []byte) (model.User, error) {
	const op = "postgres.CreateUser"
	defer observe("create_user", time.Now())

	query := `INSERT INTO users (username, email, password_hash, created_at)
		VALUES (@username, @email, @passwordHash, @createdAt)
		RETURNING ` + userColumns
	args := pgx.NamedArgs{
		"username":     username,
		"email":        email,
		"passwordHash": passwordHash,
		"createdAt":    s.now(),
	}

	u, err := scanUser(s.pool.QueryRow(ctx, query, args))
	if err != nil {
		if code, constraint := pgCode(err); code == codeUniqueViolation &&
			(constraint == constraintUsersUsername || constraint == constraintUsersEmail) {
			return model.User{}, fmt.Errorf("%s: %w", op, model.ErrUserExists)
		}
		return model.User{}, unavailable(op, err)
	}
	return u, nil
}

// GetUser implements repository.Store.
func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	const op = "postgres.GetUser"

	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("%s: %w", op, model.ErrUserNotFound)
		}
		return model.User{}, unavailable(op, err)
	}
	return u, nil
}

// GetUserByEmail implements repository.Store.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	const op = "postgres.GetUserByEmail"

	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("%s: %w", op, model.ErrUserNotFound)
		}
		return model.User{}, unavailable(op, err)
	}
	return u, nil
}

// Exec runs a statement without arguments, used to apply schema files.
func (s *Store) Exec(ctx context.Context, sql string) error {
	const op = "postgres.Exec"

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return unavailable(op, err)
	}
	return nil
}
