// Package auth registers users, issues session tokens and revokes them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

const defaultTokenTTL = 24 * time.Hour

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, username, email string, passwordHash []byte) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

// Revocations remembers logged-out token ids until they expire.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Session is an issued login token.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service implements registration, login and token checks.
type Service struct {
	users       UserStore
	revocations Revocations
	secret      []byte
	tokenTTL    time.Duration
	cost        int
	now         func() time.Time
	logger      logger.Logger
}

// New creates the auth service. Tokens are signed with secret.
func New(users UserStore, revocations Revocations, secret []byte, opts ...Option) *Service {
	s := &Service{
		users:       users,
		revocations: revocations,
		secret:      secret,
		tokenTTL:    defaultTokenTTL,
		cost:        bcrypt.DefaultCost,
		now:         time.Now,
		logger:      logger.Get().Named("auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, username, email, password string) (model.User, error) {
	const op = "auth.Register"

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || password == "" {
		return model.User{}, fmt.Errorf("%s: %w: username, email and password are required", op, model.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return model.User{}, fmt.Errorf("%s: %w: password too long", op, model.ErrInvalidInput)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.CreateUser(ctx, username, email, hash)
	if err != nil {
		metrics.RecordAuth("register", "rejected")
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordAuth("register", "ok")

	s.logger.Info(ctx, "user registered", logger.Int64("user_id", user.ID), logger.String("username", user.Username))
	return user, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, model.ErrNotFound) {
		metrics.RecordAuth("login", "rejected")
		return Session{}, fmt.Errorf("%s: %w", op, model.ErrInvalidCredentials)
	}
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		metrics.RecordAuth("login", "rejected")
		s.logger.Warn(ctx, "invalid credentials", logger.Int64("user_id", user.ID))
		return Session{}, fmt.Errorf("%s: %w", op, model.ErrInvalidCredentials)
	}

	session, err := s.issue(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordAuth("login", "ok")
	return session, nil
}

// Logout revokes token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	const op = "auth.Logout"

	c, err := s.parse(token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.revocations.Revoke(ctx, c.id, c.expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordAuth("logout", "ok")
	return nil
}

// Verify returns the user a valid, unrevoked token was issued to.
func (s *Service) Verify(ctx context.Context, token string) (int64, error) {
	const op = "auth.Verify"

	c, err := s.parse(token)
	if err != nil {
		metrics.RecordAuth("verify", "rejected")
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	revoked, err := s.revocations.IsRevoked(ctx, c.id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		metrics.RecordAuth("verify", "revoked")
		return 0, fmt.Errorf("%s: %w: token revoked", op, model.ErrInvalidToken)
	}
	return c.userID, nil
}
