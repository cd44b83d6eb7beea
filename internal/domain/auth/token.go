package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/checkin/internal/domain/model"
)

type claims struct {
	id        string
	userID    int64
	expiresAt time.Time
}

func (s *Service) issue(userID int64) (Session, error) {
	now := s.now()
	exp := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": userID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: signed, UserID: userID, ExpiresAt: time.Unix(exp.Unix(), 0).UTC()}, nil
}

func (s *Service) parse(raw string) (claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return claims{}, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	m, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return claims{}, model.ErrInvalidToken
	}
	uid, ok := m["uid"].(float64)
	if !ok || uid <= 0 {
		return claims{}, fmt.Errorf("%w: missing uid", model.ErrInvalidToken)
	}
	jti, ok := m["jti"].(string)
	if !ok || jti == "" {
		return claims{}, fmt.Errorf("%w: missing jti", model.ErrInvalidToken)
	}
	exp, err := m.GetExpirationTime()
	if err != nil || exp == nil {
		return claims{}, fmt.Errorf("%w: missing exp", model.ErrInvalidToken)
	}
	return claims{id: jti, userID: int64(uid), expiresAt: exp.Time}, nil
}
