package auth_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/checkin/internal/adapters/repository"
	"github.com/okian/checkin/internal/domain/auth"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAuth(t *testing.T) {
	Convey("Given an auth service over a memory store", t, func() {
		_ = logger.Init()
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		secret := []byte("test-secret")
		svc := auth.New(store, auth.NewMemoryRevocations(time.Hour), secret,
			auth.WithBcryptCost(bcrypt.MinCost),
			auth.WithTokenTTL(time.Hour))

		user, err := svc.Register(ctx, "walker", "Walker@Example.com", "s3cret!")
		So(err, ShouldBeNil)

		Convey("When the user registers", func() {
			Convey("Then the password is stored hashed and the email normalised", func() {
				stored, _ := store.GetUser(ctx, user.ID)
				So(stored.Email, ShouldEqual, "walker@example.com")
				So(string(stored.PasswordHash), ShouldNotEqual, "s3cret!")
			})

			Convey("Then registering again is a conflict", func() {
				_, err := svc.Register(ctx, "walker", "other@example.com", "s3cret!")
				So(errors.Is(err, model.ErrUserExists), ShouldBeTrue)
			})
		})

		Convey("When logging in with the right password", func() {
			session, err := svc.Login(ctx, "walker@example.com", "s3cret!")
			So(err, ShouldBeNil)

			Convey("Then the token verifies to the user", func() {
				So(session.UserID, ShouldEqual, user.ID)
				So(session.ExpiresAt.After(time.Now()), ShouldBeTrue)
				uid, err := svc.Verify(ctx, session.Token)
				So(err, ShouldBeNil)
				So(uid, ShouldEqual, user.ID)
			})

			Convey("Then logging out revokes the token", func() {
				So(svc.Logout(ctx, session.Token), ShouldBeNil)
				_, err := svc.Verify(ctx, session.Token)
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When the credentials are wrong", func() {
			_, badPass := svc.Login(ctx, "walker@example.com", "nope")
			_, badMail := svc.Login(ctx, "ghost@example.com", "s3cret!")

			Convey("Then both are invalid credentials", func() {
				So(errors.Is(badPass, model.ErrInvalidCredentials), ShouldBeTrue)
				So(errors.Is(badMail, model.ErrInvalidCredentials), ShouldBeTrue)
			})
		})

		Convey("When a token is forged, expired or garbage", func() {
			forger := auth.New(store, auth.NewMemoryRevocations(time.Hour), []byte("other"), auth.WithBcryptCost(bcrypt.MinCost))
			_, _ = forger.Register(ctx, "mallory", "m@example.com", "pass123")
			forged, _ := forger.Login(ctx, "m@example.com", "pass123")

			past := auth.New(store, auth.NewMemoryRevocations(time.Hour), secret,
				auth.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
			expired, _ := past.Login(ctx, "walker@example.com", "s3cret!")

			_, errForged := svc.Verify(ctx, forged.Token)
			_, errExpired := svc.Verify(ctx, expired.Token)
			_, errGarbage := svc.Verify(ctx, "not.a.token")

			Convey("Then all are unauthorized", func() {
				So(errors.Is(errForged, model.ErrInvalidToken), ShouldBeTrue)
				So(errors.Is(errExpired, model.ErrInvalidToken), ShouldBeTrue)
				So(errors.Is(errGarbage, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When the password exceeds what bcrypt accepts", func() {
			_, err := svc.Register(ctx, "long", "long@example.com", strings.Repeat("x", 100))

			Convey("Then it is invalid input", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})
		})
	})
}

func TestRedisRevocations(t *testing.T) {
	addr := os.Getenv("CHECKIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHECKIN_TEST_REDIS_ADDR not set")
	}

	Convey("Given a Redis revocation list", t, func() {
		ctx := context.Background()
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		revs := auth.NewRedisRevocations(client, "test:"+uuid.NewString()+":")

		Convey("When a token id is revoked", func() {
			So(revs.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)), ShouldBeNil)

			Convey("Then it reads as revoked and others do not", func() {
				yes, err := revs.IsRevoked(ctx, "jti-1")
				So(err, ShouldBeNil)
				So(yes, ShouldBeTrue)
				no, _ := revs.IsRevoked(ctx, "jti-2")
				So(no, ShouldBeFalse)
			})
		})

		Convey("When the token has already expired", func() {
			So(revs.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)), ShouldBeNil)

			Convey("Then nothing is stored", func() {
				yes, _ := revs.IsRevoked(ctx, "jti-old")
				So(yes, ShouldBeFalse)
			})
		})
	})
}
