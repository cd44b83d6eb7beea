package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/checkin/internal/domain/dedupe"
	"github.com/okian/checkin/internal/domain/model"
)

// MemoryRevocations keeps revoked token ids in process. Entries are dropped
// after the token TTL, by which time the token itself has expired.
type MemoryRevocations struct {
	seen dedupe.Deduper
}

// NewMemoryRevocations creates an in-process revocation list.
func NewMemoryRevocations(tokenTTL time.Duration) *MemoryRevocations {
	return &MemoryRevocations{seen: dedupe.NewInMemoryDeduper(dedupe.WithTTL(tokenTTL))}
}

// Revoke implements Revocations.Revoke.
func (m *MemoryRevocations) Revoke(ctx context.Context, jti string, _ time.Time) error {
	m.seen.SeenAndRecord(ctx, jti)
	return nil
}

// IsRevoked implements Revocations.IsRevoked.
func (m *MemoryRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return m.seen.Seen(ctx, jti), nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryRevocations) Sweep(ctx context.Context) int {
	return m.seen.Sweep(ctx)
}

// RedisRevocations keeps revoked token ids as expiring Redis keys, shared by
// every server instance.
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocations creates a Redis revocation list. Keys are prefix+"revoked:"+jti.
func NewRedisRevocations(client *redis.Client, prefix string) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRevocations) key(jti string) string { return r.prefix + "revoked:" + jti }

// Revoke implements Revocations.Revoke.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, until time.Time) error {
	const op = "auth.RedisRevocations.Revoke"

	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}
	return nil
}

// IsRevoked implements Revocations.IsRevoked.
func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "auth.RedisRevocations.IsRevoked"

	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	}
	return n > 0, nil
}
