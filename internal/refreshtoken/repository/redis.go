package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"authcore/internal/refreshtoken/domain"
)

const redisKeyPrefix = "authcore:refresh:"

type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository returns a refresh-token store backed by the given Redis client.
// Records are stored as hashes with a TTL matching the token expiry, so Redis
// reclaims expired records without a sweeper.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Save writes the record as a hash and sets its TTL to the remaining lifetime.
// Records already past expiry are not written.
func (r *RedisRepository) Save(ctx context.Context, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	key := redisKey(rec.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", rec.UserID,
		"token_hash", rec.TokenHash,
		"issued_at", rec.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// GetByID returns the record for id, or nil if missing or already expired out of Redis.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, err
	}
	return &domain.Record{
		ID:        id,
		UserID:    fields["user_id"],
		TokenHash: fields["token_hash"],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Persisted: true,
	}, nil
}

// DeleteByID removes the record for id. Deleting a missing id is a no-op.
func (r *RedisRepository) DeleteByID(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisKey(id)).Err()
}

// DeleteExpired is a no-op for Redis; key TTLs already reclaim expired records.
func (r *RedisRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
