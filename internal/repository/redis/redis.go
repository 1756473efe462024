package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AppliedRepository records the last value the platform accepted for each
// (entity, change kind) pair.
type AppliedRepository struct {
	client *redis.Client
	prefix string
}

func NewAppliedRepository(client *redis.Client) *AppliedRepository {
	return &AppliedRepository{
		client: client,
		prefix: "applied",
	}
}

func (r *AppliedRepository) key(entityType, entityID, kind string) string {
	// key format: "applied:{entity_type}:{entity_id}:{kind}"
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, entityType, entityID, kind)
}

func (r *AppliedRepository) LastApplied(ctx context.Context, entityType, entityID, kind string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(entityType, entityID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get applied value from Redis: %w", err)
	}
	return val, true, nil
}

func (r *AppliedRepository) RecordApplied(ctx context.Context, entityType, entityID, kind, value string, ttl time.Duration) error {
	err := r.client.Set(ctx, r.key(entityType, entityID, kind), value, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store applied value in Redis: %w", err)
	}
	return nil
}

// Forget drops the record, used when a change is requeued by hand.
func (r *AppliedRepository) Forget(ctx context.Context, entityType, entityID, kind string) error {
	if err := r.client.Del(ctx, r.key(entityType, entityID, kind)).Err(); err != nil {
		return fmt.Errorf("failed to delete applied value: %w", err)
	}
	return nil
}
