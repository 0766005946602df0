package availability

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
)

const DefaultSnapshotKey = "villapura:blocked-dates"

// RedisSnapshot keeps the last good feed result under one key.
type RedisSnapshot struct {
	rdb *redis.Client
	key string
}

func NewRedisSnapshot(rdb *redis.Client, key string) *RedisSnapshot {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshot{rdb: rdb, key: key}
}

func (r *RedisSnapshot) Save(ctx context.Context, ranges []BlockedRange) error {
	b, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, b, 0).Err()
}

func (r *RedisSnapshot) Load(ctx context.Context) ([]BlockedRange, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []BlockedRange
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
