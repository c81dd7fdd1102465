package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scheduledKey = "publish:scheduled"

// RedisStore keeps scheduler entries in a Redis sorted set scored by due
// time. ZRem acts as the atomic claim: only the instance that removes the
// member dispatches it.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed scheduler store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

// Add stores the entry scored by its due time.
func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.client.ZAdd(ctx, scheduledKey, redis.Z{
		Score:  float64(e.Due.Unix()),
		Member: raw,
	}).Err(); err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// Claim returns entries due at or before now, removing each from the set
// first so no other instance dispatches it.
func (s *RedisStore) Claim(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	members, err := s.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore: %w", err)
	}

	var claimed []Entry
	for _, m := range members {
		removed, err := s.client.ZRem(ctx, scheduledKey, m).Result()
		if err != nil {
			return claimed, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue // another instance claimed it
		}
		var e Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			s.logger.Warn("invalid scheduler entry dropped", zap.Error(err))
			continue
		}
		claimed = append(claimed, e)
	}
	return claimed, nil
}

// CancelClip removes all pending entries for a clip.
func (s *RedisStore) CancelClip(ctx context.Context, clipID uuid.UUID) (int, error) {
	members, err := s.client.ZRange(ctx, scheduledKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("zrange: %w", err)
	}
	cancelled := 0
	for _, m := range members {
		var e Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue
		}
		if e.ClipID != clipID {
			continue
		}
		removed, err := s.client.ZRem(ctx, scheduledKey, m).Result()
		if err != nil {
			return cancelled, fmt.Errorf("zrem: %w", err)
		}
		cancelled += int(removed)
	}
	return cancelled, nil
}
