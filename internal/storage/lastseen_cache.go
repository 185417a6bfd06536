package storage

import (
	"context"
	"errors"
	"time"

	"pinchat/backend/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// onlineMarker is cached for users whose lastSeen column is NULL.
const onlineMarker = "online"

func lastSeenKey(userID string) string {
	return config.LastSeenKeyPrefix + userID
}

// cacheLastSeen mirrors a lastSeen write into Redis. Failures only cost a
// cache miss later, so they are logged and dropped.
func (s *Service) cacheLastSeen(ctx context.Context, userID string, ts *time.Time) {
	if s.Redis == nil {
		return
	}
	value := onlineMarker
	if ts != nil {
		value = ts.UTC().Format(time.RFC3339Nano)
	}
	if err := s.Redis.Set(ctx, lastSeenKey(userID), value, config.LastSeenCacheTTL).Err(); err != nil {
		s.Log.Warn("cache lastSeen", zap.String("user_id", userID), zap.Error(err))
	}
}

// cachedLastSeen returns (value, true) on a cache hit.
func (s *Service) cachedLastSeen(ctx context.Context, userID string) (*time.Time, bool) {
	if s.Redis == nil {
		return nil, false
	}
	raw, err := s.Redis.Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.Log.Warn("read cached lastSeen", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if raw == onlineMarker {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.Log.Warn("corrupt cached lastSeen", zap.String("user_id", userID), zap.String("value", raw))
		s.Redis.Del(ctx, lastSeenKey(userID))
		return nil, false
	}
	return &ts, true
}
