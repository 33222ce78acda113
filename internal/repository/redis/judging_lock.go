package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

var _ repository.JudgingLock = (*redisJudgingLock)(nil)

const lockKeyPrefix = "sentinel:judging:"

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisJudgingLock struct {
	client goredis.UniversalClient
}

// NewRedisJudgingLock creates a judging lock backed by SET NX with a TTL.
func NewRedisJudgingLock(client goredis.UniversalClient) repository.JudgingLock {
	return &redisJudgingLock{client: client}
}

func lockKey(userID, problemID int64) string {
	return fmt.Sprintf("%s%d:%d", lockKeyPrefix, userID, problemID)
}

// Acquire uses SET NX so only one grading run per (user, problem) holds the lock.
func (l *redisJudgingLock) Acquire(ctx context.Context, userID, problemID int64, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(userID, problemID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis: acquire judging lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *redisJudgingLock) Release(ctx context.Context, userID, problemID int64, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(userID, problemID)}, token).Err(); err != nil {
		return fmt.Errorf("redis: release judging lock: %w", err)
	}
	return nil
}
