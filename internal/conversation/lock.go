package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// HandleReply is a read-modify-write on shared state with no optimistic
// concurrency check, so reply jobs for one conversation must never overlap.
// Lock is a Redis mutex keyed by conversation ID enforcing that.

// ErrLockHeld indicates another worker currently owns the conversation.
var ErrLockHeld = errors.New("conversation: lock held by another worker")

const defaultLockTTL = 30 * time.Second

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock serializes reply processing per conversation.
type Lock struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLock creates a lock manager. TTL bounds how long a crashed worker can
// block a conversation (0 means 30s).
func NewLock(redisClient *redis.Client, ttl time.Duration) *Lock {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Lock{redis: redisClient, ttl: ttl}
}

// Acquire takes the lock for a conversation and returns a release token.
// Returns ErrLockHeld when another worker owns it; callers should fail the
// job and let the queue redeliver.
func (l *Lock) Acquire(ctx context.Context, conversationID string) (string, error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, lockKey(conversationID), token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("conversation: failed to acquire lock: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// Release frees the lock if the token still owns it. A lock that already
// expired releases as a no-op.
func (l *Lock) Release(ctx context.Context, conversationID, token string) error {
	if err := releaseScript.Run(ctx, l.redis, []string{lockKey(conversationID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("conversation: failed to release lock: %w", err)
	}
	return nil
}

func lockKey(id string) string {
	return fmt.Sprintf("conversation_lock:%s", id)
}
