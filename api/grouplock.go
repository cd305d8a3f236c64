package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnfma0218/habit-management/domain"
)

// ErrGroupBusy is returned when a slot lock could not be taken in time.
var ErrGroupBusy = errors.New("time slot is being modified, retry")

const defaultLockRetry = 25 * time.Millisecond

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another writer is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGroupLocker is a per user and slot mutex shared by all API
// instances. Creation, reorder and move of one slot run one at a time, which
// keeps NextPosition from handing the same position to two writers.
type RedisGroupLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisGroupLocker creates a locker. ttl bounds how long a crashed holder
// can block the slot, wait bounds how long Lock polls before giving up.
func NewRedisGroupLocker(client *redis.Client, ttl, wait time.Duration) *RedisGroupLocker {
	return &RedisGroupLocker{client: client, ttl: ttl, wait: wait, retry: defaultLockRetry}
}

func groupLockKey(userID string, slot domain.TimeSlot) string {
	return "lock:habits:" + userID + ":" + string(slot)
}

// Lock acquires the slot lock.
func (l *RedisGroupLocker) Lock(ctx context.Context, userID string, slot domain.TimeSlot) (func(context.Context) error, error) {
	key := groupLockKey(userID, slot)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			lockContention.Inc()
			return nil, ErrGroupBusy
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
