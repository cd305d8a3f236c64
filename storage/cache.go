package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/vnfma0218/habit-management/domain"
)

type backend interface {
	FetchHabits(ctx context.Context, userID string) ([]domain.Habit, error)
	FetchSlot(ctx context.Context, userID string, slot domain.TimeSlot) ([]domain.Habit, error)
	GetHabit(ctx context.Context, userID, id string) (domain.Habit, error)
	InsertHabit(ctx context.Context, userID string, h domain.Habit) error
	UpdatePlacement(ctx context.Context, userID string, habits []domain.Habit) error
	SetActive(ctx context.Context, userID, id string, active bool) error
	FetchCompletions(ctx context.Context, userID, from, to string) ([]domain.Completion, error)
	PutCompletion(ctx context.Context, userID string, c domain.Completion) error
	DeleteCompletion(ctx context.Context, userID string, c domain.Completion) error
	PublishEvents(ctx context.Context, events []domain.Event) error
}

// storeIfCurrentScript writes the habit list only while the user's cache
// generation still matches the one read before the backend call.
var storeIfCurrentScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Cache wraps a backend with Redis-backed caching of the habit list. Slot
// and single habit reads always go to the backend because writers need the
// row versions, which are not cached.
//
// Every write bumps a per-user generation before evicting, so a reader that
// fetched rows before the write cannot repopulate the list afterwards.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	if habits, ok := c.loadHabitsFromCache(ctx, userID); ok {
		return habits, nil
	}
	gen, genOK := c.generation(ctx, userID)

	habits, err := c.base.FetchHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeHabits(ctx, userID, gen, habits)
	}
	return habits, nil
}

func (c *Cache) FetchSlot(ctx context.Context, userID string, slot domain.TimeSlot) ([]domain.Habit, error) {
	return c.base.FetchSlot(ctx, userID, slot)
}

func (c *Cache) GetHabit(ctx context.Context, userID, id string) (domain.Habit, error) {
	return c.base.GetHabit(ctx, userID, id)
}

func (c *Cache) InsertHabit(ctx context.Context, userID string, h domain.Habit) error {
	if err := c.base.InsertHabit(ctx, userID, h); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) UpdatePlacement(ctx context.Context, userID string, habits []domain.Habit) error {
	if err := c.base.UpdatePlacement(ctx, userID, habits); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) SetActive(ctx context.Context, userID, id string, active bool) error {
	if err := c.base.SetActive(ctx, userID, id, active); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) FetchCompletions(ctx context.Context, userID, from, to string) ([]domain.Completion, error) {
	return c.base.FetchCompletions(ctx, userID, from, to)
}

func (c *Cache) PutCompletion(ctx context.Context, userID string, comp domain.Completion) error {
	return c.base.PutCompletion(ctx, userID, comp)
}

func (c *Cache) DeleteCompletion(ctx context.Context, userID string, comp domain.Completion) error {
	return c.base.DeleteCompletion(ctx, userID, comp)
}

func (c *Cache) PublishEvents(ctx context.Context, events []domain.Event) error {
	return c.base.PublishEvents(ctx, events)
}

func (c *Cache) loadHabitsFromCache(ctx context.Context, userID string) ([]domain.Habit, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, habitsCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, habitsCacheKey(userID)).Err()
		}
		return nil, false
	}
	var habits []domain.Habit
	if err := sonic.Unmarshal(data, &habits); err != nil {
		_ = c.redis.Del(ctx, habitsCacheKey(userID)).Err()
		return nil, false
	}
	return habits, true
}

func (c *Cache) generation(ctx context.Context, userID string) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey(userID)).Result()
	switch {
	case err == redis.Nil:
		return "0", true
	case err != nil:
		return "", false
	}
	return gen, true
}

func (c *Cache) storeHabits(ctx context.Context, userID, gen string, habits []domain.Habit) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(habits)
	if err != nil {
		return
	}
	keys := []string{habitsCacheKey(userID), generationKey(userID)}
	_ = storeIfCurrentScript.Run(ctx, c.redis, keys, gen, data, c.ttl.Milliseconds()).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Del(ctx, habitsCacheKey(userID))
		return nil
	})
}

func habitsCacheKey(userID string) string {
	return "habits:" + userID
}

func generationKey(userID string) string {
	return "habits-gen:" + userID
}
