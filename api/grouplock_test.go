package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnfma0218/habit-management/domain"
)

func TestGroupLockExclusive(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisGroupLocker(client, time.Minute, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := locker.Lock(ctx, "user", domain.Morning); !errors.Is(err, ErrGroupBusy) {
		t.Fatalf("expected ErrGroupBusy, got %v", err)
	}

	other, err := locker.Lock(ctx, "user", domain.Evening)
	if err != nil {
		t.Fatalf("other slot must be independent: %v", err)
	}
	if err := other(ctx); err != nil {
		t.Fatalf("unlock other: %v", err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	again, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = again(ctx)
}

func TestGroupLockWaitsForRelease(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisGroupLocker(client, time.Minute, time.Second)
	locker.retry = 5 * time.Millisecond
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = unlock(context.Background())
	}()

	second, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	_ = second(ctx)
}

func TestGroupLockReleaseOnlyByOwner(t *testing.T) {
	m, client := newTestRedis(t)
	locker := NewRedisGroupLocker(client, time.Minute, 10*time.Millisecond)
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and takeover by another writer.
	key := groupLockKey("user", domain.Morning)
	m.Del(key)
	current, err := locker.Lock(ctx, "user", domain.Morning)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}

	if err := stale(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if !m.Exists(key) {
		t.Fatal("stale holder must not release the new lock")
	}
	if err := current(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if m.Exists(key) {
		t.Fatal("expected lock to be released by its owner")
	}
}

func TestGroupLockHonoursContext(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisGroupLocker(client, time.Minute, time.Minute)

	unlock, err := locker.Lock(context.Background(), "user", domain.Morning)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer func() { _ = unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "user", domain.Morning); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGroupLockSerializesAppends(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisGroupLocker(client, time.Minute, 5*time.Second)
	locker.retry = time.Millisecond

	var (
		mu     sync.Mutex
		habits []domain.Habit
		wg     sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			unlock, err := locker.Lock(ctx, "user", domain.Morning)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer func() { _ = unlock(ctx) }()

			mu.Lock()
			snapshot := append([]domain.Habit(nil), habits...)
			mu.Unlock()
			pos := domain.NextPosition(snapshot, domain.Morning)
			time.Sleep(time.Millisecond)
			mu.Lock()
			habits = append(habits, domain.Habit{ID: string(rune('a' + i)), TimeSlot: domain.Morning, Position: pos})
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, h := range habits {
		if seen[h.Position] {
			t.Fatalf("duplicate position %d", h.Position)
		}
		seen[h.Position] = true
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct positions, got %d", len(seen))
	}
}
