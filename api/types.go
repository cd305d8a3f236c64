package api

import (
	"context"

	"github.com/vnfma0218/habit-management/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchHabits(ctx context.Context, userID string) ([]domain.Habit, error)
	FetchSlot(ctx context.Context, userID string, slot domain.TimeSlot) ([]domain.Habit, error)
	GetHabit(ctx context.Context, userID, id string) (domain.Habit, error)
	InsertHabit(ctx context.Context, userID string, h domain.Habit) error
	UpdatePlacement(ctx context.Context, userID string, habits []domain.Habit) error
	SetActive(ctx context.Context, userID, id string, active bool) error
	FetchCompletions(ctx context.Context, userID, from, to string) ([]domain.Completion, error)
	PutCompletion(ctx context.Context, userID string, c domain.Completion) error
	DeleteCompletion(ctx context.Context, userID string, c domain.Completion) error
}

// EventSink receives committed domain events.
type EventSink interface {
	PublishEvents(ctx context.Context, events []domain.Event) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// GroupLocker serializes writers of one user's time slot.
type GroupLocker interface {
	// Lock blocks until the slot is held or the wait budget is spent, in
	// which case ErrGroupBusy is returned. The returned func releases it.
	Lock(ctx context.Context, userID string, slot domain.TimeSlot) (func(context.Context) error, error)
}

// Notifier tells connected clients that a user's habits changed.
type Notifier interface {
	Notify(ctx context.Context, userID string) error
}

// EventPublisher hands committed events to the delivery pipeline.
type EventPublisher interface {
	Publish(userID string, events ...domain.Event)
}
