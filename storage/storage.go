package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/vnfma0218/habit-management/domain"
)

// MaxTransactionSize is the entity limit of a single table batch.
const MaxTransactionSize = 100

// ErrTooManyHabits is returned when a slot no longer fits in one batch.
var ErrTooManyHabits = errors.New("too many habits in time slot")

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	habitTable      *aztables.Client
	completionTable *aztables.Client
	eventQueue      *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string. The
// event queue is optional; an empty name disables event publication.
func New(connStr, habitsTable, completionsTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		habitTable:      svc.NewClient(habitsTable),
		completionTable: svc.NewClient(completionsTable),
	}
	if eventsQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	s.eventQueue = q
	return s, nil
}

// FetchHabits retrieves every habit of the user, archived ones included.
func (s *Storage) FetchHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	return s.listHabits(ctx, habitsFilter(userID, ""))
}

// FetchSlot retrieves the habits of one time slot.
func (s *Storage) FetchSlot(ctx context.Context, userID string, slot domain.TimeSlot) ([]domain.Habit, error) {
	return s.listHabits(ctx, habitsFilter(userID, slot))
}

func (s *Storage) listHabits(ctx context.Context, filter string) ([]domain.Habit, error) {
	pager := s.habitTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	habits := []domain.Habit{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			h, err := decodeHabitEntity(e)
			if err != nil {
				return nil, err
			}
			habits = append(habits, h)
		}
	}
	return habits, nil
}

// GetHabit retrieves a single habit.
func (s *Storage) GetHabit(ctx context.Context, userID, id string) (domain.Habit, error) {
	resp, err := s.habitTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Habit{}, mapError(err, id)
	}
	h, err := decodeHabitEntity(resp.Value)
	if err != nil {
		return domain.Habit{}, err
	}
	h.Version = string(resp.ETag)
	return h, nil
}

// InsertHabit adds a new habit row. It fails if the id is already taken.
func (s *Storage) InsertHabit(ctx context.Context, userID string, h domain.Habit) error {
	payload, err := sonic.Marshal(newHabitEntity(userID, h))
	if err != nil {
		return err
	}
	if _, err := s.habitTable.AddEntity(ctx, payload, nil); err != nil {
		return mapError(err, h.ID)
	}
	return nil
}

// UpdatePlacement writes slot and position of the given habits in one
// batch transaction. Every row is matched against the version it was read
// at, so either all rows change or none does.
func (s *Storage) UpdatePlacement(ctx context.Context, userID string, habits []domain.Habit) error {
	if len(habits) == 0 {
		return nil
	}
	if len(habits) > MaxTransactionSize {
		return fmt.Errorf("%w: %d", ErrTooManyHabits, len(habits))
	}
	actions := make([]aztables.TransactionAction, 0, len(habits))
	for _, h := range habits {
		payload, err := sonic.Marshal(newPlacementUpdate(userID, h))
		if err != nil {
			return err
		}
		etag := azcore.ETagAny
		if h.Version != "" {
			etag = azcore.ETag(h.Version)
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
			IfMatch:    &etag,
		})
	}
	if _, err := s.habitTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return mapError(err, "")
	}
	return nil
}

// SetActive archives or restores a habit.
func (s *Storage) SetActive(ctx context.Context, userID, id string, active bool) error {
	payload, err := sonic.Marshal(activeUpdate{
		entity:     entity{PartitionKey: userID, RowKey: id},
		Active:     active,
		ActiveType: edmBoolean,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.habitTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return mapError(err, id)
	}
	return nil
}

// FetchCompletions lists completions with from <= date <= to. Empty bounds
// are open.
func (s *Storage) FetchCompletions(ctx context.Context, userID, from, to string) ([]domain.Completion, error) {
	filter := completionsFilter(userID, from, to)
	pager := s.completionTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	completions := []domain.Completion{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			c, err := decodeCompletionEntity(e)
			if err != nil {
				return nil, err
			}
			completions = append(completions, c)
		}
	}
	return completions, nil
}

// PutCompletion records a completion. Recording the same day twice is a no-op.
func (s *Storage) PutCompletion(ctx context.Context, userID string, c domain.Completion) error {
	payload, err := sonic.Marshal(newCompletionEntity(userID, c))
	if err != nil {
		return err
	}
	_, err = s.completionTable.UpsertEntity(ctx, payload, nil)
	return err
}

// DeleteCompletion removes a completion. Missing rows are ignored.
func (s *Storage) DeleteCompletion(ctx context.Context, userID string, c domain.Completion) error {
	et := azcore.ETagAny
	_, err := s.completionTable.DeleteEntity(ctx, userID, completionKey(c.HabitID, c.Date), &aztables.DeleteEntityOptions{IfMatch: &et})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil
		}
		return err
	}
	return nil
}

// PublishEvents sends the given events to the event queue.
func (s *Storage) PublishEvents(ctx context.Context, events []domain.Event) error {
	if s.eventQueue == nil {
		return nil
	}
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// mapError translates table service status codes into domain errors.
func mapError(err error, id string) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case 404:
		if id == "" {
			return domain.ErrHabitNotFound
		}
		return fmt.Errorf("%w: %s", domain.ErrHabitNotFound, id)
	case 409, 412:
		return fmt.Errorf("%w: status %d", domain.ErrConcurrencyConflict, respErr.StatusCode)
	}
	return err
}
