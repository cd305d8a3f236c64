package domain

import "github.com/bytedance/sonic"

const (
	HabitCreated     = "habit-created"
	HabitsReordered  = "habits-reordered"
	HabitMoved       = "habit-moved"
	HabitArchived    = "habit-archived"
	HabitCompleted   = "habit-completed"
	HabitUncompleted = "habit-uncompleted"
	HabitEntityType  = "habit"
	SlotEntityType   = "time-slot"
)

// Event describes a change applied to a user's habits. Events are published
// after the write has been committed.
type Event struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
	UserID     string                 `json:"userId"`
}

// ReorderedEventData is the payload of HabitsReordered.
type ReorderedEventData struct {
	TimeSlot TimeSlot `json:"timeSlot"`
	IDs      []string `json:"ids"`
}

// MovedEventData is the payload of HabitMoved.
type MovedEventData struct {
	From     TimeSlot `json:"from"`
	To       TimeSlot `json:"to"`
	Position int      `json:"position"`
}

// CompletionEventData is the payload of HabitCompleted and HabitUncompleted.
type CompletionEventData struct {
	Date string `json:"date"`
}
