package domain

import (
	"strings"
	"time"
)

// TimeSlot is the time-of-day group a habit belongs to.
type TimeSlot string

const (
	Morning   TimeSlot = "morning"
	Afternoon TimeSlot = "afternoon"
	Evening   TimeSlot = "evening"
)

// TimeSlots lists the slots in display order.
var TimeSlots = []TimeSlot{Morning, Afternoon, Evening}

// ParseTimeSlot returns the slot named by s.
func ParseTimeSlot(s string) (TimeSlot, bool) {
	switch TimeSlot(s) {
	case Morning, Afternoon, Evening:
		return TimeSlot(s), true
	}
	return "", false
}

// Valid reports whether ts is one of the known slots.
func (ts TimeSlot) Valid() bool {
	_, ok := ParseTimeSlot(string(ts))
	return ok
}

const (
	MinWeeklyTarget = 1
	MaxWeeklyTarget = 7
)

// Habit represents a single trackable habit owned by a user.
type Habit struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WeeklyTarget int       `json:"weeklyTarget"`
	TimeSlot     TimeSlot  `json:"timeSlot"`
	TimeText     string    `json:"timeText,omitempty"`
	Goal         string    `json:"goal,omitempty"`
	Icon         string    `json:"icon"`
	Color        string    `json:"color"`
	Position     int       `json:"position"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`

	// Version is the storage ETag the habit was read at.
	Version string `json:"-"`
}

// HabitInput carries the fields of the habit form.
type HabitInput struct {
	Name         string `json:"name"`
	WeeklyTarget int    `json:"weeklyTarget"`
	TimeSlot     string `json:"timeSlot"`
	TimeText     string `json:"timeText,omitempty"`
	Goal         string `json:"goal,omitempty"`
	Icon         string `json:"icon"`
	Color        string `json:"color"`
}

// Validate normalizes the input in place and checks the required fields.
// The first failing field is reported as a *ValidationError.
func (in *HabitInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.TimeText = strings.TrimSpace(in.TimeText)
	in.Goal = strings.TrimSpace(in.Goal)
	in.Icon = strings.TrimSpace(in.Icon)
	in.Color = strings.TrimSpace(in.Color)

	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.WeeklyTarget < MinWeeklyTarget || in.WeeklyTarget > MaxWeeklyTarget {
		return &ValidationError{Field: "weeklyTarget", Message: "weekly target must be between 1 and 7"}
	}
	if _, ok := ParseTimeSlot(in.TimeSlot); !ok {
		return &ValidationError{Field: "timeSlot", Message: "time slot must be one of morning, afternoon, evening"}
	}
	if in.Icon == "" {
		return &ValidationError{Field: "icon", Message: "icon is required"}
	}
	if in.Color == "" {
		return &ValidationError{Field: "color", Message: "color is required"}
	}
	return nil
}

// NewHabit builds an active habit from validated input. Position is left to
// the caller, see NextPosition.
func NewHabit(id string, in HabitInput, now time.Time) Habit {
	return Habit{
		ID:           id,
		Name:         in.Name,
		WeeklyTarget: in.WeeklyTarget,
		TimeSlot:     TimeSlot(in.TimeSlot),
		TimeText:     in.TimeText,
		Goal:         in.Goal,
		Icon:         in.Icon,
		Color:        in.Color,
		Active:       true,
		CreatedAt:    now.UTC(),
	}
}
