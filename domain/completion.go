package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar day format used for completions.
const DateLayout = "2006-01-02"

// Completion marks a habit as done on a calendar day.
type Completion struct {
	HabitID string `json:"habitId"`
	Date    string `json:"date"`
}

// ParseDate parses a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", s)}
	}
	return t, nil
}

// FormatDate formats t as a calendar day.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WeekStart returns the Monday of the week containing t, at midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// completionIndex groups completion days by habit.
type completionIndex map[string]map[string]struct{}

func indexCompletions(completions []Completion) completionIndex {
	idx := make(completionIndex)
	for _, c := range completions {
		days, ok := idx[c.HabitID]
		if !ok {
			days = make(map[string]struct{})
			idx[c.HabitID] = days
		}
		days[c.Date] = struct{}{}
	}
	return idx
}

func (idx completionIndex) done(habitID, day string) bool {
	_, ok := idx[habitID][day]
	return ok
}
