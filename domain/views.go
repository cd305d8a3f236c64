package domain

import (
	"sort"
	"time"
)

// TodayHabit is a habit with its completion state for one day.
type TodayHabit struct {
	Habit
	Done bool `json:"done"`
}

// TodaySection holds one slot of the today view.
type TodaySection struct {
	TimeSlot TimeSlot     `json:"timeSlot"`
	Habits   []TodayHabit `json:"habits"`
}

// Today is the per-day checklist grouped by slot.
type Today struct {
	Date      string         `json:"date"`
	Sections  []TodaySection `json:"sections"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
}

// TodayView builds the checklist for day from the active habits.
func TodayView(habits []Habit, completions []Completion, day time.Time) Today {
	idx := indexCompletions(completions)
	date := FormatDate(day)
	active := activeHabits(habits)

	view := Today{Date: date, Sections: make([]TodaySection, 0, len(TimeSlots))}
	for _, slot := range TimeSlots {
		section := TodaySection{TimeSlot: slot, Habits: []TodayHabit{}}
		for _, h := range Group(active, slot) {
			done := idx.done(h.ID, date)
			section.Habits = append(section.Habits, TodayHabit{Habit: h, Done: done})
			view.Total++
			if done {
				view.Completed++
			}
		}
		view.Sections = append(view.Sections, section)
	}
	return view
}

// WeeklyHabit is one habit's Monday..Sunday checks.
type WeeklyHabit struct {
	Habit
	Days      [7]bool `json:"days"`
	Count     int     `json:"count"`
	TargetMet bool    `json:"targetMet"`
}

// Weekly is the week grid for the active habits.
type Weekly struct {
	WeekStart string        `json:"weekStart"`
	Habits    []WeeklyHabit `json:"habits"`
}

// WeeklyView builds the week grid for the week containing weekStart.
func WeeklyView(habits []Habit, completions []Completion, weekStart time.Time) Weekly {
	idx := indexCompletions(completions)
	start := WeekStart(weekStart)
	view := Weekly{WeekStart: FormatDate(start), Habits: []WeeklyHabit{}}

	for _, h := range orderedBySlot(activeHabits(habits)) {
		wh := WeeklyHabit{Habit: h}
		for d := 0; d < 7; d++ {
			if idx.done(h.ID, FormatDate(start.AddDate(0, 0, d))) {
				wh.Days[d] = true
				wh.Count++
			}
		}
		wh.TargetMet = wh.Count >= h.WeeklyTarget
		view.Habits = append(view.Habits, wh)
	}
	return view
}

// OverallHabit summarizes a habit's whole history.
type OverallHabit struct {
	Habit
	TotalCompletions int    `json:"totalCompletions"`
	FirstCompletion  string `json:"firstCompletion,omitempty"`
	LastCompletion   string `json:"lastCompletion,omitempty"`
	WeeksTargetMet   int    `json:"weeksTargetMet"`
}

// Overall is the all-time report.
type Overall struct {
	Habits           []OverallHabit `json:"habits"`
	TotalCompletions int            `json:"totalCompletions"`
}

// OverallView summarizes completions for every habit, archived ones included.
func OverallView(habits []Habit, completions []Completion) Overall {
	idx := indexCompletions(completions)
	view := Overall{Habits: []OverallHabit{}}

	for _, h := range orderedBySlot(habits) {
		oh := OverallHabit{Habit: h}
		days := make([]string, 0, len(idx[h.ID]))
		for day := range idx[h.ID] {
			days = append(days, day)
		}
		sort.Strings(days)

		perWeek := make(map[string]int)
		for _, day := range days {
			t, err := ParseDate(day)
			if err != nil {
				continue
			}
			perWeek[FormatDate(WeekStart(t))]++
			oh.TotalCompletions++
		}
		for _, n := range perWeek {
			if n >= h.WeeklyTarget {
				oh.WeeksTargetMet++
			}
		}
		if len(days) > 0 {
			oh.FirstCompletion = days[0]
			oh.LastCompletion = days[len(days)-1]
		}
		view.TotalCompletions += oh.TotalCompletions
		view.Habits = append(view.Habits, oh)
	}
	return view
}

func activeHabits(habits []Habit) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		if h.Active {
			out = append(out, h)
		}
	}
	return out
}

// orderedBySlot sorts habits by slot display order, then position.
func orderedBySlot(habits []Habit) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, slot := range TimeSlots {
		out = append(out, Group(habits, slot)...)
	}
	return out
}
