package domain

import (
	"testing"
	"time"
)

func TestWeekStart(t *testing.T) {
	tests := map[string]string{
		"2025-03-03": "2025-03-03", // Monday
		"2025-03-05": "2025-03-03",
		"2025-03-09": "2025-03-03", // Sunday
		"2025-03-10": "2025-03-10",
		"2025-01-01": "2024-12-30",
	}
	for in, want := range tests {
		day, err := ParseDate(in)
		if err != nil {
			t.Fatalf("parse %s: %v", in, err)
		}
		if got := FormatDate(WeekStart(day)); got != want {
			t.Fatalf("WeekStart(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestParseDateInvalid(t *testing.T) {
	if _, err := ParseDate("03/05/2025"); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}

func TestTodayViewGroupsBySlot(t *testing.T) {
	habits := sampleHabits()
	habits[1].Position = 5 // b before a
	habits = append(habits, Habit{ID: "gone", TimeSlot: Morning, Position: 40, Active: false})
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	completions := []Completion{
		{HabitID: "a", Date: "2025-03-05"},
		{HabitID: "e", Date: "2025-03-05"},
		{HabitID: "d", Date: "2025-03-04"},
	}

	view := TodayView(habits, completions, day)
	if view.Date != "2025-03-05" {
		t.Fatalf("unexpected date %s", view.Date)
	}
	if view.Total != 5 || view.Completed != 2 {
		t.Fatalf("unexpected totals %d/%d", view.Completed, view.Total)
	}
	if len(view.Sections) != 3 || view.Sections[0].TimeSlot != Morning || view.Sections[2].TimeSlot != Evening {
		t.Fatalf("unexpected sections: %#v", view.Sections)
	}
	morning := view.Sections[0].Habits
	if len(morning) != 3 || morning[0].ID != "b" || morning[1].ID != "a" {
		t.Fatalf("unexpected morning order: %#v", morning)
	}
	if !morning[1].Done || morning[0].Done {
		t.Fatalf("unexpected done flags: %#v", morning)
	}
	if view.Sections[1].Habits[0].Done {
		t.Fatalf("completion from another day counted")
	}
}

func TestWeeklyView(t *testing.T) {
	habits := []Habit{
		{ID: "run", TimeSlot: Morning, Position: 10, WeeklyTarget: 2, Active: true},
		{ID: "read", TimeSlot: Evening, Position: 10, WeeklyTarget: 3, Active: true},
	}
	completions := []Completion{
		{HabitID: "run", Date: "2025-03-03"},
		{HabitID: "run", Date: "2025-03-09"},
		{HabitID: "run", Date: "2025-03-10"}, // next week
		{HabitID: "read", Date: "2025-03-04"},
	}
	view := WeeklyView(habits, completions, time.Date(2025, 3, 6, 12, 0, 0, 0, time.UTC))
	if view.WeekStart != "2025-03-03" {
		t.Fatalf("unexpected week start %s", view.WeekStart)
	}
	run := view.Habits[0]
	if run.ID != "run" || run.Count != 2 || !run.TargetMet || !run.Days[0] || !run.Days[6] {
		t.Fatalf("unexpected run row: %#v", run)
	}
	read := view.Habits[1]
	if read.Count != 1 || read.TargetMet || !read.Days[1] {
		t.Fatalf("unexpected read row: %#v", read)
	}
}

func TestOverallView(t *testing.T) {
	habits := []Habit{
		{ID: "run", TimeSlot: Morning, Position: 10, WeeklyTarget: 2, Active: true},
		{ID: "old", TimeSlot: Afternoon, Position: 10, WeeklyTarget: 1, Active: false},
	}
	completions := []Completion{
		{HabitID: "run", Date: "2025-03-04"},
		{HabitID: "run", Date: "2025-03-03"},
		{HabitID: "run", Date: "2025-03-12"},
		{HabitID: "old", Date: "2025-02-01"},
	}
	view := OverallView(habits, completions)
	if view.TotalCompletions != 4 || len(view.Habits) != 2 {
		t.Fatalf("unexpected overall: %#v", view)
	}
	run := view.Habits[0]
	if run.TotalCompletions != 3 || run.WeeksTargetMet != 1 {
		t.Fatalf("unexpected run summary: %#v", run)
	}
	if run.FirstCompletion != "2025-03-03" || run.LastCompletion != "2025-03-12" {
		t.Fatalf("unexpected range %s..%s", run.FirstCompletion, run.LastCompletion)
	}
	if view.Habits[1].WeeksTargetMet != 1 {
		t.Fatalf("expected archived habit to be summarized: %#v", view.Habits[1])
	}
}
