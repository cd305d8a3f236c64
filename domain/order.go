package domain

import (
	"fmt"
	"sort"
)

// PositionStep is the gap between consecutive positions inside a slot.
const PositionStep = 10

// NextPosition returns the position for a habit appended to slot: the
// current maximum position in the slot plus PositionStep, or PositionStep
// when the slot has no habits. Archived habits keep their positions and are
// counted.
func NextPosition(habits []Habit, slot TimeSlot) int {
	highest, found := 0, false
	for _, h := range habits {
		if h.TimeSlot != slot {
			continue
		}
		if !found || h.Position > highest {
			highest = h.Position
			found = true
		}
	}
	if !found {
		return PositionStep
	}
	return highest + PositionStep
}

// Group returns the habits in slot ordered by ascending position.
func Group(habits []Habit, slot TimeSlot) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		if h.TimeSlot == slot {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// GroupIDs returns the ids of the habits in slot in their current order.
func GroupIDs(habits []Habit, slot TimeSlot) []string {
	group := Group(habits, slot)
	ids := make([]string, len(group))
	for i, h := range group {
		ids[i] = h.ID
	}
	return ids
}

// ReorderGroup renumbers the habits of slot so that ascending position
// matches order. order must contain every member of slot exactly once and
// nothing else; otherwise the returned error wraps ErrInvalidPermutation and
// no habit is changed. Each member gets (rank+1)*PositionStep.
//
// The input slice is not modified. Habits of other slots are copied as is.
func ReorderGroup(habits []Habit, slot TimeSlot, order []string) ([]Habit, error) {
	members := make(map[string]struct{})
	for _, h := range habits {
		if h.TimeSlot == slot {
			members[h.ID] = struct{}{}
		}
	}

	ranks := make(map[string]int, len(order))
	for i, id := range order {
		if _, ok := members[id]; !ok {
			return nil, fmt.Errorf("%w: %q is not in slot %s", ErrInvalidPermutation, id, slot)
		}
		if _, dup := ranks[id]; dup {
			return nil, fmt.Errorf("%w: %q listed more than once", ErrInvalidPermutation, id)
		}
		ranks[id] = i
	}
	if len(ranks) != len(members) {
		for id := range members {
			if _, ok := ranks[id]; !ok {
				return nil, fmt.Errorf("%w: %q missing from order", ErrInvalidPermutation, id)
			}
		}
	}

	out := make([]Habit, len(habits))
	copy(out, habits)
	for i := range out {
		if out[i].TimeSlot != slot {
			continue
		}
		out[i].Position = (ranks[out[i].ID] + 1) * PositionStep
	}
	return out, nil
}

// MoveToGroup moves the habit id into slot, appending it after the slot's
// current last habit. The slot it leaves is not renumbered. Moving a habit
// into the slot it already occupies returns an unchanged copy.
func MoveToGroup(habits []Habit, id string, slot TimeSlot) ([]Habit, error) {
	if !slot.Valid() {
		return nil, &ValidationError{Field: "timeSlot", Message: "time slot must be one of morning, afternoon, evening"}
	}
	idx := -1
	for i, h := range habits {
		if h.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrHabitNotFound, id)
	}

	out := make([]Habit, len(habits))
	copy(out, habits)
	if out[idx].TimeSlot == slot {
		return out, nil
	}
	out[idx].Position = NextPosition(habits, slot)
	out[idx].TimeSlot = slot
	return out, nil
}

// Changed returns the habits of after whose slot or position differ from
// the habit with the same id in before.
func Changed(before, after []Habit) []Habit {
	prev := make(map[string]Habit, len(before))
	for _, h := range before {
		prev[h.ID] = h
	}
	var out []Habit
	for _, h := range after {
		p, ok := prev[h.ID]
		if !ok || p.Position != h.Position || p.TimeSlot != h.TimeSlot {
			out = append(out, h)
		}
	}
	return out
}
