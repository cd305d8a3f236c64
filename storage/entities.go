package storage

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/vnfma0218/habit-management/domain"
)

const (
	edmInt32    = "Edm.Int32"
	edmBoolean  = "Edm.Boolean"
	edmDateTime = "Edm.DateTime"
)

// entity represents base table entity keys.
type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type habitEntity struct {
	entity
	ETag             string    `json:"odata.etag,omitempty"`
	Name             string    `json:"Name"`
	WeeklyTarget     int       `json:"WeeklyTarget"`
	WeeklyTargetType string    `json:"WeeklyTarget@odata.type,omitempty"`
	TimeSlot         string    `json:"TimeSlot"`
	TimeText         string    `json:"TimeText,omitempty"`
	Goal             string    `json:"Goal,omitempty"`
	Icon             string    `json:"Icon"`
	Color            string    `json:"Color"`
	Position         int       `json:"Position"`
	PositionType     string    `json:"Position@odata.type,omitempty"`
	Active           bool      `json:"Active"`
	ActiveType       string    `json:"Active@odata.type,omitempty"`
	CreatedAt        time.Time `json:"CreatedAt"`
	CreatedAtType    string    `json:"CreatedAt@odata.type,omitempty"`
}

// placementUpdate carries the fields rewritten by reorder and move.
type placementUpdate struct {
	entity
	TimeSlot     string `json:"TimeSlot"`
	Position     int    `json:"Position"`
	PositionType string `json:"Position@odata.type"`
}

type activeUpdate struct {
	entity
	Active     bool   `json:"Active"`
	ActiveType string `json:"Active@odata.type"`
}

type completionEntity struct {
	entity
	HabitID string `json:"HabitId"`
	Date    string `json:"Date"`
}

func newHabitEntity(userID string, h domain.Habit) habitEntity {
	return habitEntity{
		entity:           entity{PartitionKey: userID, RowKey: h.ID},
		Name:             h.Name,
		WeeklyTarget:     h.WeeklyTarget,
		WeeklyTargetType: edmInt32,
		TimeSlot:         string(h.TimeSlot),
		TimeText:         h.TimeText,
		Goal:             h.Goal,
		Icon:             h.Icon,
		Color:            h.Color,
		Position:         h.Position,
		PositionType:     edmInt32,
		Active:           h.Active,
		ActiveType:       edmBoolean,
		CreatedAt:        h.CreatedAt.UTC(),
		CreatedAtType:    edmDateTime,
	}
}

func (e habitEntity) toDomain() domain.Habit {
	return domain.Habit{
		ID:           e.RowKey,
		Name:         e.Name,
		WeeklyTarget: e.WeeklyTarget,
		TimeSlot:     domain.TimeSlot(e.TimeSlot),
		TimeText:     e.TimeText,
		Goal:         e.Goal,
		Icon:         e.Icon,
		Color:        e.Color,
		Position:     e.Position,
		Active:       e.Active,
		CreatedAt:    e.CreatedAt,
		Version:      e.ETag,
	}
}

func decodeHabitEntity(data []byte) (domain.Habit, error) {
	var ent habitEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Habit{}, err
	}
	return ent.toDomain(), nil
}

func newPlacementUpdate(userID string, h domain.Habit) placementUpdate {
	return placementUpdate{
		entity:       entity{PartitionKey: userID, RowKey: h.ID},
		TimeSlot:     string(h.TimeSlot),
		Position:     h.Position,
		PositionType: edmInt32,
	}
}

// completionKey is the row key of a completion: one row per habit and day.
func completionKey(habitID, date string) string {
	return habitID + "_" + date
}

func newCompletionEntity(userID string, c domain.Completion) completionEntity {
	return completionEntity{
		entity:  entity{PartitionKey: userID, RowKey: completionKey(c.HabitID, c.Date)},
		HabitID: c.HabitID,
		Date:    c.Date,
	}
}

func decodeCompletionEntity(data []byte) (domain.Completion, error) {
	var ent completionEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Completion{}, err
	}
	return domain.Completion{HabitID: ent.HabitID, Date: ent.Date}, nil
}

// quote escapes a value for use inside an OData string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func habitsFilter(userID string, slot domain.TimeSlot) string {
	filter := "PartitionKey eq " + quote(userID)
	if slot != "" {
		filter += " and TimeSlot eq " + quote(string(slot))
	}
	return filter
}

func completionsFilter(userID, from, to string) string {
	filter := "PartitionKey eq " + quote(userID)
	if from != "" {
		filter += " and Date ge " + quote(from)
	}
	if to != "" {
		filter += " and Date le " + quote(to)
	}
	return filter
}
