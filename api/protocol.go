package api

import "github.com/vnfma0218/habit-management/domain"

const requestMaxSize = 64 * 1024 // 64 KiB

const headerIdempotencyKey = "Idempotency-Key"

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// POST /api/habits response body
type habitResponse struct {
	Data domain.Habit `json:"data"`
}

// GET /api/habits response body
type habitsResponse struct {
	Habits []domain.Habit `json:"habits"`
}

// PUT /api/habits/order request body
type reorderRequest struct {
	TimeSlot string   `json:"timeSlot"`
	IDs      []string `json:"ids"`
}

// PUT /api/habits/order response body
type reorderResponse struct {
	TimeSlot domain.TimeSlot `json:"timeSlot"`
	Habits   []domain.Habit  `json:"habits"`
}

// PATCH /api/habits/:id/slot request body
type moveRequest struct {
	TimeSlot string `json:"timeSlot"`
}
