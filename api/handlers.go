package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vnfma0218/habit-management/domain"
	"github.com/vnfma0218/habit-management/storage"
)

// Deps are the collaborators of the HTTP handlers. Deduper, Locker and
// Events are optional.
type Deps struct {
	Store   Storage
	Auth    Authenticator
	Deduper Deduper
	Locker  GroupLocker
	Events  EventPublisher
	Hub     *UpdateHub
	Logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		panic("Logger is not initialized")
	}
	g := e.Group("/api", RequireUser(d.Auth, false))
	g.GET("/habits", listHabits(d))
	g.POST("/habits", createHabit(d))
	g.PUT("/habits/order", reorderHabits(d))
	g.PATCH("/habits/:id/slot", moveHabit(d))
	g.DELETE("/habits/:id", archiveHabit(d))
	g.PUT("/habits/:id/completions/:date", completeHabit(d))
	g.DELETE("/habits/:id/completions/:date", uncompleteHabit(d))
	g.GET("/views/today", todayView(d))
	g.GET("/views/weekly", weeklyView(d))
	g.GET("/views/overall", overallView(d))
	if d.Hub != nil {
		e.GET("/api/stream", streamHabits(d), RequireUser(d.Auth, true))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// writeError maps domain and storage errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(status, errorResponse{Error: ve.Message, Field: ve.Field})
	}
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return errorJSON(c, status, err.Error())
}

func statusFor(err error) int {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.Is(err, domain.ErrInvalidPermutation), errors.Is(err, storage.ErrTooManyHabits):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrHabitNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, ErrGroupBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// withGroupLock runs fn while holding the lock of the user's slot.
func withGroupLock(ctx context.Context, d Deps, userID string, slot domain.TimeSlot, fn func() error) error {
	if d.Locker == nil {
		return fn()
	}
	unlock, err := d.Locker.Lock(ctx, userID, slot)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			d.Logger.WithFields(log.Fields{"user": userID, "slot": slot}).Warnf("release group lock: %v", err)
		}
	}()
	return fn()
}

func publish(d Deps, userID string, events ...domain.Event) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(userID, events...)
}

func newEvent(d Deps, entityID, entityType, eventType string, data any) domain.Event {
	ev := domain.Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
	}
	if data == nil {
		return ev
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		d.Logger.WithFields(log.Fields{"event": eventType, "entity": entityID}).Errorf("encode event data: %v", err)
		return ev
	}
	ev.Data = raw
	return ev
}

// checkSlotCapacity rejects a write that would grow group past what a single
// placement transaction can renumber.
func checkSlotCapacity(group []domain.Habit, slot domain.TimeSlot) error {
	if len(group) >= storage.MaxTransactionSize {
		return fmt.Errorf("%w: %s", storage.ErrTooManyHabits, slot)
	}
	return nil
}

func parseSlot(raw string) (domain.TimeSlot, error) {
	slot, ok := domain.ParseTimeSlot(raw)
	if !ok {
		return "", &domain.ValidationError{Field: "timeSlot", Message: "time slot must be one of morning, afternoon, evening"}
	}
	return slot, nil
}

// orderedHabits lists the habits of slots in slot display order, each slot
// sorted by position.
func orderedHabits(habits []domain.Habit, slots []domain.TimeSlot, includeArchived bool) []domain.Habit {
	out := make([]domain.Habit, 0, len(habits))
	for _, slot := range slots {
		for _, h := range domain.Group(habits, slot) {
			if h.Active || includeArchived {
				out = append(out, h)
			}
		}
	}
	return out
}

func listHabits(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits", "habits.list")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		slots := domain.TimeSlots
		if raw := c.QueryParam("slot"); raw != "" {
			slot, perr := parseSlot(raw)
			if perr != nil {
				metrics.SetErrorStage("invalid_slot")
				return writeError(c, perr)
			}
			slots = []domain.TimeSlot{slot}
		}
		includeArchived := false
		if raw := c.QueryParam("includeArchived"); raw != "" {
			includeArchived, err = strconv.ParseBool(raw)
			if err != nil {
				metrics.SetErrorStage("invalid_include_archived")
				err = errorJSON(c, http.StatusBadRequest, "invalid includeArchived")
				return err
			}
		}

		habits, fetchErr := d.Store.FetchHabits(ctx, userID)
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return writeError(c, fetchErr)
		}
		out := orderedHabits(habits, slots, includeArchived)
		metrics.Set("habits_returned", len(out))
		return c.JSON(http.StatusOK, habitsResponse{Habits: out})
	}
}

func createHabit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits", "habits.create")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		var in domain.HabitInput
		if decodeErr := decodeBody(c, &in); decodeErr != nil {
			metrics.SetErrorStage("decode")
			return errorJSON(c, http.StatusBadRequest, "invalid body")
		}
		if verr := in.Validate(); verr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, verr)
		}
		slot := domain.TimeSlot(in.TimeSlot)
		metrics.Set("time_slot", string(slot))

		key := c.Request().Header.Get(headerIdempotencyKey)
		dedupe := key != "" && d.Deduper != nil
		if dedupe {
			added, derr := d.Deduper.Add(ctx, userID, key)
			if derr != nil {
				metrics.SetErrorStage("dedupe")
				return writeError(c, derr)
			}
			if !added {
				metrics.SetErrorStage("duplicate")
				return errorJSON(c, http.StatusConflict, "duplicate request")
			}
		}

		var created domain.Habit
		opErr := withGroupLock(ctx, d, userID, slot, func() error {
			group, err := d.Store.FetchSlot(ctx, userID, slot)
			if err != nil {
				return err
			}
			if err := checkSlotCapacity(group, slot); err != nil {
				return err
			}
			created = domain.NewHabit(uuid.NewString(), in, time.Now())
			created.Position = domain.NextPosition(group, slot)
			return d.Store.InsertHabit(ctx, userID, created)
		})
		if opErr != nil {
			if dedupe {
				if rerr := d.Deduper.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
					d.Logger.Warnf("remove idempotency key: %v", rerr)
				}
			}
			metrics.SetErrorStage("store")
			return writeError(c, opErr)
		}

		metrics.Set("position", created.Position)
		publish(d, userID, newEvent(d, created.ID, domain.HabitEntityType, domain.HabitCreated, created))
		return c.JSON(http.StatusCreated, habitResponse{Data: created})
	}
}

// reorderOrder extends the client's order with archived members of the slot
// it left out, so they keep a distinct position after the active habits.
func reorderOrder(ids []string, group []domain.Habit) []string {
	listed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		listed[id] = struct{}{}
	}
	order := append([]string(nil), ids...)
	for _, h := range group {
		if h.Active {
			continue
		}
		if _, ok := listed[h.ID]; !ok {
			order = append(order, h.ID)
		}
	}
	return order
}

func reorderHabits(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits/order", "habits.reorder")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		var req reorderRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			reorderResults.WithLabelValues("invalid").Inc()
			return errorJSON(c, http.StatusBadRequest, "invalid body")
		}
		slot, perr := parseSlot(req.TimeSlot)
		if perr != nil {
			metrics.SetErrorStage("validate")
			reorderResults.WithLabelValues("invalid").Inc()
			return writeError(c, perr)
		}
		metrics.Set("time_slot", string(slot))
		metrics.Set("ids", len(req.IDs))

		var result []domain.Habit
		changed := 0
		opErr := withGroupLock(ctx, d, userID, slot, func() error {
			group, err := d.Store.FetchSlot(ctx, userID, slot)
			if err != nil {
				return err
			}
			reordered, err := domain.ReorderGroup(group, slot, reorderOrder(req.IDs, group))
			if err != nil {
				return err
			}
			diff := domain.Changed(group, reordered)
			if err := d.Store.UpdatePlacement(ctx, userID, diff); err != nil {
				return err
			}
			changed = len(diff)
			for _, h := range domain.Group(reordered, slot) {
				if h.Active {
					result = append(result, h)
				}
			}
			return nil
		})
		if opErr != nil {
			switch statusFor(opErr) {
			case http.StatusBadRequest:
				reorderResults.WithLabelValues("invalid").Inc()
			case http.StatusConflict:
				reorderResults.WithLabelValues("conflict").Inc()
			default:
				reorderResults.WithLabelValues("error").Inc()
			}
			metrics.SetErrorStage("reorder")
			return writeError(c, opErr)
		}
		reorderResults.WithLabelValues("ok").Inc()
		metrics.Set("changed", changed)

		if changed > 0 {
			publish(d, userID, newEvent(d, string(slot), domain.SlotEntityType, domain.HabitsReordered,
				domain.ReorderedEventData{TimeSlot: slot, IDs: req.IDs}))
		}
		if result == nil {
			result = []domain.Habit{}
		}
		return c.JSON(http.StatusOK, reorderResponse{TimeSlot: slot, Habits: result})
	}
}

func moveHabit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits/:id/slot", "habits.move")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)
		id := c.Param("id")

		var req moveRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			return errorJSON(c, http.StatusBadRequest, "invalid body")
		}
		slot, perr := parseSlot(req.TimeSlot)
		if perr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, perr)
		}
		metrics.Set("time_slot", string(slot))

		var moved domain.Habit
		var from domain.TimeSlot
		opErr := withGroupLock(ctx, d, userID, slot, func() error {
			h, err := d.Store.GetHabit(ctx, userID, id)
			if err != nil {
				return err
			}
			if !h.Active {
				return fmt.Errorf("%w: %s", domain.ErrHabitNotFound, id)
			}
			from = h.TimeSlot
			if h.TimeSlot == slot {
				moved = h
				return nil
			}
			group, err := d.Store.FetchSlot(ctx, userID, slot)
			if err != nil {
				return err
			}
			if err := checkSlotCapacity(group, slot); err != nil {
				return err
			}
			all := append(group, h)
			out, err := domain.MoveToGroup(all, id, slot)
			if err != nil {
				return err
			}
			if err := d.Store.UpdatePlacement(ctx, userID, domain.Changed(all, out)); err != nil {
				return err
			}
			moved = out[len(out)-1]
			return nil
		})
		if opErr != nil {
			metrics.SetErrorStage("move")
			return writeError(c, opErr)
		}
		metrics.Set("from_slot", string(from))
		metrics.Set("position", moved.Position)

		if from != slot {
			publish(d, userID, newEvent(d, id, domain.HabitEntityType, domain.HabitMoved,
				domain.MovedEventData{From: from, To: slot, Position: moved.Position}))
		}
		return c.JSON(http.StatusOK, habitResponse{Data: moved})
	}
}

func archiveHabit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits/:id", "habits.archive")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)
		id := c.Param("id")

		if opErr := d.Store.SetActive(ctx, userID, id, false); opErr != nil {
			metrics.SetErrorStage("store")
			return writeError(c, opErr)
		}
		publish(d, userID, newEvent(d, id, domain.HabitEntityType, domain.HabitArchived, nil))
		return c.NoContent(http.StatusNoContent)
	}
}
