package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vnfma0218/habit-management/domain"
)

// now is replaced in tests.
var now = time.Now

func dateParam(c echo.Context, name string, fallback time.Time) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return domain.ParseDate(raw)
}

func completeHabit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits/:id/completions/:date", "habits.complete")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)
		id := c.Param("id")

		day, perr := domain.ParseDate(c.Param("date"))
		if perr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, perr)
		}
		h, getErr := d.Store.GetHabit(ctx, userID, id)
		if getErr == nil && !h.Active {
			getErr = fmt.Errorf("%w: %s", domain.ErrHabitNotFound, id)
		}
		if getErr != nil {
			metrics.SetErrorStage("lookup")
			return writeError(c, getErr)
		}
		comp := domain.Completion{HabitID: h.ID, Date: domain.FormatDate(day)}
		metrics.Set("date", comp.Date)
		if putErr := d.Store.PutCompletion(ctx, userID, comp); putErr != nil {
			metrics.SetErrorStage("store")
			return writeError(c, putErr)
		}
		publish(d, userID, newEvent(d, id, domain.HabitEntityType, domain.HabitCompleted, domain.CompletionEventData{Date: comp.Date}))
		return c.NoContent(http.StatusNoContent)
	}
}

func uncompleteHabit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/habits/:id/completions/:date", "habits.uncomplete")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)
		id := c.Param("id")

		day, perr := domain.ParseDate(c.Param("date"))
		if perr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, perr)
		}
		comp := domain.Completion{HabitID: id, Date: domain.FormatDate(day)}
		metrics.Set("date", comp.Date)
		if delErr := d.Store.DeleteCompletion(ctx, userID, comp); delErr != nil {
			metrics.SetErrorStage("store")
			return writeError(c, delErr)
		}
		publish(d, userID, newEvent(d, id, domain.HabitEntityType, domain.HabitUncompleted, domain.CompletionEventData{Date: comp.Date}))
		return c.NoContent(http.StatusNoContent)
	}
}

func todayView(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/views/today", "habits.view.today")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		day, perr := dateParam(c, "date", now().UTC())
		if perr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, perr)
		}
		date := domain.FormatDate(day)
		metrics.Set("date", date)
		habits, completions, loadErr := loadViewData(ctx, d, userID, date, date)
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			return writeError(c, loadErr)
		}
		return c.JSON(http.StatusOK, domain.TodayView(habits, completions, day))
	}
}

func weeklyView(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/views/weekly", "habits.view.weekly")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		day, perr := dateParam(c, "weekStart", now().UTC())
		if perr != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, perr)
		}
		start := domain.WeekStart(day)
		metrics.Set("week_start", domain.FormatDate(start))
		habits, completions, loadErr := loadViewData(ctx, d, userID,
			domain.FormatDate(start), domain.FormatDate(start.AddDate(0, 0, 6)))
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			return writeError(c, loadErr)
		}
		return c.JSON(http.StatusOK, domain.WeeklyView(habits, completions, start))
	}
}

func overallView(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, d.Logger, "/api/views/overall", "habits.view.overall")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		userID := userIDFrom(c)

		habits, completions, loadErr := loadViewData(ctx, d, userID, "", "")
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			return writeError(c, loadErr)
		}
		return c.JSON(http.StatusOK, domain.OverallView(habits, completions))
	}
}

// loadViewData reads the habit list and the completions between from and to.
// Empty bounds are open.
func loadViewData(ctx context.Context, d Deps, userID, from, to string) ([]domain.Habit, []domain.Completion, error) {
	habits, err := d.Store.FetchHabits(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	completions, err := d.Store.FetchCompletions(ctx, userID, from, to)
	if err != nil {
		return nil, nil, err
	}
	return habits, completions, nil
}
