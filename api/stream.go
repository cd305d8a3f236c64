package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/vnfma0218/habit-management/domain"
)

const streamHeartbeat = 25 * time.Second

// streamHabits pushes the user's active habits as server-sent events: once
// on connect and again after every change notified through the hub.
func streamHabits(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := userIDFrom(c)
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return errorJSON(c, http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := d.Hub.subscribe(userID)
		defer d.Hub.unsubscribe(userID, ch)
		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()

		for {
			habits, err := d.Store.FetchHabits(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.Logger.WithField("user", userID).Errorf("stream fetch habits: %v", err)
				return nil
			}
			data, err := sonic.Marshal(habitsResponse{Habits: orderedHabits(habits, domain.TimeSlots, false)})
			if err != nil {
				d.Logger.Errorf("stream marshal: %v", err)
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
				case <-ch:
					break wait
				}
			}
		}
	}
}
