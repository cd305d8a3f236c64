package api

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

var (
	lastTimestamp int64
)

// nextTimestamp returns a strictly increasing nanosecond timestamp used to
// order published events.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// decodeBody decodes a size-limited JSON request body, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}
