package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout puts a deadline on the request context. Handlers and the
// store observe it through ctx and the handler always runs to completion on
// the request goroutine; an error caused by the deadline becomes a 504.
// Paths listed in skip (such as /metrics) are left unbounded.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			return skipped[c.Request().URL.Path]
		},
		ErrorHandler: func(err error, c echo.Context) error {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time").SetInternal(err)
			}
			return err
		},
	})
}
