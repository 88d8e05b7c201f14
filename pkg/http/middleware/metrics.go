package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"EMSpark/pkg/logger"
)

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	HTTPStarted()
	HTTPFinished(route, method string, status int, d time.Duration)
}

// Metrics records request metrics labelled by the route template to keep
// cardinality low. Requests slower than slowThreshold are logged.
func Metrics(rec HTTPRecorder, l *logger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec.HTTPStarted()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			d := time.Since(start)
			status := c.Response().Status
			rec.HTTPFinished(route, c.Request().Method, status, d)

			if slowThreshold > 0 && d >= slowThreshold {
				l.Warn("HTTP request slow",
					logger.String("route", route),
					logger.Int("status", status),
					logger.Duration("duration", d),
				)
			}
			return nil
		}
	}
}
