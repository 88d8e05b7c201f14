package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"EMSpark/pkg/logger"
)

// KeyLimiter decides whether one more request for key may pass.
type KeyLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects requests over the per-client budget with 429. Paths
// with one of the skip prefixes are never limited. Limiter errors fail open.
func RateLimit(lim KeyLimiter, l *logger.Logger, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}
			ok, err := lim.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				l.Warn("Rate limiter unavailable", logger.Error(err))
				return next(c)
			}
			if !ok {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": "Too many requests, slow down",
				})
			}
			return next(c)
		}
	}
}
