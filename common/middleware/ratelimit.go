package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stratoslab/multidim/common/ratelimit"
)

// GlobalRateLimit throttles the whole service with a shared window.
// The limiter fails open: when the backend is unreachable the request
// proceeds, since admission control must never reduce availability
// below what the service could deliver without it.
func GlobalRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobal(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return rateLimited(c, "global_rate_limit_exceeded", result)
			}
			return next(c)
		}
	}
}

// ClientRateLimit throttles per client address, so one aggressive
// caller cannot consume the whole global window
func ClientRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckClient(c.Request().Context(), c.RealIP(), limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return rateLimited(c, "client_rate_limit_exceeded", result)
			}
			return next(c)
		}
	}
}

func rateLimited(c echo.Context, code string, result *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error": code,
		"details": map[string]interface{}{
			"limit":               result.Limit,
			"window":              "60 seconds",
			"current_count":       result.CurrentCount,
			"retry_after_seconds": result.RetryAfterSeconds,
		},
	})
}
