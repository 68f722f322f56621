package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoslab/multidim/common/logger"
	"github.com/stratoslab/multidim/common/ratelimit"
)

// unreachableLimiter points at a backend that is not there, which the
// middleware must treat as "allow"
func unreachableLimiter() *ratelimit.Limiter {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return ratelimit.New(client, logger.Discard())
}

func TestRateLimitFailsOpen(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	for name, mw := range map[string]echo.MiddlewareFunc{
		"global": GlobalRateLimit(unreachableLimiter(), 10),
		"client": ClientRateLimit(unreachableLimiter(), 10),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, mw(handler)(c))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
