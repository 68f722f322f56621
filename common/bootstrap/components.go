package bootstrap

import (
	"context"
	"fmt"

	"github.com/stratoslab/multidim/common/cache"
	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/common/logger"
	"github.com/stratoslab/multidim/common/ratelimit"
	"github.com/stratoslab/multidim/common/telemetry"
	"github.com/stratoslab/multidim/dataset"
)

// Components holds all initialized service dependencies
type Components struct {
	Config *config.Config
	Logger *logger.Logger
	Cache  cache.Cache
	// RateLimiter is nil when rate limiting is disabled or the redis
	// backend is unreachable
	RateLimiter *ratelimit.Limiter
	Telemetry   *telemetry.Telemetry
	// VersionedStore is the icechunk capability; nil when the runtime
	// has no versioned-store support
	VersionedStore dataset.VersionedStore

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
