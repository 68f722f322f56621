package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stratoslab/multidim/common/cache"
	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/common/logger"
	"github.com/stratoslab/multidim/common/ratelimit"
	"github.com/stratoslab/multidim/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for the serving binaries
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			cfg.Service.LogLevel,
			cfg.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// 3. Connect the shared redis backend, which carries both the
	// dataset cache and the rate limit counters
	wantRedis := !options.skipCache && (cfg.Cache.Enabled || cfg.RateLimit.Enabled)
	if wantRedis {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.CacheAddr(),
			DB:   cfg.Cache.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// The backend is an optimization, not a dependency: start
			// without it rather than fail the service
			components.Logger.Warn("redis backend unreachable, caching and rate limiting disabled",
				"addr", cfg.CacheAddr(), "error", err)
			client.Close()
		} else {
			components.addCleanup(func() error {
				components.Logger.Info("closing redis connection")
				return client.Close()
			})

			if cfg.Cache.Enabled {
				components.Cache = cache.NewRedisCacheFromClient(client, components.Logger)
				components.Logger.Info("dataset cache connected",
					"addr", cfg.CacheAddr(),
					"ttl", cfg.Cache.TTL,
				)
			}
			if cfg.RateLimit.Enabled {
				components.RateLimiter = ratelimit.New(client, components.Logger)
				components.Logger.Info("rate limiting enabled",
					"global_per_minute", cfg.RateLimit.GlobalPerMinute,
					"client_per_minute", cfg.RateLimit.ClientPerMinute,
				)
			}
		}
	}

	// 4. Telemetry
	components.Telemetry = telemetry.New(cfg.Service.PprofPort, components.Logger)
	if err := components.Telemetry.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}

	// 5. Resolve the versioned-store capability
	components.VersionedStore = options.versionedStore
	if components.VersionedStore == nil {
		components.Logger.Info("versioned store support not available, icechunk opens will fail")
	}

	return components, nil
}
