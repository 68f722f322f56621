// Package ratelimit throttles the serving endpoints. Opening a remote
// dataset costs several object-store round trips before the first byte
// of metadata, so request admission happens before any storage probing.
// Counters live in the shared redis backend and are therefore enforced
// across all replicas.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stratoslab/multidim/common/logger"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Result describes one admission decision
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter is a fixed-window counter over redis. The window script runs
// atomically server-side, so concurrent replicas never double-admit.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

// New creates a limiter on an existing redis client
func New(client *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{
		redis:  client,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

// CheckGlobal admits against the service-wide limit over a one minute
// window
func (l *Limiter) CheckGlobal(ctx context.Context, limit int64) (*Result, error) {
	return l.check(ctx, "ratelimit:global", limit, 60)
}

// CheckClient admits against a per-client limit over a one minute
// window
func (l *Limiter) CheckClient(ctx context.Context, clientIP string, limit int64) (*Result, error) {
	key := fmt.Sprintf("ratelimit:client:%s", clientIP)
	return l.check(ctx, key, limit, 60)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	// The script returns {allowed, current_count, limit, retry_after}
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result %v", raw)
	}

	result := &Result{
		Allowed:           fields[0].(int64) == 1,
		CurrentCount:      fields[1].(int64),
		Limit:             fields[2].(int64),
		RetryAfterSeconds: fields[3].(int64),
	}

	if !result.Allowed {
		l.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	}

	return result, nil
}

// CurrentCount reads a window counter without incrementing it
func (l *Limiter) CurrentCount(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Reset clears a window counter
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
