// Package ratelimit throttles the control API with fixed-window counters kept
// in memory or in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tuncerburak97/tekrar/internal/config"
)

// Result represents the result of a rate limit check
type Result struct {
	Limited      bool
	Remaining    int
	ResetTime    time.Time
	RetryAfter   time.Duration
	LimitHeaders map[string]string
}

// Store holds one fixed-window counter per key.
type Store interface {
	// Get returns the count and reset time of the live window for key, or a
	// zero count when none is live.
	Get(ctx context.Context, key string) (int, time.Time, error)

	// Increment bumps the counter for key, starting a window that resets at
	// resetTime when none is live.
	Increment(ctx context.Context, key string, resetTime time.Time) (int, error)

	Reset(ctx context.Context, key string) error
	Close() error
}

// Limiter decides whether a request may proceed.
type Limiter interface {
	Allow(c *fiber.Ctx) (*Result, error)
	Close() error
}

const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRetryAfter    = "Retry-After"
)

var ErrRateLimitExceeded = fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")

// NewStore builds the store selected by cfg.Storage.Type.
func NewStore(cfg config.RateLimitConfig) (Store, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return NewMemoryStore(5 * time.Minute), nil
	case "redis":
		r := cfg.Storage.Redis
		return NewRedisStore(r.Host, r.Port, r.Password, r.DB, r.Timeout)
	default:
		return nil, fmt.Errorf("unsupported rate limit storage type: %s", cfg.Storage.Type)
	}
}
