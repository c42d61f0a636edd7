package ratelimit

import (
	"github.com/gofiber/fiber/v2"
)

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit headers on every response it checked.
func Middleware(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := limiter.Allow(c)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "rate limit storage unavailable")
		}

		for header, value := range result.LimitHeaders {
			c.Set(header, value)
		}
		if result.Limited {
			return ErrRateLimitExceeded
		}
		return c.Next()
	}
}
