package ratelimit

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tuncerburak97/tekrar/internal/config"
)

// Service applies the route, per-IP and global limits, in that order.
type Service struct {
	config *config.RateLimitConfig
	store  Store
	now    func() time.Time
}

func NewService(cfg *config.RateLimitConfig, store Store) *Service {
	return &Service{
		config: cfg,
		store:  store,
		now:    time.Now,
	}
}

func (s *Service) Allow(c *fiber.Ctx) (*Result, error) {
	if !s.config.Enabled {
		return &Result{}, nil
	}

	ctx := c.UserContext()
	ip := c.IP()
	if s.config.PerIP.Enabled && s.isWhitelisted(ip) {
		return &Result{}, nil
	}

	var result *Result
	var err error

	if route := s.findRouteLimit(c.Method(), c.Path()); route != nil {
		key := "route:" + route.Method + ":" + route.Path + ":" + ip
		result, err = s.checkLimit(ctx, key, route.Requests, route.Window, route.Burst)
		if err != nil || result.Limited {
			return result, err
		}
	}

	if s.config.PerIP.Enabled {
		result, err = s.checkLimit(ctx, "ip:"+ip, s.config.PerIP.Requests, s.config.PerIP.Window, s.config.PerIP.Burst)
		if err != nil || result.Limited {
			return result, err
		}
	}

	if s.config.Global.Requests > 0 {
		result, err = s.checkLimit(ctx, "global", s.config.Global.Requests, s.config.Global.Window, s.config.Global.Burst)
		if err != nil || result.Limited {
			return result, err
		}
	}

	if result == nil {
		result = &Result{}
	}
	return result, nil
}

func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) isWhitelisted(ip string) bool {
	for _, entry := range s.config.PerIP.WhiteList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err == nil && ipNet.Contains(net.ParseIP(ip)) {
				return true
			}
		} else if ip == entry {
			return true
		}
	}
	return false
}

// findRouteLimit returns the highest-priority matching route; on a tie the
// longer pattern wins.
func (s *Service) findRouteLimit(method, path string) *config.RouteLimit {
	var best *config.RouteLimit
	for i := range s.config.Routes {
		route := &s.config.Routes[i]
		if route.Method != "*" && !strings.EqualFold(route.Method, method) {
			continue
		}
		if !pathMatch(route.Path, path) {
			continue
		}
		if best == nil || route.Priority > best.Priority ||
			(route.Priority == best.Priority && len(route.Path) > len(best.Path)) {
			best = route
		}
	}
	return best
}

// pathMatch compares slash-separated segments; "*" matches one segment.
func pathMatch(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")
	if len(patternParts) != len(pathParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] != "*" && patternParts[i] != pathParts[i] {
			return false
		}
	}
	return true
}

func (s *Service) checkLimit(ctx context.Context, key string, limit int, window time.Duration, burst int) (*Result, error) {
	count, resetTime, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if count == 0 || now.After(resetTime) {
		resetTime = now.Add(window)
		count = 0
	}

	if count >= limit+burst {
		retryAfter := resetTime.Sub(now)
		return &Result{
			Limited:    true,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
			LimitHeaders: map[string]string{
				HeaderRateLimit:     strconv.Itoa(limit),
				HeaderRateRemaining: "0",
				HeaderRateReset:     strconv.FormatInt(resetTime.Unix(), 10),
				HeaderRetryAfter:    strconv.FormatInt(int64(retryAfter.Seconds()), 10),
			},
		}, nil
	}

	newCount, err := s.store.Increment(ctx, key, resetTime)
	if err != nil {
		return nil, err
	}

	remaining := limit + burst - newCount
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Remaining: remaining,
		ResetTime: resetTime,
		LimitHeaders: map[string]string{
			HeaderRateLimit:     strconv.Itoa(limit),
			HeaderRateRemaining: strconv.Itoa(remaining),
			HeaderRateReset:     strconv.FormatInt(resetTime.Unix(), 10),
		},
	}, nil
}
