// Package cookies provides the cookie stores the replayer reads from and the
// capture proxy and control API write to.
package cookies

import (
	"context"
	"fmt"

	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/model"
)

// Store is a read/write cookie jar keyed by domain.
type Store interface {
	Cookies(ctx context.Context, host string) ([]model.Cookie, error)
	Set(ctx context.Context, cookie model.Cookie) error
	Replace(ctx context.Context, domain string, cookies []model.Cookie) error
	Close() error
}

// NewStore builds the store selected by cfg.Type.
func NewStore(cfg config.CookieConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
	default:
		return nil, fmt.Errorf("unsupported cookie store type: %s", cfg.Type)
	}
}
