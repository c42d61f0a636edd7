package cookies

import (
	"context"
	"sync"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// MemoryStore keeps cookies per domain in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]model.Cookie
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]model.Cookie)}
}

// Cookies returns every cookie whose domain is host or a parent of host.
func (s *MemoryStore) Cookies(ctx context.Context, host string) ([]model.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Cookie
	for _, domain := range candidateDomains(host) {
		out = append(out, s.data[domain]...)
	}
	return out, nil
}

// Set adds or updates one cookie, keyed by domain and name.
func (s *MemoryStore) Set(ctx context.Context, cookie model.Cookie) error {
	domain := NormalizeDomain(cookie.Domain)
	cookie.Domain = domain

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[domain]
	for i := range existing {
		if existing[i].Name == cookie.Name {
			existing[i] = cookie
			return nil
		}
	}
	s.data[domain] = append(existing, cookie)
	return nil
}

// Replace swaps the whole cookie set of domain. An empty set removes it.
func (s *MemoryStore) Replace(ctx context.Context, domain string, cookies []model.Cookie) error {
	domain = NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cookies) == 0 {
		delete(s.data, domain)
		return nil
	}
	list := make([]model.Cookie, 0, len(cookies))
	for _, c := range cookies {
		c.Domain = domain
		list = append(list, c)
	}
	s.data[domain] = list
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
