package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store interface using in-memory storage
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]*window
	clean *time.Ticker
	done  chan struct{}
	once  sync.Once
	now   func() time.Time
}

type window struct {
	count     int
	resetTime time.Time
}

// NewMemoryStore creates a store that drops expired windows every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	store := &MemoryStore{
		data:  make(map[string]*window),
		clean: time.NewTicker(cleanupInterval),
		done:  make(chan struct{}),
		now:   time.Now,
	}

	go store.cleanup()
	return store
}

func (s *MemoryStore) cleanup() {
	for {
		select {
		case <-s.done:
			return
		case <-s.clean.C:
			s.mu.Lock()
			now := s.now()
			for key, w := range s.data {
				if now.After(w.resetTime) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if w, ok := s.data[key]; ok && !now.After(w.resetTime) {
		return w.count, w.resetTime, nil
	}
	return 0, now, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, resetTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[key]
	if !ok || s.now().After(w.resetTime) {
		s.data[key] = &window{count: 1, resetTime: resetTime}
		return 1, nil
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		s.clean.Stop()
		close(s.done)
	})
	return nil
}
