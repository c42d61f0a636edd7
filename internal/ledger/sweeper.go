package ledger

import (
	"time"
)

// Sweep removes pending entries older than the configured TTL and returns
// how many were dropped. It is a no-op when no TTL is set.
func (s *State) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, entry := range s.pending {
		if entry.addedAt.Before(cutoff) {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

// Sweeper runs Sweep on a ticker until Stop is called.
type Sweeper struct {
	state   *State
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
	report  func(removed int)
}

// StartSweeper starts a background sweep every interval. report, if non-nil,
// is called after each sweep that removed entries.
func StartSweeper(state *State, interval time.Duration, report func(removed int)) *Sweeper {
	sw := &Sweeper{
		state:   state,
		ticker:  time.NewTicker(interval),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		report:  report,
	}

	go sw.run()
	return sw
}

func (sw *Sweeper) run() {
	defer close(sw.stopped)
	for {
		select {
		case <-sw.done:
			return
		case <-sw.ticker.C:
			if removed := sw.state.Sweep(); removed > 0 && sw.report != nil {
				sw.report(removed)
			}
		}
	}
}

func (sw *Sweeper) Stop() {
	sw.ticker.Stop()
	close(sw.done)
	<-sw.stopped
}
