// Package ledger holds the shared in-memory capture state: the pending
// correlation table, the finalized record list and the recording/replaying
// mode flags. One State is built per process and handed to both the
// recorder and the replayer.
package ledger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuncerburak97/tekrar/internal/model"
)

type pendingEntry struct {
	record  *model.RecordedRequest
	addedAt time.Time
	seq     uint64
}

// Options bound the pending table. Zero values disable the bound.
type Options struct {
	PendingTTL      time.Duration
	PendingCapacity int
	Recording       bool
}

// FinalizeFunc is called, outside the lock, for every record promoted to the
// finalized list.
type FinalizeFunc func(model.RecordedRequest)

// State is safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	pending   map[string]*pendingEntry
	finalized []model.RecordedRequest
	seq       uint64

	recording atomic.Bool
	replaying atomic.Bool

	ttl        time.Duration
	capacity   int
	now        func() time.Time
	onFinalize []FinalizeFunc
}

func NewState(opts Options) *State {
	s := &State{
		pending:  make(map[string]*pendingEntry),
		ttl:      opts.PendingTTL,
		capacity: opts.PendingCapacity,
		now:      time.Now,
	}
	s.recording.Store(opts.Recording)
	return s
}

// OnFinalize registers fn to observe finalized records. Not safe to call
// once signals are flowing.
func (s *State) OnFinalize(fn FinalizeFunc) {
	s.onFinalize = append(s.onFinalize, fn)
}

func (s *State) Recording() bool {
	return s.recording.Load()
}

func (s *State) SetRecording(on bool) {
	s.recording.Store(on)
}

func (s *State) Replaying() bool {
	return s.replaying.Load()
}

// BeginReplay flips replaying from false to true. It returns false when a
// replay is already running; the caller must not call EndReplay then.
func (s *State) BeginReplay() bool {
	return s.replaying.CompareAndSwap(false, true)
}

func (s *State) EndReplay() {
	s.replaying.Store(false)
}

// Start creates a pending entry for id, replacing any entry already under
// that id. When the table is at capacity the oldest pending entry is evicted
// and its id returned.
func (s *State) Start(id string, record model.RecordedRequest) (evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[id]; !exists && s.capacity > 0 && len(s.pending) >= s.capacity {
		evicted = s.oldestPendingLocked()
		delete(s.pending, evicted)
	}

	s.seq++
	rec := record.Clone()
	s.pending[id] = &pendingEntry{
		record:  &rec,
		addedAt: s.now(),
		seq:     s.seq,
	}
	return evicted
}

// AttachHeaders replaces the headers of the pending entry for id. It reports
// whether an entry existed.
func (s *State) AttachHeaders(id string, headers []model.Header) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return false
	}
	entry.record.Headers = append([]model.Header(nil), headers...)
	return true
}

// Conclude moves the pending entry for id to the end of the finalized list.
// It reports whether an entry existed.
func (s *State) Conclude(id string) bool {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, id)
	record := *entry.record
	s.finalized = append(s.finalized, record)
	hooks := s.onFinalize
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(record.Clone())
	}
	return true
}

// All returns a copy of the finalized list in conclusion order.
func (s *State) All() []model.RecordedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RecordedRequest, len(s.finalized))
	for i, record := range s.finalized {
		out[i] = record.Clone()
	}
	return out
}

// Oldest returns a copy of the first finalized record.
func (s *State) Oldest() (model.RecordedRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.finalized) == 0 {
		return model.RecordedRequest{}, false
	}
	return s.finalized[0].Clone(), true
}

// Clear drops every finalized record and every pending entry.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalized = nil
	s.pending = make(map[string]*pendingEntry)
}

// Sizes returns the pending and finalized counts.
func (s *State) Sizes() (pending, finalized int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), len(s.finalized)
}

// HasPending reports whether id has a pending entry.
func (s *State) HasPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

func (s *State) oldestPendingLocked() string {
	var (
		oldestID  string
		oldestSeq uint64
	)
	for id, entry := range s.pending {
		if oldestID == "" || entry.seq < oldestSeq {
			oldestID = id
			oldestSeq = entry.seq
		}
	}
	return oldestID
}
