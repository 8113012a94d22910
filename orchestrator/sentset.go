package orchestrator

import (
	"sync"
	"time"
)

const (
	DefaultSentTTL      = 10 * time.Second
	DefaultSentCapacity = 4096
)

// SentSet remembers ids this node published so echoes coming back over
// the network can be dropped. Entries expire after the TTL; when the set
// is full the entry closest to expiry is evicted. order is kept sorted by
// expiry, which with a fixed TTL is the order of the last Add.
type SentSet struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	expires  map[string]time.Time
	order    []string
}

// NewSentSet creates a set. Non-positive ttl or capacity take the defaults;
// a nil now uses time.Now.
func NewSentSet(ttl time.Duration, capacity int, now func() time.Time) *SentSet {
	if ttl <= 0 {
		ttl = DefaultSentTTL
	}
	if capacity <= 0 {
		capacity = DefaultSentCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &SentSet{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		expires:  make(map[string]time.Time),
	}
}

// Add records id, refreshing its expiry if present.
func (s *SentSet) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, ok := s.expires[id]; ok {
		s.removeLocked(id)
	}
	s.order = append(s.order, id)
	s.expires[id] = now.Add(s.ttl)
	s.sweepLocked(now)
	for len(s.expires) > s.capacity {
		s.evictOldestLocked()
	}
}

// Contains reports whether id is present and unexpired. An expired entry
// is removed on the way.
func (s *SentSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[id]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		s.removeLocked(id)
		return false
	}
	return true
}

// Sweep drops every expired entry and returns how many were removed.
func (s *SentSet) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *SentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// sweepLocked drops the expired prefix of order.
func (s *SentSet) sweepLocked(now time.Time) int {
	n := 0
	for n < len(s.order) && !now.Before(s.expires[s.order[n]]) {
		delete(s.expires, s.order[n])
		n++
	}
	s.dropPrefixLocked(n)
	return n
}

func (s *SentSet) evictOldestLocked() {
	if len(s.order) == 0 {
		return
	}
	delete(s.expires, s.order[0])
	s.dropPrefixLocked(1)
}

func (s *SentSet) removeLocked(id string) {
	delete(s.expires, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *SentSet) dropPrefixLocked(n int) {
	if n == 0 {
		return
	}
	copy(s.order, s.order[n:])
	for i := len(s.order) - n; i < len(s.order); i++ {
		s.order[i] = ""
	}
	s.order = s.order[:len(s.order)-n]
}
