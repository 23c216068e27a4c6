package dedup

import (
	"sync"
	"time"
)

// Store remembers publication ids that have already been alerted, with a TTL
// after which a repeat alert is permitted again. It is shared between the
// notifier worker and on-demand scans, hence the mutex.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxKeys int
	items   map[string]time.Time // id -> expiry
	now     func() time.Time
}

func NewStore(ttl time.Duration, maxKeys int) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &Store{
		ttl:     ttl,
		maxKeys: maxKeys,
		items:   make(map[string]time.Time, 64),
		now:     time.Now,
	}
}

// Seen reports whether id was marked within the TTL window. Expired entries
// are removed on the way out.
func (s *Store) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[id]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.items, id)
		return false
	}
	return true
}

// Mark records id as alerted, refreshing its expiry. When the store grows
// past its bound the expired entries are swept; if that is not enough,
// arbitrary entries go too, since losing dedup state only risks a duplicate
// alert, never a missed one.
func (s *Store) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = s.now().Add(s.ttl)
	if len(s.items) > s.maxKeys {
		s.sweep()
	}
}

// Len reports the number of tracked ids, expired included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) sweep() {
	now := s.now()
	for id, exp := range s.items {
		if now.After(exp) {
			delete(s.items, id)
		}
	}
	for id := range s.items {
		if len(s.items) <= s.maxKeys {
			break
		}
		delete(s.items, id)
	}
}
