package breaker

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore keeps breaker state in process. TTLs are checked on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source; tests use it to expire windows.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	return e.value, ok, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	var n int64
	if ok {
		var err error
		n, err = strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key, old, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if (!ok && old != "") || (ok && e.value != old) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: next}
	return true, nil
}

func (s *MemoryStore) Apply(_ context.Context, sets map[string]string, dels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range dels {
		delete(s.entries, k)
	}
	for k, v := range sets {
		s.entries[k] = memoryEntry{value: v}
	}
	return nil
}
