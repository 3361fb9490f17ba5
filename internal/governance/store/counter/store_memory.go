package counter

import (
	"context"
	"strconv"
	"sync"
	"time"

	dErrors "teagate/pkg/domain-errors"
)

// MemoryStore is a mutex-guarded, Redis-shaped counter store for unit
// tests and single-instance deployments. Expiry is enforced lazily on
// access, which is sufficient because every read path checks it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	// now is swappable so tests can control window expiry.
	now func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry at key, dropping it first if expired.
// Must be called while holding s.mu.
func (s *MemoryStore) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &entry{value: "0"}
		s.entries[key] = e
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInternal, "value at %q is not an integer", key)
	}
	n += delta
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) DecrIfAtLeast(_ context.Context, key string, amount int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		if amount <= 0 {
			return 0, true, nil
		}
		return 0, false, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, false, dErrors.Newf(dErrors.CodeInternal, "value at %q is not an integer", key)
	}
	if n < amount {
		return n, false, nil
	}
	n -= amount
	e.value = strconv.FormatInt(n, 10)
	return n, true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry{value: value}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) != nil {
		return false, nil
	}
	s.entries[key] = &entry{value: value}
	return true, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, false, nil
	}
	return e.expiresAt.Sub(s.now()), true, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
