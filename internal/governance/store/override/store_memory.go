package override

import (
	"context"
	"sort"
	"sync"

	"teagate/internal/governance/models"
)

// MemoryStore keeps per-identity overrides in a map. Used by unit tests
// and dev mode; production uses PostgresStore.
type MemoryStore struct {
	mu        sync.RWMutex
	overrides map[string]*models.OverrideConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides: make(map[string]*models.OverrideConfig),
	}
}

func (s *MemoryStore) GetOverrides(_ context.Context, identity string) (*models.OverrideConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[identity]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state.
	out := *o
	return &out, nil
}

func (s *MemoryStore) SetRateLimitOverride(_ context.Context, identity string, limit *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.getOrCreate(identity)
	o.RateLimitOverride = copyInt(limit)
	s.dropIfEmpty(identity, o)
	return nil
}

func (s *MemoryStore) SetHardCapOverride(_ context.Context, identity string, cap *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.getOrCreate(identity)
	o.QuotaCapOverride = copyInt(cap)
	s.dropIfEmpty(identity, o)
	return nil
}

func (s *MemoryStore) ListOverrides(_ context.Context) ([]*models.OverrideConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.OverrideConfig, 0, len(s.overrides))
	for _, o := range s.overrides {
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// getOrCreate must be called while holding s.mu.
func (s *MemoryStore) getOrCreate(identity string) *models.OverrideConfig {
	if o, ok := s.overrides[identity]; ok {
		return o
	}
	o := &models.OverrideConfig{Identity: identity}
	s.overrides[identity] = o
	return o
}

// dropIfEmpty removes the record when both overrides are cleared so
// GetOverrides reports "not configured". Must be called while holding s.mu.
func (s *MemoryStore) dropIfEmpty(identity string, o *models.OverrideConfig) {
	if o.RateLimitOverride == nil && o.QuotaCapOverride == nil {
		delete(s.overrides, identity)
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
