package redis

import (
	"context"
	"sync"
	"time"

	"dispatch/internal/domain"
)

type memorySlot struct {
	sample    domain.LocationSample
	expiresAt time.Time
}

// MemoryLocationStore is an in-process LocationStoreInterface for
// single-instance deployments that run without Redis.
type MemoryLocationStore struct {
	mu    sync.Mutex
	slots map[string]memorySlot
	now   func() time.Time
}

// NewMemoryLocationStore creates an empty MemoryLocationStore.
func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{
		slots: make(map[string]memorySlot),
		now:   time.Now,
	}
}

func (s *MemoryLocationStore) Set(_ context.Context, sample domain.LocationSample, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.slots[sample.RideID]; ok && now.Before(cur.expiresAt) {
		if sampleClock(sample.Timestamp) < sampleClock(cur.sample.Timestamp) {
			return false, nil
		}
	}

	s.slots[sample.RideID] = memorySlot{sample: sample, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryLocationStore) Get(_ context.Context, rideID string) (*domain.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[rideID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(slot.expiresAt) {
		delete(s.slots, rideID)
		return nil, nil
	}

	sample := slot.sample
	return &sample, nil
}

func (s *MemoryLocationStore) Evict(_ context.Context, rideID string) error {
	s.mu.Lock()
	delete(s.slots, rideID)
	s.mu.Unlock()
	return nil
}
