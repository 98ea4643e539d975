package redis

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// LocationStoreInterface holds the single latest sample per ride.
type LocationStoreInterface interface {
	// Set stores sample unless the stored one is strictly newer. Returns
	// whether the sample was stored.
	Set(ctx context.Context, sample domain.LocationSample, ttl time.Duration) (bool, error)
	// Get returns the stored sample, or nil when there is none.
	Get(ctx context.Context, rideID string) (*domain.LocationSample, error)
	Evict(ctx context.Context, rideID string) error
}

// RideCacheInterface caches the ride membership fields read on every location update.
type RideCacheInterface interface {
	GetRide(ctx context.Context, rideID string) (*CachedRide, error)
	SetRide(ctx context.Context, ride *CachedRide) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireWithdrawalLock(ctx context.Context, withdrawalID string, ttl time.Duration) (bool, error)
	ReleaseWithdrawalLock(ctx context.Context, withdrawalID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LocationStoreInterface = (*MemoryLocationStore)(nil)
	_ RideCacheInterface     = (*CacheStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
