package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client  *redis.Client
	rideTTL time.Duration
}

// RideCacheTTL is used when no TTL is configured. Membership changes on
// accept and requeue, both of which invalidate explicitly.
const RideCacheTTL = 10 * time.Second

const rideCachePrefix = "cache:ride:"

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client, rideTTL time.Duration) *CacheStore {
	if rideTTL <= 0 {
		rideTTL = RideCacheTTL
	}
	return &CacheStore{client: client, rideTTL: rideTTL}
}

// CachedRide is the subset of a ride needed to authorize tracking traffic.
type CachedRide struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	TechnicianID string `json:"technician_id"`
	Status       string `json:"status"`
}

// GetRide retrieves a ride from cache.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*CachedRide, error) {
	data, err := s.client.Get(ctx, rideCachePrefix+rideID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var ride CachedRide
	if err := json.Unmarshal(data, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// SetRide stores a ride in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *CachedRide) error {
	data, err := json.Marshal(ride)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rideCachePrefix+ride.ID, data, s.rideTTL).Err()
}

// InvalidateRide removes a ride from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}
