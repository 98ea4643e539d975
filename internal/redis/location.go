package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const locationKeyPrefix = "location:ride:"

// sampleClock is the precision at which sample timestamps are ordered.
// Both stores compare at it, and it stays exact as a Lua number.
func sampleClock(ts time.Time) int64 {
	return ts.UnixMicro()
}

// setIfNotOlder stores the sample only when no strictly newer one exists.
// KEYS[1] slot key; ARGV[1] sample ts (unix µs); ARGV[2] payload; ARGV[3] ttl ms.
var setIfNotOlder = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'ts')
if current and tonumber(ARGV[1]) < tonumber(current) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// LocationStore keeps the latest location sample of each active ride in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// Set writes the sample atomically, rejecting it if the slot holds a newer one.
func (s *LocationStore) Set(ctx context.Context, sample domain.LocationSample, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(sample)
	if err != nil {
		return false, err
	}

	stored, err := setIfNotOlder.Run(ctx, s.client,
		[]string{locationKeyPrefix + sample.RideID},
		sampleClock(sample.Timestamp), data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("set location: %w", err)
	}

	return stored == 1, nil
}

// Get returns the latest sample for a ride, or nil on a miss.
func (s *LocationStore) Get(ctx context.Context, rideID string) (*domain.LocationSample, error) {
	data, err := s.client.HGet(ctx, locationKeyPrefix+rideID, "data").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var sample domain.LocationSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}

// Evict drops the ride's slot.
func (s *LocationStore) Evict(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, locationKeyPrefix+rideID).Err()
}
