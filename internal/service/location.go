package service

import (
	"context"
	"errors"
	"log"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// LocationConfig bounds which samples are accepted and how long they live.
type LocationConfig struct {
	StalenessThreshold time.Duration
	FutureSkew         time.Duration
	TTL                time.Duration
}

// LocationService keeps the latest technician position of each active ride
// and fans it out to the ride room and the admin room. Nothing is kept
// beyond the current sample.
type LocationService struct {
	store     redis.LocationStoreInterface
	rideRepo  repository.RideRepository
	rideCache redis.RideCacheInterface
	publisher EventPublisher
	cfg       LocationConfig
	now       func() time.Time
}

// NewLocationService creates a new LocationService. rideCache may be nil.
func NewLocationService(
	store redis.LocationStoreInterface,
	rideRepo repository.RideRepository,
	rideCache redis.RideCacheInterface,
	publisher EventPublisher,
	cfg LocationConfig,
) *LocationService {
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 30 * time.Second
	}
	if cfg.FutureSkew <= 0 {
		cfg.FutureSkew = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &LocationService{
		store:     store,
		rideRepo:  rideRepo,
		rideCache: rideCache,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetLocation stores and broadcasts a sample from the ride's technician.
// It returns false, without error, when the sample is too old, too far in
// the future, or older than the stored one.
func (s *LocationService) SetLocation(ctx context.Context, technicianID string, sample domain.LocationSample) (bool, error) {
	if sample.RideID == "" {
		return false, ErrInvalidRideID
	}
	if !domain.ValidCoordinates(sample.Lat, sample.Lng) {
		return false, ErrInvalidLocation
	}

	now := s.now()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	if age := now.Sub(sample.Timestamp); age > s.cfg.StalenessThreshold || -age > s.cfg.FutureSkew {
		log.Printf("[LOCATION] %s: ride=%s age=%s", ErrStaleLocation.Code(), sample.RideID, age)
		return false, nil
	}

	ride, err := s.membership(ctx, sample.RideID)
	if err != nil {
		return false, err
	}
	if ride.TechnicianID != technicianID || !domain.RideStatus(ride.Status).IsTrackable() {
		return false, ErrNotTracking
	}

	stored, err := s.store.Set(ctx, sample, s.cfg.TTL)
	if err != nil {
		return false, err
	}
	if !stored {
		log.Printf("[LOCATION] %s: ride=%s out-of-order sample at %s", ErrStaleLocation.Code(), sample.RideID, sample.Timestamp.Format(time.RFC3339Nano))
		return false, nil
	}
	if err := s.confirmTracking(ctx, sample.RideID, technicianID); err != nil {
		return false, err
	}

	s.publisher.Publish(ctx, domain.Event{
		Type:    domain.EventLocationUpdate,
		Room:    domain.RideRoom(sample.RideID),
		RideID:  sample.RideID,
		Payload: locationPayload(sample, ""),
		At:      now,
	})
	s.publisher.Publish(ctx, domain.Event{
		Type:    domain.EventGlobalLocationUpdate,
		Room:    domain.AdminRoom(),
		RideID:  sample.RideID,
		Payload: locationPayload(sample, technicianID),
		At:      now,
	})

	return true, nil
}

// confirmTracking rereads the ride after a store write. The membership check
// may come from the cache or race with a transition, and a ride that ended
// meanwhile has already evicted its slot, so the write is undone here.
func (s *LocationService) confirmTracking(ctx context.Context, rideID, technicianID string) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err == nil && ride.TechnicianID == technicianID && ride.Status.IsTrackable() {
		return nil
	}

	log.Printf("[LOCATION] Ride %s stopped tracking during update, evicting", rideID)
	if err := s.Evict(ctx, rideID); err != nil {
		log.Printf("[LOCATION] Failed to evict location for %s: %v", rideID, err)
	}
	return ErrNotTracking
}

// GetLocation returns the latest sample for a ride the viewer may watch.
func (s *LocationService) GetLocation(ctx context.Context, rideID string, viewer domain.Principal) (*domain.LocationSample, error) {
	if err := s.AuthorizeWatch(ctx, rideID, viewer); err != nil {
		return nil, err
	}

	sample, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, ErrLocationNotFound
	}
	return sample, nil
}

// AuthorizeWatch checks that the viewer may follow the ride's location.
func (s *LocationService) AuthorizeWatch(ctx context.Context, rideID string, viewer domain.Principal) error {
	if rideID == "" {
		return ErrInvalidRideID
	}
	ride, err := s.membership(ctx, rideID)
	if err != nil {
		return err
	}
	if viewer.IsAdmin() || viewer.UserID == ride.CustomerID || (ride.TechnicianID != "" && viewer.UserID == ride.TechnicianID) {
		return nil
	}
	return ErrNotRideParty
}

// Evict drops the ride's sample and cached membership.
func (s *LocationService) Evict(ctx context.Context, rideID string) error {
	if s.rideCache != nil {
		if err := s.rideCache.InvalidateRide(ctx, rideID); err != nil {
			log.Printf("[LOCATION] Failed to invalidate ride cache for %s: %v", rideID, err)
		}
	}
	return s.store.Evict(ctx, rideID)
}

// InvalidateMembership forgets the cached participants of a ride.
func (s *LocationService) InvalidateMembership(ctx context.Context, rideID string) {
	if s.rideCache == nil {
		return
	}
	if err := s.rideCache.InvalidateRide(ctx, rideID); err != nil {
		log.Printf("[LOCATION] Failed to invalidate ride cache for %s: %v", rideID, err)
	}
}

// membership reads ride participants through the cache.
func (s *LocationService) membership(ctx context.Context, rideID string) (*redis.CachedRide, error) {
	if s.rideCache != nil {
		cached, err := s.rideCache.GetRide(ctx, rideID)
		if err != nil {
			log.Printf("[LOCATION] Ride cache read failed for %s: %v", rideID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, err
	}

	cached := &redis.CachedRide{
		ID:           ride.ID,
		CustomerID:   ride.CustomerID,
		TechnicianID: ride.TechnicianID,
		Status:       string(ride.Status),
	}
	if s.rideCache != nil {
		if err := s.rideCache.SetRide(ctx, cached); err != nil {
			log.Printf("[LOCATION] Ride cache write failed for %s: %v", rideID, err)
		}
	}
	return cached, nil
}

func locationPayload(sample domain.LocationSample, technicianID string) map[string]any {
	payload := map[string]any{
		"ride_id":   sample.RideID,
		"lat":       sample.Lat,
		"lng":       sample.Lng,
		"bearing":   sample.Bearing,
		"speed":     sample.Speed,
		"timestamp": sample.Timestamp,
	}
	if sample.Accuracy > 0 {
		payload["accuracy"] = sample.Accuracy
	}
	if technicianID != "" {
		payload["technician_id"] = technicianID
	}
	return payload
}
