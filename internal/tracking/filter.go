package tracking

import (
	"math"

	"dispatch/internal/domain"
)

// EarthRadiusM is the mean radius of Earth in meters.
const EarthRadiusM = 6_371_000.0

// DistanceM returns the great-circle distance between two samples in meters.
func DistanceM(a, b domain.LocationSample) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLng*sinLng
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// Filter drops samples that are older than the last accepted one or that
// barely moved. Not safe for concurrent use.
type Filter struct {
	minMovementM float64
	last         *domain.LocationSample
}

// NewFilter creates a Filter with the given minimum movement in meters.
func NewFilter(minMovementM float64) *Filter {
	return &Filter{minMovementM: minMovementM}
}

// Accept reports whether the sample should be shown and, if so, remembers it.
func (f *Filter) Accept(s domain.LocationSample) bool {
	if f.last != nil {
		if s.Timestamp.Before(f.last.Timestamp) {
			return false
		}
		if DistanceM(*f.last, s) <= f.minMovementM {
			return false
		}
	}
	f.last = &s
	return true
}

// Last returns the last accepted sample, if any.
func (f *Filter) Last() (domain.LocationSample, bool) {
	if f.last == nil {
		return domain.LocationSample{}, false
	}
	return *f.last, true
}

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
