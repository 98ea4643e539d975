package tracking

import (
	"math"
	"testing"
	"time"

	"dispatch/internal/domain"
)

func TestDistanceM(t *testing.T) {
	t.Parallel()

	a := domain.LocationSample{Lat: 0, Lng: 0}
	b := domain.LocationSample{Lat: 1, Lng: 0}

	// One degree of latitude on the mean sphere.
	want := 2 * math.Pi * EarthRadiusM / 360
	if got := DistanceM(a, b); math.Abs(got-want) > 1 {
		t.Errorf("DistanceM = %v, want %v", got, want)
	}
	if got := DistanceM(a, a); got != 0 {
		t.Errorf("distance to self = %v, want 0", got)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(lat float64, offset time.Duration) domain.LocationSample {
		return domain.LocationSample{RideID: "r1", Lat: lat, Lng: 77.59, Timestamp: base.Add(offset)}
	}

	f := NewFilter(10)
	if _, ok := f.Last(); ok {
		t.Fatal("new filter should have no last sample")
	}

	steps := []struct {
		name   string
		sample domain.LocationSample
		want   bool
	}{
		{"first sample", at(12.9700, 0), true},
		{"did not move", at(12.9700, time.Second), false},
		{"moved 5m", at(12.97004, 2*time.Second), false},
		{"moved ~110m", at(12.9710, 3*time.Second), true},
		{"older than last", at(12.9800, time.Second), false},
		{"moved on", at(12.9720, 4*time.Second), true},
	}
	for _, s := range steps {
		if got := f.Accept(s.sample); got != s.want {
			t.Errorf("%s: Accept = %v, want %v", s.name, got, s.want)
		}
	}

	last, ok := f.Last()
	if !ok || last.Lat != 12.9720 {
		t.Errorf("expected last lat 12.9720, got %v", last.Lat)
	}
}
