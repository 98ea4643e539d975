package tracking

import "math"

// NormalizeBearing maps any angle to [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// BearingDelta returns the signed shortest rotation from `from` to `to`,
// in (-180, 180]. 350 -> 10 is +20, 10 -> 350 is -20.
func BearingDelta(from, to float64) float64 {
	d := NormalizeBearing(to) - NormalizeBearing(from)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// BearingSmoother eases the displayed heading towards new readings along
// the shortest arc so the marker never spins the long way round.
type BearingSmoother struct {
	factor  float64
	current float64
	primed  bool
}

// NewBearingSmoother creates a smoother. factor is the share of the delta
// applied per reading, clamped to (0, 1]; 1 disables smoothing.
func NewBearingSmoother(factor float64) *BearingSmoother {
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	return &BearingSmoother{factor: factor}
}

// Next folds in a reading and returns the heading to display.
func (b *BearingSmoother) Next(bearing float64) float64 {
	if !b.primed {
		b.current = NormalizeBearing(bearing)
		b.primed = true
		return b.current
	}
	b.current = NormalizeBearing(b.current + BearingDelta(b.current, bearing)*b.factor)
	return b.current
}
