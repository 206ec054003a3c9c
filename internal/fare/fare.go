// Package fare computes estimated and running fares from a rate policy.
package fare

import (
	"math"

	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
)

// Policy holds the tariff. Amounts are in minor-less currency units.
type Policy struct {
	BaseFare  int64
	PerKm     int64
	PerMinute int64
	Minimum   int64
	// RoundTo rounds every quote to a multiple of this unit; 0 or 1 disables.
	RoundTo  int64
	Currency string
}

// DefaultPolicy is a city tariff in tugrik.
func DefaultPolicy() Policy {
	return Policy{BaseFare: 3000, PerKm: 1500, PerMinute: 100, Minimum: 3000, RoundTo: 10, Currency: "MNT"}
}

// Estimate prices the straight-line distance between origin and destination.
// A ride without destination is quoted at the minimum.
func (p Policy) Estimate(origin models.Coord, destination *models.Coord) int64 {
	if destination == nil {
		return p.round(math.Max(float64(p.BaseFare), float64(p.Minimum)))
	}
	km := geo.Distance(origin, *destination) / 1000
	return p.quote(float64(p.BaseFare) + km*float64(p.PerKm))
}

// Accrued is the fare for distanceKm travelled over durationMin minutes.
// It is non-decreasing in both arguments.
func (p Policy) Accrued(distanceKm, durationMin float64) int64 {
	if distanceKm < 0 {
		distanceKm = 0
	}
	if durationMin < 0 {
		durationMin = 0
	}
	return p.quote(float64(p.BaseFare) + distanceKm*float64(p.PerKm) + durationMin*float64(p.PerMinute))
}

// Next returns the running fare after a tick, never below prev.
func (p Policy) Next(prev int64, distanceKm, durationMin float64) int64 {
	if v := p.Accrued(distanceKm, durationMin); v > prev {
		return v
	}
	return prev
}

func (p Policy) quote(v float64) int64 {
	if v < float64(p.Minimum) {
		v = float64(p.Minimum)
	}
	return p.round(v)
}

func (p Policy) round(v float64) int64 {
	if p.RoundTo <= 1 {
		return int64(math.Round(v))
	}
	unit := float64(p.RoundTo)
	return int64(math.Round(v/unit) * unit)
}
