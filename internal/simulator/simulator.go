// Package simulator advances a vehicle cursor along a route.
package simulator

import (
	"time"

	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
)

// DefaultSpeedKmh is the average city speed used when none is configured.
const DefaultSpeedKmh = 30.0

// Simulator moves a cursor along a route at a constant average speed.
type Simulator struct {
	SpeedKmh float64
	// Interpolate places the vehicle between route points instead of
	// snapping it to the last point passed.
	Interpolate bool
}

// Step is the outcome of one advance.
type Step struct {
	Index    int
	CarryM   float64
	Position models.Coord
	// MovedM is the distance actually covered during this step.
	MovedM  float64
	Arrived bool
}

// SpeedMps returns the configured speed in meters per second.
func (s Simulator) SpeedMps() float64 {
	kmh := s.SpeedKmh
	if kmh <= 0 {
		kmh = DefaultSpeedKmh
	}
	return kmh * 1000 / 3600
}

// MetersPerTick is how far the vehicle moves during one tick period.
func (s Simulator) MetersPerTick(tick time.Duration) float64 {
	return s.SpeedMps() * tick.Seconds()
}

// Advance moves the cursor (index, carryM) forward by elapsed wall-clock
// time. The cursor never moves backwards and never passes the last index.
// route must not be empty.
func (s Simulator) Advance(route []models.Coord, index int, carryM float64, elapsed time.Duration) Step {
	if len(route) == 0 {
		return Step{Arrived: true}
	}
	last := len(route) - 1
	if index < 0 {
		index = 0
	}
	if index >= last {
		return Step{Index: last, Position: route[last], Arrived: true}
	}
	if carryM < 0 {
		carryM = 0
	}
	delta := 0.0
	if elapsed > 0 {
		delta = s.MetersPerTick(elapsed)
	}

	budget := carryM + delta
	consumed := 0.0
	for index < last {
		seg := geo.Distance(route[index], route[index+1])
		if budget < seg {
			break
		}
		budget -= seg
		consumed += seg
		index++
	}

	if index == last {
		return Step{
			Index:    last,
			Position: route[last],
			MovedM:   consumed - carryM,
			Arrived:  true,
		}
	}
	st := Step{Index: index, CarryM: budget, Position: route[index], MovedM: delta}
	if s.Interpolate {
		if seg := geo.Distance(route[index], route[index+1]); seg > 0 {
			st.Position = geo.Interpolate(route[index], route[index+1], budget/seg)
		}
	}
	return st
}
