package fare

import (
	"testing"

	"github.com/example/ride-simulator/internal/models"
)

func TestEstimate(t *testing.T) {
	p := Policy{BaseFare: 3000, PerKm: 1500, Minimum: 3500, Currency: "MNT"}
	origin := models.Coord{Lat: 0, Lon: 0}
	oneDeg := models.Coord{Lat: 1, Lon: 0} // ~111.195 km

	cases := []struct {
		name string
		dest *models.Coord
		want int64
	}{
		{"no destination", nil, 3500},
		{"same point hits minimum", &origin, 3500},
		{"one degree", &oneDeg, 3000 + 166793},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Estimate(origin, tc.dest)
			if diff := got - tc.want; diff > 2 || diff < -2 {
				t.Fatalf("expected ~%d got %d", tc.want, got)
			}
		})
	}
}

func TestAccrued(t *testing.T) {
	p := Policy{BaseFare: 3000, PerKm: 1500, PerMinute: 100, Minimum: 3000, RoundTo: 10}
	cases := []struct {
		name     string
		km, mins float64
		want     int64
	}{
		{"at pickup", 0, 0, 3000},
		{"two km five min", 2, 5, 3000 + 3000 + 500},
		{"rounded to ten", 0.333, 0, 3500},
		{"negative inputs clamp", -1, -3, 3000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Accrued(tc.km, tc.mins); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestNextIsMonotonic(t *testing.T) {
	p := DefaultPolicy()
	prev := int64(0)
	km, mins := 0.0, 0.0
	for i := 0; i < 200; i++ {
		km += 0.013
		mins += 0.05
		next := p.Next(prev, km, mins)
		if next < prev {
			t.Fatalf("tick %d: fare decreased %d -> %d", i, prev, next)
		}
		prev = next
	}
	if got := p.Next(99999, 0, 0); got != 99999 {
		t.Fatalf("Next must never go below prev, got %d", got)
	}
}
