package eta

import (
	"math"
	"testing"
	"time"

	"github.com/example/ride-simulator/internal/models"
)

func TestEstimateSecondsDefaultsSpeed(t *testing.T) {
	a := models.Coord{Lat: 0, Lon: 0}
	b := models.Coord{Lat: 0.01, Lon: 0}
	withDefault := EstimateSeconds(a, b, 0)
	explicit := EstimateSeconds(a, b, DefaultSpeedMps)
	if withDefault != explicit {
		t.Fatalf("expected default speed to apply, got %f vs %f", withDefault, explicit)
	}
	if EstimateSeconds(a, a, 10) != 0 {
		t.Fatal("same point must be zero seconds")
	}
}

func TestRemainingOnRoute(t *testing.T) {
	route := []models.Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}, {Lat: 0, Lon: 0.02}}
	full := RemainingOnRoute(route, 0, 0)
	half := RemainingOnRoute(route, 1, 0)
	if math.Abs(full-2*half) > 0.01 {
		t.Fatalf("expected full=%f to be twice half=%f", full, half)
	}
	if got := RemainingOnRoute(route, 1, half+10); got != 0 {
		t.Fatalf("carry past end must clamp to 0, got %f", got)
	}
	if got := RemainingOnRoute(route, 2, 0); got != 0 {
		t.Fatalf("at last index expected 0, got %f", got)
	}
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	a := models.Coord{Lat: 1, Lon: 2}
	b := models.Coord{Lat: 3, Lon: 4}
	c.Set(a, b, 42)
	if v, ok := c.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected cached 42, got %v %v", v, ok)
	}
	if _, ok := c.Get(b, a); ok {
		t.Fatal("cache key must be directional")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expected entry to expire")
	}
}
