package geo

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/example/ride-simulator/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceSameAndSymmetric(t *testing.T) {
	pts := []models.Coord{
		{Lat: 47.9186, Lon: 106.9170},
		{Lat: 47.9150, Lon: 106.9250},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 40.7128, Lon: -74.0060},
		{Lat: 0, Lon: 179.9999},
	}
	for _, a := range pts {
		if got := Distance(a, a); got != 0 {
			t.Fatalf("distance(%v,%v) = %f, want 0", a, a, got)
		}
		for _, b := range pts {
			if Distance(a, b) != Distance(b, a) {
				t.Fatalf("distance not symmetric for %v %v", a, b)
			}
		}
	}
}

func TestDistanceKnown(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.Coord
		wantM     float64
		tolerance float64
	}{
		{"ulaanbaatar short hop", models.Coord{Lat: 47.9186, Lon: 106.9170}, models.Coord{Lat: 47.9150, Lon: 106.9250}, 718, 15},
		{"new york to los angeles", models.Coord{Lat: 40.7128, Lon: -74.0060}, models.Coord{Lat: 34.0522, Lon: -118.2437}, 3944000, 50000},
		{"one degree of latitude", models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 0}, 111195, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("Distance() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	tests := []struct {
		name string
		to   models.Coord
		want float64
	}{
		{"north", models.Coord{Lat: 1, Lon: 0}, 0},
		{"east", models.Coord{Lat: 0, Lon: 1}, 90},
		{"south", models.Coord{Lat: -1, Lon: 0}, 180},
		{"west", models.Coord{Lat: 0, Lon: -1}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Bearing() = %f, want %f", got, tt.want)
			}
			if got < 0 || got >= 360 {
				t.Errorf("Bearing() = %f outside [0,360)", got)
			}
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	origin := models.Coord{Lat: 47.9186, Lon: 106.9170}
	for _, brg := range []float64{0, 45, 135, 220, 310} {
		p := Destination(origin, brg, 1500)
		if d := Distance(origin, p); math.Abs(d-1500) > 0.5 {
			t.Fatalf("bearing %v: distance %f, want 1500", brg, d)
		}
		if b := Bearing(origin, p); angleDiff(b, brg) > 0.01 {
			t.Fatalf("bearing %v: got %f", brg, b)
		}
	}
}

func TestInterpolateAndPathLength(t *testing.T) {
	a := models.Coord{Lat: 0, Lon: 0}
	b := models.Coord{Lat: 0, Lon: 2}
	mid := Interpolate(a, b, 0.5)
	if mid.Lat != 0 || mid.Lon != 1 {
		t.Fatalf("unexpected midpoint %v", mid)
	}
	if Interpolate(a, b, -1) != a || Interpolate(a, b, 2) != b {
		t.Fatal("interpolate must clamp t")
	}
	total := PathLength([]models.Coord{a, mid, b})
	if math.Abs(total-Distance(a, b)) > 1e-6 {
		t.Fatalf("path length %f != direct %f", total, Distance(a, b))
	}
	if PathLength(nil) != 0 || PathLength([]models.Coord{a}) != 0 {
		t.Fatal("degenerate paths must have zero length")
	}
}

func TestIndexNearbySkipsOffline(t *testing.T) {
	g := NewIndex()
	g.Upsert(models.Driver{ID: "far", Loc: models.Coord{Lat: 1, Lon: 1}, Online: true})
	g.Upsert(models.Driver{ID: "near", Loc: models.Coord{Lat: 0.001, Lon: 0.001}, Online: true})
	g.Upsert(models.Driver{ID: "off", Loc: models.Coord{Lat: 0, Lon: 0}, Online: false})
	got := g.Nearby(0, 0, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 online drivers, got %d", len(got))
	}
	if got[0].ID != "near" {
		t.Fatalf("expected near first, got %s", got[0].ID)
	}
}

func TestSeedFleetWithinRadius(t *testing.T) {
	g := NewIndex()
	center := models.Coord{Lat: 47.9186, Lon: 106.9170}
	drivers := SeedFleet(g, center, 3000, 10, rand.New(rand.NewSource(7)))
	if g.Len() != 10 || len(drivers) != 10 {
		t.Fatalf("expected 10 drivers, got %d", g.Len())
	}
	for _, d := range drivers {
		if Distance(center, d.Loc) > 3000.5 {
			t.Fatalf("driver %s outside radius", d.ID)
		}
		if d.Rating < 4 || d.Rating > 5 {
			t.Fatalf("rating out of range: %f", d.Rating)
		}
	}
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestMetaFieldsReadBack(t *testing.T) {
	in := models.Driver{ID: "d1", Name: "Oyuna", Vehicle: "Kia K5", Plate: "1234 УБА", Phone: "+97699112233", Rating: 4.7, Online: true}
	raw := MetaFields(in)
	m := make(map[string]string, len(raw))
	for k, v := range raw {
		m[k] = fmt.Sprint(v)
	}
	var out models.Driver
	applyMeta(&out, m)
	if out.Name != in.Name || out.Plate != in.Plate || !out.Online || math.Abs(out.Rating-4.7) > 1e-9 {
		t.Fatalf("metadata did not survive: %+v", out)
	}
	if MetaKey("d1") != "driver:meta:d1" {
		t.Fatal("unexpected meta key")
	}
}
