package simulator

import (
	"math"
	"testing"
	"time"

	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
)

// eastward route with ~111m between consecutive points
func testRoute(n int) []models.Coord {
	out := make([]models.Coord, n)
	for i := range out {
		out[i] = models.Coord{Lat: 0, Lon: float64(i) * 0.001}
	}
	return out
}

func TestSpeedConversion(t *testing.T) {
	s := Simulator{SpeedKmh: 36}
	if s.SpeedMps() != 10 {
		t.Fatalf("36 km/h must be 10 m/s, got %f", s.SpeedMps())
	}
	if got := s.MetersPerTick(500 * time.Millisecond); got != 5 {
		t.Fatalf("expected 5m per half second, got %f", got)
	}
	if (Simulator{}).SpeedMps() != DefaultSpeedKmh*1000/3600 {
		t.Fatal("zero speed must fall back to default")
	}
}

func TestAdvanceMonotonicAndBounded(t *testing.T) {
	route := testRoute(20)
	s := Simulator{SpeedKmh: 40}
	idx, carry := 0, 0.0
	total := 0.0
	for i := 0; i < 500; i++ {
		st := s.Advance(route, idx, carry, time.Second)
		if st.Index < idx {
			t.Fatalf("tick %d: index went backwards %d -> %d", i, idx, st.Index)
		}
		if st.Index > len(route)-1 {
			t.Fatalf("tick %d: index %d out of bounds", i, st.Index)
		}
		total += st.MovedM
		idx, carry = st.Index, st.CarryM
		if st.Arrived {
			break
		}
	}
	if idx != len(route)-1 {
		t.Fatalf("expected to reach last index, got %d", idx)
	}
	if want := geo.PathLength(route); math.Abs(total-want) > 1e-6 {
		t.Fatalf("moved %f, route length %f", total, want)
	}
}

func TestAdvanceCarriesPartialSegments(t *testing.T) {
	route := testRoute(3)
	seg := geo.Distance(route[0], route[1])
	s := Simulator{SpeedKmh: 3.6} // 1 m/s
	st := s.Advance(route, 0, 0, time.Duration(seg/2*float64(time.Second)))
	if st.Index != 0 || st.Arrived {
		t.Fatalf("half a segment must not move the index: %+v", st)
	}
	if st.Position != route[0] {
		t.Fatal("without interpolation the vehicle snaps to the route point")
	}
	st = s.Advance(route, st.Index, st.CarryM, time.Duration(seg/2*float64(time.Second))+time.Millisecond)
	if st.Index != 1 {
		t.Fatalf("two halves must cross the first point, got index %d", st.Index)
	}
}

func TestAdvanceInterpolates(t *testing.T) {
	route := testRoute(2)
	seg := geo.Distance(route[0], route[1])
	s := Simulator{SpeedKmh: 3.6, Interpolate: true}
	st := s.Advance(route, 0, 0, time.Duration(seg/2*float64(time.Second)))
	if math.Abs(st.Position.Lon-0.0005) > 1e-6 {
		t.Fatalf("expected midpoint, got %v", st.Position)
	}
}

func TestAdvanceDegenerateRoutes(t *testing.T) {
	s := Simulator{SpeedKmh: 30}
	single := []models.Coord{{Lat: 1, Lon: 1}}
	st := s.Advance(single, 0, 0, time.Second)
	if !st.Arrived || st.Index != 0 || st.Position != single[0] {
		t.Fatalf("single point route must arrive immediately: %+v", st)
	}
	if st := s.Advance(nil, 0, 0, time.Second); !st.Arrived {
		t.Fatal("empty route must report arrival")
	}
	route := testRoute(4)
	if st := s.Advance(route, 10, 0, time.Second); st.Index != 3 || !st.Arrived {
		t.Fatalf("cursor past end must clamp: %+v", st)
	}
	if st := s.Advance(route, 1, 0, 0); st.Index != 1 || st.MovedM != 0 {
		t.Fatalf("zero elapsed must not move: %+v", st)
	}
}
