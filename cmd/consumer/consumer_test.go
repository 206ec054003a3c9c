package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-simulator/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastKey  string
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastKey = key
	f.lastMeta = values
	return nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	d := &models.Driver{ID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Rating: 4.5, Online: true}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "drivers_geo", d, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastKey != "driver:meta:d1" || f.lastMeta["online"] != "true" {
		t.Fatalf("unexpected meta %q %v", f.lastKey, f.lastMeta)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	d := &models.Driver{ID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Rating: 4.5, Online: true}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "drivers_geo", d, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestDriverFromEvent(t *testing.T) {
	loc := models.Coord{Lat: 47.91, Lon: 106.92}
	ev := models.RideEvent{
		RideID:  "ride-1",
		Status:  models.StatusInRide,
		Driver:  &models.Driver{ID: "d1", Name: "Anar", Rating: 4.8, Loc: models.Coord{Lat: 1, Lon: 1}},
		Vehicle: &loc,
	}
	b, _ := json.Marshal(ev)
	d, err := driverFromEvent(b)
	if err != nil {
		t.Fatal(err)
	}
	if d.Loc != loc || d.Online {
		t.Fatalf("expected busy driver at vehicle position, got %+v", d)
	}

	ev.Status = models.StatusCompleted
	b, _ = json.Marshal(ev)
	if d, _ = driverFromEvent(b); !d.Online {
		t.Fatal("driver should be back online after the ride")
	}
}

func TestDriverFromEventWithoutVehicle(t *testing.T) {
	b, _ := json.Marshal(models.RideEvent{RideID: "ride-1", Status: models.StatusSearching})
	if _, err := driverFromEvent(b); !errors.Is(err, errNoVehicle) {
		t.Fatalf("expected errNoVehicle, got %v", err)
	}
	if _, err := driverFromEvent([]byte("{")); err == nil || errors.Is(err, errNoVehicle) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
