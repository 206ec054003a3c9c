package ridestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/ride-simulator/internal/clock"
	"github.com/example/ride-simulator/internal/lifecycle"
	"github.com/example/ride-simulator/internal/logging"
	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/storage"
)

var (
	t0     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	origin = models.Coord{Lat: 47.9186, Lon: 106.9170}
	dest   = models.Coord{Lat: 47.9150, Lon: 106.9250}
)

func newStore(blob storage.Blob, maxHistory int) (*Store, *clock.Manual) {
	clk := clock.NewManual(t0)
	return New(Config{MaxHistory: maxHistory, Blob: blob, Clock: clk, Logger: logging.Discard()}), clk
}

func request(s *Store, id string) error {
	d := dest
	_, err := s.Update(func(r *models.Ride) error {
		return lifecycle.RequestRide(r, lifecycle.Request{ID: id, RiderID: "rider-1", Origin: origin, Destination: &d, Currency: "MNT"}, s.Now())
	})
	return err
}

func TestDefaultIsIdle(t *testing.T) {
	s, _ := newStore(nil, 0)
	if got := s.GetActiveRide().Status; got != models.StatusIdle {
		t.Fatalf("expected IDLE, got %s", got)
	}
	if len(s.GetHistory()) != 0 {
		t.Fatal("expected empty history")
	}
	if s.MaxHistory() != DefaultMaxHistory {
		t.Fatalf("expected default cap %d, got %d", DefaultMaxHistory, s.MaxHistory())
	}
}

func TestFailedUpdateLeavesStateUntouched(t *testing.T) {
	blob := storage.NewMemoryBlob()
	s, _ := newStore(blob, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	before, _ := json.Marshal(s.GetActiveRide())
	boom := errors.New("boom")
	_, err := s.Update(func(r *models.Ride) error {
		r.CurrentFare = 99999
		r.Status = models.StatusPaying
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after, _ := json.Marshal(s.GetActiveRide())
	if string(before) != string(after) {
		t.Fatalf("state changed on failed update:\n%s\n%s", before, after)
	}
}

func TestSetStatusRejectsSkips(t *testing.T) {
	s, _ := newStore(nil, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(models.StatusInRide); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if got := s.GetActiveRide().Status; got != models.StatusSearching {
		t.Fatalf("expected SEARCHING, got %s", got)
	}
}

func TestTerminalTransitionArchivesOnce(t *testing.T) {
	s, _ := newStore(nil, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	// second cancel is a no-op and must not archive again
	if _, err := s.SetStatus(models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	h := s.GetHistory()
	if len(h) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(h))
	}
	if h[0].RideID != "ride-1" || h[0].Status != models.StatusCancelled {
		t.Fatalf("unexpected entry %+v", h[0])
	}
}

func TestCancelFromIdleDoesNotArchive(t *testing.T) {
	s, _ := newStore(nil, 5)
	if _, err := s.SetStatus(models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if len(s.GetHistory()) != 0 {
		t.Fatal("idle cancel must not produce history")
	}
}

func TestHistoryCapNewestFirst(t *testing.T) {
	s, _ := newStore(nil, 3)
	for i := 1; i <= 5; i++ {
		s.AppendHistory(models.HistoryEntry{RideID: fmt.Sprintf("r%d", i)})
	}
	h := s.GetHistory()
	if len(h) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(h))
	}
	for i, want := range []string{"r5", "r4", "r3"} {
		if h[i].RideID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, h[i].RideID)
		}
	}
	s.ClearHistory()
	if len(s.GetHistory()) != 0 {
		t.Fatal("expected cleared history")
	}
}

func TestMergeRideInfo(t *testing.T) {
	s, _ := newStore(nil, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	route := []models.Coord{origin, dest}
	if _, err := s.MergeRideInfo(models.RidePatch{Route: route}); err != nil {
		t.Fatal(err)
	}
	fare := int64(4200)
	idx := 7
	adv := models.AdvisoryRouteUnavailable
	r, err := s.MergeRideInfo(models.RidePatch{CurrentFare: &fare, RouteIndex: &idx, Advisory: &adv})
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentFare != 4200 || r.Advisory != adv {
		t.Fatalf("patch not applied: %+v", r)
	}
	if r.RouteIndex != 1 {
		t.Fatalf("route index must clamp to last point, got %d", r.RouteIndex)
	}
	lower := int64(100)
	back := 0
	r, _ = s.MergeRideInfo(models.RidePatch{CurrentFare: &lower, RouteIndex: &back})
	if r.CurrentFare != 4200 {
		t.Fatalf("fare went down to %d", r.CurrentFare)
	}
	if r.RouteIndex != 1 {
		t.Fatalf("route index went back to %d", r.RouteIndex)
	}
	if r.Status != models.StatusSearching {
		t.Fatalf("merge must not touch status, got %s", r.Status)
	}
}

func TestResetOnlyWhenFinished(t *testing.T) {
	s, _ := newStore(nil, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ResetRide(); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := s.SetStatus(models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	r, err := s.ResetRide()
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusIdle || r.ID != "" || r.Driver != nil {
		t.Fatalf("expected fresh idle ride, got %+v", r)
	}
	if len(s.GetHistory()) != 1 {
		t.Fatal("reset must keep history")
	}
}

func TestRoundTripThroughBlob(t *testing.T) {
	blob := storage.NewMemoryBlob()
	s, _ := newStore(blob, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	drv := models.Driver{ID: "d1", Name: "Bat", Rating: 4.7, Loc: origin}
	if _, err := s.Update(func(r *models.Ride) error { return lifecycle.MatchDriver(r, drv, s.Now()) }); err != nil {
		t.Fatal(err)
	}
	s.AppendHistory(models.HistoryEntry{RideID: "old", Fare: 5000, Date: t0})

	restored, _ := newStore(blob, 5)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	want, _ := json.Marshal(s.GetActiveRide())
	got, _ := json.Marshal(restored.GetActiveRide())
	if string(want) != string(got) {
		t.Fatalf("active ride mismatch:\nwant %s\ngot  %s", want, got)
	}
	wantH, _ := json.Marshal(s.GetHistory())
	gotH, _ := json.Marshal(restored.GetHistory())
	if string(wantH) != string(gotH) {
		t.Fatalf("history mismatch:\nwant %s\ngot  %s", wantH, gotH)
	}
}

func TestLoadMissingKeepsDefault(t *testing.T) {
	s, _ := newStore(storage.NewMemoryBlob(), 5)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("missing state is not an error: %v", err)
	}
	if s.GetActiveRide().Status != models.StatusIdle {
		t.Fatal("expected IDLE")
	}
}

func TestLoadCorruptFallsBackToIdle(t *testing.T) {
	for name, data := range map[string]string{
		"garbage":   "{not json",
		"version":   `{"version":9,"status":"IN_RIDE","history":[]}`,
		"status":    `{"version":1,"status":"FLYING","history":[]}`,
		"routeIndx": `{"version":1,"status":"IN_RIDE","route":[{"lat":1,"lng":1}],"routeIndex":4,"history":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			blob := storage.NewMemoryBlob()
			blob.Set([]byte(data))
			s, _ := newStore(blob, 5)
			err := s.Load(context.Background())
			if !errors.Is(err, ErrPersistenceUnavailable) {
				t.Fatalf("expected persistence error, got %v", err)
			}
			if s.GetActiveRide().Status != models.StatusIdle || len(s.GetHistory()) != 0 {
				t.Fatal("expected default state")
			}
		})
	}
}

func TestLoadTruncatesHistory(t *testing.T) {
	blob := storage.NewMemoryBlob()
	blob.Set([]byte(`{"version":1,"status":"IDLE","history":[{"ride_id":"a"},{"ride_id":"b"},{"ride_id":"c"}]}`))
	s, _ := newStore(blob, 2)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	h := s.GetHistory()
	if len(h) != 2 || h[0].RideID != "a" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestPersistFailureKeepsServing(t *testing.T) {
	blob := storage.NewMemoryBlob()
	blob.Fail = errors.New("disk full")
	s, _ := newStore(blob, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatalf("update must succeed in memory: %v", err)
	}
	if s.GetActiveRide().Status != models.StatusSearching {
		t.Fatal("expected SEARCHING in memory")
	}
}

func TestSubscribeDeliversNewest(t *testing.T) {
	s, _ := newStore(nil, 5)
	ch, cancel := s.Subscribe()
	defer cancel()
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < subscriberBuffer*2; i++ {
		km := float64(i)
		if _, err := s.MergeRideInfo(models.RidePatch{DistanceKm: &km}); err != nil {
			t.Fatal(err)
		}
	}
	var last models.Ride
	n := 0
drain:
	for {
		select {
		case r := <-ch:
			last = r
			n++
		default:
			break drain
		}
	}
	if n == 0 || n > subscriberBuffer {
		t.Fatalf("unexpected delivery count %d", n)
	}
	if last.DistanceKm != float64(subscriberBuffer*2-1) {
		t.Fatalf("expected newest snapshot, got distance %v", last.DistanceKm)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s, _ := newStore(nil, 5)
	ch, cancel := s.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateIfIgnoresSupersededRide(t *testing.T) {
	s, _ := newStore(nil, 5)
	if err := request(s, "ride-1"); err != nil {
		t.Fatal(err)
	}
	_, err := s.UpdateIf("ride-0", func(r *models.Ride) error {
		r.CurrentFare = 1
		return nil
	})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if s.GetActiveRide().CurrentFare != 0 {
		t.Fatal("stale update applied")
	}
}
