package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-simulator/internal/logging"
	"github.com/example/ride-simulator/internal/models"
)

type recordingSink struct {
	mu   sync.Mutex
	name string
	got  []string
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, r models.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r.ID)
	return s.err
}

func TestRunFansOutAndSurvivesSinkErrors(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	updates := make(chan models.Ride, 3)
	updates <- models.Ride{ID: "a"}
	updates <- models.Ride{ID: "b"}
	close(updates)

	Run(context.Background(), updates, logging.Discard(), failing, ok)

	for _, s := range []*recordingSink{failing, ok} {
		if strings.Join(s.got, ",") != "a,b" {
			t.Fatalf("%s got %v", s.name, s.got)
		}
	}
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, make(chan models.Ride), nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWebhookPostsRideEvent(t *testing.T) {
	var got models.RideEvent
	var rideHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rideHeader = r.Header.Get("X-Ride-ID")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	loc := models.Coord{Lat: 47.91, Lon: 106.92}
	ride := models.Ride{ID: "ride-1", Status: models.StatusDriverArriving, DriverLocation: &loc, Driver: &models.Driver{ID: "d1"}}
	if err := NewWebhook(srv.URL).Publish(context.Background(), ride); err != nil {
		t.Fatal(err)
	}
	if rideHeader != "ride-1" || got.RideID != "ride-1" || got.Vehicle == nil || *got.Vehicle != loc {
		t.Fatalf("unexpected event %+v (header %q)", got, rideHeader)
	}
}

func TestWebhookReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhook(srv.URL).Publish(context.Background(), models.Ride{ID: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestWSHubBroadcasts(t *testing.T) {
	hub := NewWSHub(logging.Discard())
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
		close(registered)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	<-registered
	if hub.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", hub.Len())
	}

	if err := hub.Publish(context.Background(), models.Ride{ID: "ride-1", Status: models.StatusSearching}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.Ride
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "ride-1" || got.Status != models.StatusSearching {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
