// Package ridestore is the single source of truth for the active ride and
// the ride history. Every mutation is applied to a private copy and
// committed atomically, then persisted and published to subscribers.
package ridestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-simulator/internal/clock"
	"github.com/example/ride-simulator/internal/lifecycle"
	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
	"github.com/example/ride-simulator/internal/storage"
)

// ErrPersistenceUnavailable marks a durability failure; the store keeps
// working in memory when it happens.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

const (
	DefaultMaxHistory = 20
	subscriberBuffer  = 16
)

type Config struct {
	MaxHistory     int
	Blob           storage.Blob
	Clock          clock.Clock
	Logger         *slog.Logger
	PersistTimeout time.Duration
}

type Store struct {
	mu         sync.RWMutex
	active     models.Ride
	history    []models.HistoryEntry
	maxHistory int

	blob           storage.Blob
	clock          clock.Clock
	logger         *slog.Logger
	persistTimeout time.Duration

	subMu   sync.Mutex
	subs    map[int]chan models.Ride
	nextSub int
}

func New(cfg Config) *Store {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 2 * time.Second
	}
	return &Store{
		active:         lifecycle.Idle(cfg.Clock.Now()),
		maxHistory:     cfg.MaxHistory,
		blob:           cfg.Blob,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		persistTimeout: cfg.PersistTimeout,
		subs:           make(map[int]chan models.Ride),
	}
}

// Load restores state from the blob. A missing record is not an error. A
// corrupt or unreadable one leaves the default IDLE ride with empty
// history in place and returns an error wrapping ErrPersistenceUnavailable
// for the caller to log.
func (s *Store) Load(ctx context.Context) error {
	if s.blob == nil {
		return nil
	}
	data, err := s.blob.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		observability.PersistErrors.WithLabelValues("load").Inc()
		s.resetLocked()
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	ride, history, err := decode(data, s.maxHistory)
	if err != nil {
		observability.PersistErrors.WithLabelValues("decode").Inc()
		s.resetLocked()
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	s.active = ride
	s.history = history
	return nil
}

func (s *Store) resetLocked() {
	s.active = lifecycle.Idle(s.clock.Now())
	s.history = nil
}

// GetActiveRide returns a snapshot of the active ride.
func (s *Store) GetActiveRide() models.Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Clone()
}

// GetHistory returns history entries, newest first.
func (s *Store) GetHistory() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// MaxHistory is the configured history cap.
func (s *Store) MaxHistory() int { return s.maxHistory }

// Now is the store's clock reading, used to timestamp transitions.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Update applies fn to a copy of the active ride and commits it only when
// fn returns nil. A ride that becomes terminal is archived into history in
// the same commit.
func (s *Store) Update(fn func(r *models.Ride) error) (models.Ride, error) {
	s.mu.Lock()
	prev := s.active.Status
	next := s.active.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return s.GetActiveRide(), err
	}
	s.active = next
	if next.ID != "" && next.Status.Terminal() && !prev.Terminal() {
		s.appendHistoryLocked(models.NewHistoryEntry(next))
	}
	if next.Status != prev {
		observability.RideTransitions.WithLabelValues(string(next.Status)).Inc()
	}
	observability.ActiveRideFare.Set(float64(next.CurrentFare))
	snap := s.active.Clone()
	s.persistLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap, nil
}

// UpdateIf is Update guarded by the ride identity: fn only runs when the
// active ride still has the given ID.
func (s *Store) UpdateIf(rideID string, fn func(r *models.Ride) error) (models.Ride, error) {
	return s.Update(func(r *models.Ride) error {
		if r.ID != rideID {
			return ErrStale
		}
		return fn(r)
	})
}

// ErrStale is returned by UpdateIf when the ride was superseded.
var ErrStale = errors.New("ride superseded")

// SetStatus applies a forward transition through the state machine.
func (s *Store) SetStatus(status models.Status) (models.Ride, error) {
	now := s.clock.Now()
	return s.Update(func(r *models.Ride) error {
		return lifecycle.Transition(r, status, now)
	})
}

// MergeRideInfo copies every non-nil field of patch onto the active ride.
func (s *Store) MergeRideInfo(patch models.RidePatch) (models.Ride, error) {
	now := s.clock.Now()
	return s.Update(func(r *models.Ride) error {
		Apply(r, patch, now)
		return nil
	})
}

// Apply merges patch into r. The route cursor never moves backwards on the
// same route and never leaves its bounds.
func Apply(r *models.Ride, patch models.RidePatch, now time.Time) {
	if patch.Route != nil {
		r.Route = append([]models.Coord(nil), patch.Route...)
		r.RouteIndex = 0
		r.RouteCarryM = 0
	}
	if patch.RouteIndex != nil {
		idx := *patch.RouteIndex
		if last := len(r.Route) - 1; idx > last {
			idx = last
		}
		if idx > r.RouteIndex {
			r.RouteIndex = idx
		}
	}
	if patch.RouteCarryM != nil {
		r.RouteCarryM = *patch.RouteCarryM
	}
	if patch.CurrentLocation != nil {
		r.CurrentLocation = *patch.CurrentLocation
	}
	if patch.DriverLocation != nil {
		l := *patch.DriverLocation
		r.DriverLocation = &l
	}
	if patch.DistanceKm != nil {
		r.DistanceKm = *patch.DistanceKm
	}
	if patch.DurationMin != nil {
		r.DurationMin = *patch.DurationMin
	}
	if patch.CurrentFare != nil && !r.Status.Terminal() && *patch.CurrentFare > r.CurrentFare {
		r.CurrentFare = *patch.CurrentFare
	}
	if patch.EstimatedFare != nil {
		r.EstimatedFare = *patch.EstimatedFare
	}
	if patch.EtaMin != nil {
		r.EtaMin = *patch.EtaMin
	}
	if patch.Advisory != nil {
		r.Advisory = *patch.Advisory
	}
	r.UpdatedAt = now
}

// ResetRide clears a finished ride back to IDLE.
func (s *Store) ResetRide() (models.Ride, error) {
	now := s.clock.Now()
	return s.Update(func(r *models.Ride) error {
		return lifecycle.Reset(r, now)
	})
}

// AppendHistory inserts entry at the front, evicting the oldest entries
// beyond the cap.
func (s *Store) AppendHistory(entry models.HistoryEntry) {
	s.mu.Lock()
	s.appendHistoryLocked(entry)
	snap := s.active.Clone()
	s.persistLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) appendHistoryLocked(entry models.HistoryEntry) {
	h := make([]models.HistoryEntry, 0, min(len(s.history)+1, s.maxHistory))
	h = append(h, entry)
	for _, e := range s.history {
		if len(h) == s.maxHistory {
			break
		}
		h = append(h, e)
	}
	s.history = h
}

// ClearHistory drops every history entry.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	snap := s.active.Clone()
	s.persistLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) persistLocked() {
	if s.blob == nil {
		return
	}
	data, err := encode(s.active, s.history)
	if err != nil {
		observability.PersistErrors.WithLabelValues("encode").Inc()
		s.logger.Error("persist_failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.blob.Save(ctx, data); err != nil {
		observability.PersistErrors.WithLabelValues("save").Inc()
		s.logger.Warn("persist_failed", "err", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err), "ride_id", s.active.ID)
	}
}

// Subscribe returns a channel receiving a snapshot after every committed
// mutation, and a function to unsubscribe. Slow readers lose the oldest
// snapshots, never the newest.
func (s *Store) Subscribe() (<-chan models.Ride, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan models.Ride, subscriberBuffer)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) publish(r models.Ride) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- r.Clone():
			continue
		default:
		}
		// full: drop the oldest, then deliver
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r.Clone():
		default:
		}
	}
}
