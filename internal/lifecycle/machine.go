// Package lifecycle holds the ride status state machine. Every function
// validates the edge before touching the ride, so a rejected call leaves
// the ride exactly as it was.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-simulator/internal/models"
)

var ErrInvalidTransition = errors.New("invalid transition")

func invalid(from, to models.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func guard(r *models.Ride, to models.Status) error {
	if !CanTransition(r.Status, to) {
		return invalid(r.Status, to)
	}
	return nil
}

// Idle returns a fresh IDLE ride.
func Idle(now time.Time) models.Ride {
	return models.Ride{Status: models.StatusIdle, UpdatedAt: now}
}

// Request describes a new ride request.
type Request struct {
	ID            string
	RiderID       string
	Origin        models.Coord
	Destination   *models.Coord
	VehicleType   string
	EstimatedFare int64
	Currency      string
}

// RequestRide starts a new ride from IDLE or a terminal status.
func RequestRide(r *models.Ride, req Request, now time.Time) error {
	if err := guard(r, models.StatusSearching); err != nil {
		return err
	}
	var dest *models.Coord
	if req.Destination != nil {
		d := *req.Destination
		dest = &d
	}
	*r = models.Ride{
		ID:              req.ID,
		RiderID:         req.RiderID,
		Status:          models.StatusSearching,
		VehicleType:     req.VehicleType,
		Origin:          req.Origin,
		Destination:     dest,
		CurrentLocation: req.Origin,
		EstimatedFare:   req.EstimatedFare,
		Currency:        req.Currency,
		UpdatedAt:       now,
	}
	return nil
}

// MatchDriver attaches driver and moves SEARCHING -> MATCHED.
func MatchDriver(r *models.Ride, driver models.Driver, now time.Time) error {
	if err := guard(r, models.StatusMatched); err != nil {
		return err
	}
	loc := driver.Loc
	r.Driver = &driver
	r.DriverLocation = &loc
	return set(r, models.StatusMatched, now)
}

func AcceptMatch(r *models.Ride, now time.Time) error {
	return step(r, models.StatusMatchAccepted, now)
}

func BeginArrival(r *models.Ride, now time.Time) error {
	return step(r, models.StatusDriverArriving, now)
}

// BeginRide marks pickup; the vehicle starts moving towards the destination.
func BeginRide(r *models.Ride, now time.Time) error {
	if err := guard(r, models.StatusInRide); err != nil {
		return err
	}
	start := now
	r.StartTime = &start
	r.CurrentLocation = r.Origin
	r.DriverLocation = nil
	return set(r, models.StatusInRide, now)
}

func BeginPayment(r *models.Ride, now time.Time) error {
	return step(r, models.StatusPaying, now)
}

func Complete(r *models.Ride, now time.Time) error {
	if err := guard(r, models.StatusCompleted); err != nil {
		return err
	}
	end := now
	r.EndTime = &end
	r.EtaMin = 0
	return set(r, models.StatusCompleted, now)
}

// Cancel is valid from every status except COMPLETED. Accrued fare is kept.
// Cancelling an already cancelled ride is a no-op.
func Cancel(r *models.Ride, now time.Time) error {
	if r.Status == models.StatusCancelled {
		return nil
	}
	if err := guard(r, models.StatusCancelled); err != nil {
		return err
	}
	end := now
	r.EndTime = &end
	r.EtaMin = 0
	return set(r, models.StatusCancelled, now)
}

// Reset replaces a finished (or idle) ride with a fresh IDLE one.
func Reset(r *models.Ride, now time.Time) error {
	if r.Status != models.StatusIdle && !r.Status.Terminal() {
		return invalid(r.Status, models.StatusIdle)
	}
	*r = Idle(now)
	return nil
}

// Transition applies the named forward edge; it is what the store's
// SetStatus uses so callers cannot bypass the per-edge side effects.
func Transition(r *models.Ride, to models.Status, now time.Time) error {
	switch to {
	case models.StatusMatchAccepted:
		return AcceptMatch(r, now)
	case models.StatusDriverArriving:
		return BeginArrival(r, now)
	case models.StatusInRide:
		return BeginRide(r, now)
	case models.StatusPaying:
		return BeginPayment(r, now)
	case models.StatusCompleted:
		return Complete(r, now)
	case models.StatusCancelled:
		return Cancel(r, now)
	case models.StatusIdle:
		return Reset(r, now)
	default:
		// SEARCHING and MATCHED need a request or driver payload.
		return invalid(r.Status, to)
	}
}

func step(r *models.Ride, to models.Status, now time.Time) error {
	if err := guard(r, to); err != nil {
		return err
	}
	return set(r, to, now)
}

func set(r *models.Ride, to models.Status, now time.Time) error {
	r.Status = to
	r.UpdatedAt = now
	return nil
}
