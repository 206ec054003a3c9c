// Package orchestrator drives one simulated ride at a time: it schedules the
// matching delays, runs the position tick loop and funnels every effect
// through the ride store's guarded transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-simulator/internal/clock"
	"github.com/example/ride-simulator/internal/eta"
	"github.com/example/ride-simulator/internal/fare"
	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/lifecycle"
	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
	"github.com/example/ride-simulator/internal/ridestore"
	"github.com/example/ride-simulator/internal/route"
	"github.com/example/ride-simulator/internal/simulator"
)

var (
	ErrInvalidRequest = errors.New("invalid ride request")
	ErrClosed         = errors.New("orchestrator closed")
)

// Matcher finds a driver for a pickup and hands it back when the ride ends.
type Matcher interface {
	Match(ctx context.Context, origin models.Coord) (models.Driver, float64, bool)
	Release(d models.Driver, at *models.Coord)
}

type Config struct {
	TickInterval time.Duration
	SearchDelay  time.Duration
	AcceptDelay  time.Duration
	ArrivalDelay time.Duration
	RouteTimeout time.Duration
	RouteSteps   int
	VehicleType  string
	Simulator    simulator.Simulator
	Fare         fare.Policy
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		SearchDelay:  3 * time.Second,
		AcceptDelay:  2 * time.Second,
		ArrivalDelay: time.Second,
		RouteTimeout: 5 * time.Second,
		RouteSteps:   20,
		VehicleType:  "standard",
		Simulator:    simulator.Simulator{SpeedKmh: simulator.DefaultSpeedKmh},
		Fare:         fare.DefaultPolicy(),
	}
}

type Orchestrator struct {
	store   *ridestore.Store
	routes  route.Provider
	matcher Matcher
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	newID   func() string

	mu       sync.Mutex
	gen      uint64
	timer    clock.Timer
	rideCtx  context.Context
	cancel   context.CancelFunc
	lastTick time.Time
	closed   bool
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option            { return func(o *Orchestrator) { o.clock = c } }
func WithLogger(l *slog.Logger) Option          { return func(o *Orchestrator) { o.logger = l } }
func WithIDGenerator(f func() string) Option    { return func(o *Orchestrator) { o.newID = f } }
func WithRouteProvider(p route.Provider) Option { return func(o *Orchestrator) { o.routes = p } }

func New(store *ridestore.Store, m Matcher, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = def.RouteTimeout
	}
	if cfg.RouteSteps <= 0 {
		cfg.RouteSteps = def.RouteSteps
	}
	if cfg.VehicleType == "" {
		cfg.VehicleType = def.VehicleType
	}
	o := &Orchestrator{
		store:   store,
		matcher: m,
		routes:  route.StraightLine{Steps: cfg.RouteSteps},
		clock:   clock.Real{},
		cfg:     cfg,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store exposes the ride store for read access.
func (o *Orchestrator) Store() *ridestore.Store { return o.store }

// RequestRide starts a new ride. It fails with ErrInvalidTransition while
// another ride is still in progress.
func (o *Orchestrator) RequestRide(ctx context.Context, origin models.Coord, destination *models.Coord, vehicleType string) (models.Ride, error) {
	return o.Submit(ctx, models.RideRequest{Origin: origin, Destination: destination, VehicleType: vehicleType})
}

// Submit is RequestRide for a decoded API request.
func (o *Orchestrator) Submit(ctx context.Context, rr models.RideRequest) (models.Ride, error) {
	origin, destination, vehicleType := rr.Origin, rr.Destination, rr.VehicleType
	if !geo.ValidCoord(origin) {
		return models.Ride{}, fmt.Errorf("%w: origin %v", ErrInvalidRequest, origin)
	}
	if destination != nil && !geo.ValidCoord(*destination) {
		return models.Ride{}, fmt.Errorf("%w: destination %v", ErrInvalidRequest, *destination)
	}
	if vehicleType == "" {
		vehicleType = o.cfg.VehicleType
	}
	if err := ctx.Err(); err != nil {
		return models.Ride{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return models.Ride{}, ErrClosed
	}
	req := lifecycle.Request{
		ID:            o.newID(),
		RiderID:       rr.RiderID,
		Origin:        origin,
		Destination:   destination,
		VehicleType:   vehicleType,
		EstimatedFare: o.cfg.Fare.Estimate(origin, destination),
		Currency:      o.cfg.Fare.Currency,
	}
	now := o.clock.Now()
	ride, err := o.store.Update(func(r *models.Ride) error {
		return lifecycle.RequestRide(r, req, now)
	})
	if err != nil {
		observability.InvalidActions.WithLabelValues("request").Inc()
		return ride, err
	}
	observability.RidesRequested.Inc()
	gen := o.restartLocked()
	o.scheduleLocked(o.cfg.SearchDelay, func() { o.onSearchDone(gen) })
	o.logger.Info("ride_requested", "ride_id", ride.ID, "estimated_fare", ride.EstimatedFare)
	return ride, nil
}

// CancelRide cancels the active ride from any status but COMPLETED. The
// accrued fare is kept and pending timers are invalidated before the
// cancellation commits.
func (o *Orchestrator) CancelRide() (models.Ride, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.store.GetActiveRide()
	o.stopLocked()
	ride, err := o.store.SetStatus(models.StatusCancelled)
	if err != nil {
		observability.InvalidActions.WithLabelValues("cancel").Inc()
		return ride, err
	}
	if !prev.Status.Terminal() {
		o.releaseDriver(prev)
		o.logger.Info("ride_cancelled", "ride_id", ride.ID, "from", prev.Status, "fare", ride.CurrentFare)
	}
	return ride, nil
}

// StopRideEarly ends an IN_RIDE trip where the vehicle is: the fare is
// frozen and the ride goes through PAYING to COMPLETED.
func (o *Orchestrator) StopRideEarly() (models.Ride, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.store.GetActiveRide()
	if prev.Status != models.StatusInRide {
		observability.InvalidActions.WithLabelValues("stop").Inc()
		return prev, fmt.Errorf("%w: stop early from %s", lifecycle.ErrInvalidTransition, prev.Status)
	}
	o.stopLocked()
	ride, err := o.finishLocked(prev.ID)
	if err != nil {
		return ride, err
	}
	o.logger.Info("ride_stopped_early", "ride_id", ride.ID, "fare", ride.CurrentFare)
	return ride, nil
}

// ResetRide clears a finished ride back to IDLE. A live ride is left
// running and the call fails with ErrInvalidTransition.
func (o *Orchestrator) ResetRide() (models.Ride, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.store.GetActiveRide()
	if prev.Status != models.StatusIdle && !prev.Status.Terminal() {
		observability.InvalidActions.WithLabelValues("reset").Inc()
		return prev, fmt.Errorf("%w: reset from %s", lifecycle.ErrInvalidTransition, prev.Status)
	}
	ride, err := o.store.ResetRide()
	if err != nil {
		observability.InvalidActions.WithLabelValues("reset").Inc()
		return ride, err
	}
	o.stopLocked()
	return ride, nil
}

// Resume picks up a ride restored from persistence where it left off.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	ride := o.store.GetActiveRide()
	if ride.Status == models.StatusIdle || ride.Status.Terminal() {
		return
	}
	gen := o.restartLocked()
	o.logger.Info("ride_resumed", "ride_id", ride.ID, "status", ride.Status)
	switch ride.Status {
	case models.StatusSearching:
		o.scheduleLocked(o.cfg.SearchDelay, func() { o.onSearchDone(gen) })
	case models.StatusMatched:
		o.scheduleLocked(o.cfg.AcceptDelay, func() { o.onAccepted(gen) })
	case models.StatusMatchAccepted:
		o.scheduleLocked(o.cfg.ArrivalDelay, func() { o.onArrivalStart(gen) })
	case models.StatusDriverArriving, models.StatusInRide:
		o.scheduleLocked(0, func() { o.onResumeMoving(gen) })
	case models.StatusPaying:
		if _, err := o.finishLocked(ride.ID); err != nil {
			o.logger.Error("resume_failed", "ride_id", ride.ID, "err", err)
		}
	}
}

// Close stops every pending timer and rejects further ride requests.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.stopLocked()
}

// restartLocked invalidates everything scheduled for the previous ride and
// opens a new generation.
func (o *Orchestrator) restartLocked() uint64 {
	o.stopLocked()
	o.rideCtx, o.cancel = context.WithCancel(context.Background())
	o.lastTick = o.clock.Now()
	return o.gen
}

func (o *Orchestrator) stopLocked() {
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) scheduleLocked(d time.Duration, f func()) {
	o.timer = o.clock.AfterFunc(d, f)
}

// current reports whether gen is still the live generation; the caller
// holds o.mu.
func (o *Orchestrator) current(gen uint64) bool {
	if o.gen != gen || o.closed {
		observability.StaleCallbacks.Inc()
		return false
	}
	return true
}

// fetchContext returns the ride context for gen, or nil when stale.
func (o *Orchestrator) fetchContext(gen uint64) (context.Context, models.Ride) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return nil, models.Ride{}
	}
	return o.rideCtx, o.store.GetActiveRide()
}

// guard recovers a panicking callback and retries the same stage one tick
// interval later, so a failure never strands the ride in its status.
func (o *Orchestrator) guard(gen uint64, stage string, retry func(uint64)) {
	if r := recover(); r != nil {
		observability.SimTickFailures.Inc()
		o.logger.Error("tick_failed", "stage", stage, "panic", fmt.Sprint(r))
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.current(gen) {
			o.scheduleLocked(o.cfg.TickInterval, func() { retry(gen) })
		}
	}
}

func (o *Orchestrator) onSearchDone(gen uint64) {
	defer o.guard(gen, "search", o.onSearchDone)
	ctx, ride := o.fetchContext(gen)
	if ctx == nil {
		return
	}
	driver, etaSec, ok := o.matcher.Match(ctx, ride.Origin)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		o.matcher.Release(driver, nil)
		return
	}
	now := o.clock.Now()
	etaMin := etaSec / 60
	matched, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
		if err := lifecycle.MatchDriver(r, driver, now); err != nil {
			return err
		}
		r.EtaMin = etaMin
		return nil
	})
	if err != nil {
		o.matcher.Release(driver, nil)
		o.logger.Warn("match_rejected", "ride_id", ride.ID, "err", err)
		return
	}
	o.logger.Info("driver_matched", "ride_id", matched.ID, "driver_id", driver.ID, "eta_min", etaMin)
	o.scheduleLocked(o.cfg.AcceptDelay, func() { o.onAccepted(gen) })
}

func (o *Orchestrator) onAccepted(gen uint64) {
	defer o.guard(gen, "accept", o.onAccepted)
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	if _, err := o.store.SetStatus(models.StatusMatchAccepted); err != nil {
		o.logger.Warn("accept_failed", "err", err)
		return
	}
	o.scheduleLocked(o.cfg.ArrivalDelay, func() { o.onArrivalStart(gen) })
}

// onArrivalStart fetches the pickup route, then puts the driver on it.
func (o *Orchestrator) onArrivalStart(gen uint64) {
	defer o.guard(gen, "arrival", o.onArrivalStart)
	ctx, ride := o.fetchContext(gen)
	if ctx == nil {
		return
	}
	from := ride.Origin
	if ride.DriverLocation != nil {
		from = *ride.DriverLocation
	}
	path, advisory := o.fetchRoute(ctx, from, ride.Origin)

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	now := o.clock.Now()
	_, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
		if err := lifecycle.BeginArrival(r, now); err != nil {
			return err
		}
		o.applyLeg(r, path, advisory)
		start := path[0]
		r.DriverLocation = &start
		return nil
	})
	if err != nil {
		o.logger.Warn("arrival_failed", "ride_id", ride.ID, "err", err)
		return
	}
	o.lastTick = now
	o.scheduleLocked(o.cfg.TickInterval, func() { o.onTick(gen) })
}

// onResumeMoving restores a ride that was moving when the process stopped.
func (o *Orchestrator) onResumeMoving(gen uint64) {
	defer o.guard(gen, "resume", o.onResumeMoving)
	ctx, ride := o.fetchContext(gen)
	if ctx == nil {
		return
	}
	if len(ride.Route) == 0 {
		from, to, ok := legEndpoints(ride)
		if ok {
			path, advisory := o.fetchRoute(ctx, from, to)
			o.installLeg(gen, ride.ID, path, advisory)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	o.lastTick = o.clock.Now()
	o.scheduleLocked(o.cfg.TickInterval, func() { o.onTick(gen) })
}

func (o *Orchestrator) installLeg(gen uint64, rideID string, path []models.Coord, advisory string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current(gen) {
		_, _ = o.store.UpdateIf(rideID, func(r *models.Ride) error {
			o.applyLeg(r, path, advisory)
			return nil
		})
	}
}

func legEndpoints(r models.Ride) (from, to models.Coord, ok bool) {
	switch r.Status {
	case models.StatusDriverArriving:
		if r.DriverLocation != nil {
			return *r.DriverLocation, r.Origin, true
		}
		return r.Origin, r.Origin, true
	case models.StatusInRide:
		if r.Destination != nil {
			return r.CurrentLocation, *r.Destination, true
		}
	}
	return models.Coord{}, models.Coord{}, false
}

func (o *Orchestrator) fetchRoute(ctx context.Context, from, to models.Coord) ([]models.Coord, string) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RouteTimeout)
	defer cancel()
	path, err := route.Resolve(ctx, o.routes, from, to, o.cfg.RouteSteps)
	if err != nil {
		observability.RouteUnavailable.Inc()
		o.logger.Warn("route_unavailable", "err", err)
		return path, models.AdvisoryRouteUnavailable
	}
	return path, ""
}

// applyLeg installs a freshly fetched route with the cursor at its start.
func (o *Orchestrator) applyLeg(r *models.Ride, path []models.Coord, advisory string) {
	ridestore.Apply(r, models.RidePatch{Route: path, Advisory: &advisory}, r.UpdatedAt)
	r.EtaMin = o.etaMin(path, 0, 0)
}

func (o *Orchestrator) etaMin(path []models.Coord, index int, carryM float64) float64 {
	left := eta.RemainingOnRoute(path, index, carryM)
	return eta.RemainingSeconds(left, o.cfg.Simulator.SpeedMps()) / 60
}

func (o *Orchestrator) onTick(gen uint64) {
	defer o.guard(gen, "tick", o.onTick)
	next, fetch := o.applyTick(gen)
	if fetch != nil {
		o.onTripRoute(gen, fetch)
		return
	}
	if !next {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current(gen) {
		o.scheduleLocked(o.cfg.TickInterval, func() { o.onTick(gen) })
	}
}

// tripLeg asks for the origin -> destination route after pickup.
type tripLeg struct {
	ctx    context.Context
	rideID string
	from   models.Coord
	to     *models.Coord
}

// applyTick advances the vehicle once. It reports whether another tick
// should follow, or the trip leg to fetch before ticking resumes.
func (o *Orchestrator) applyTick(gen uint64) (bool, *tripLeg) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return false, nil
	}
	now := o.clock.Now()
	elapsed := now.Sub(o.lastTick)
	o.lastTick = now
	ride := o.store.GetActiveRide()

	switch ride.Status {
	case models.StatusDriverArriving:
		step := o.cfg.Simulator.Advance(ride.Route, ride.RouteIndex, ride.RouteCarryM, elapsed)
		observability.SimTicks.Inc()
		if !step.Arrived {
			etaMin := o.etaMin(ride.Route, step.Index, step.CarryM)
			_, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
				ridestore.Apply(r, models.RidePatch{
					DriverLocation: &step.Position,
					RouteIndex:     &step.Index,
					RouteCarryM:    &step.CarryM,
					EtaMin:         &etaMin,
				}, now)
				return nil
			})
			return err == nil, nil
		}
		_, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
			if err := lifecycle.BeginRide(r, now); err != nil {
				return err
			}
			r.Route = nil
			r.RouteIndex = 0
			r.RouteCarryM = 0
			r.CurrentFare = o.cfg.Fare.Next(r.CurrentFare, 0, 0)
			return nil
		})
		if err != nil {
			o.logger.Warn("pickup_failed", "ride_id", ride.ID, "err", err)
			return false, nil
		}
		o.logger.Info("ride_started", "ride_id", ride.ID)
		return false, &tripLeg{ctx: o.rideCtx, rideID: ride.ID, from: ride.Origin, to: ride.Destination}

	case models.StatusInRide:
		observability.SimTicks.Inc()
		durationMin := 0.0
		if ride.StartTime != nil {
			durationMin = now.Sub(*ride.StartTime).Minutes()
		}
		if ride.Destination != nil && len(ride.Route) == 0 {
			// the trip leg was never installed; fetch it before moving
			return false, &tripLeg{ctx: o.rideCtx, rideID: ride.ID, from: ride.CurrentLocation, to: ride.Destination}
		}
		if ride.Destination == nil {
			// open-ended ride: only time accrues until stopped
			fare := o.cfg.Fare.Next(ride.CurrentFare, ride.DistanceKm, durationMin)
			_, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
				ridestore.Apply(r, models.RidePatch{DurationMin: &durationMin, CurrentFare: &fare}, now)
				return nil
			})
			return err == nil, nil
		}
		step := o.cfg.Simulator.Advance(ride.Route, ride.RouteIndex, ride.RouteCarryM, elapsed)
		distanceKm := ride.DistanceKm + step.MovedM/1000
		fare := o.cfg.Fare.Next(ride.CurrentFare, distanceKm, durationMin)
		etaMin := o.etaMin(ride.Route, step.Index, step.CarryM)
		_, err := o.store.UpdateIf(ride.ID, func(r *models.Ride) error {
			ridestore.Apply(r, models.RidePatch{
				CurrentLocation: &step.Position,
				RouteIndex:      &step.Index,
				RouteCarryM:     &step.CarryM,
				DistanceKm:      &distanceKm,
				DurationMin:     &durationMin,
				CurrentFare:     &fare,
				EtaMin:          &etaMin,
			}, now)
			return nil
		})
		if err != nil {
			return false, nil
		}
		if !step.Arrived {
			return true, nil
		}
		if _, err := o.finishLocked(ride.ID); err != nil {
			o.logger.Warn("finish_failed", "ride_id", ride.ID, "err", err)
		}
		return false, nil
	}
	return false, nil
}

// onTripRoute installs the trip route once the rider is on board.
func (o *Orchestrator) onTripRoute(gen uint64, leg *tripLeg) {
	var path []models.Coord
	advisory := ""
	if leg.to != nil {
		path, advisory = o.fetchRoute(leg.ctx, leg.from, *leg.to)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	if path != nil {
		now := o.clock.Now()
		_, err := o.store.UpdateIf(leg.rideID, func(r *models.Ride) error {
			if r.Status != models.StatusInRide {
				return fmt.Errorf("%w: trip route in %s", lifecycle.ErrInvalidTransition, r.Status)
			}
			o.applyLeg(r, path, advisory)
			r.CurrentLocation = path[0]
			r.UpdatedAt = now
			return nil
		})
		if err != nil {
			return
		}
	}
	o.lastTick = o.clock.Now()
	o.scheduleLocked(o.cfg.TickInterval, func() { o.onTick(gen) })
}

// finishLocked moves an IN_RIDE or PAYING ride through PAYING to COMPLETED
// without touching the fare, then returns the driver to the fleet.
func (o *Orchestrator) finishLocked(rideID string) (models.Ride, error) {
	ride := o.store.GetActiveRide()
	if ride.Status == models.StatusInRide {
		var err error
		ride, err = o.store.UpdateIf(rideID, func(r *models.Ride) error {
			return lifecycle.BeginPayment(r, o.clock.Now())
		})
		if err != nil {
			return ride, err
		}
	}
	done, err := o.store.UpdateIf(rideID, func(r *models.Ride) error {
		return lifecycle.Complete(r, o.clock.Now())
	})
	if err != nil {
		return done, err
	}
	o.releaseDriver(done)
	o.logger.Info("ride_completed", "ride_id", done.ID, "fare", done.CurrentFare, "distance_km", done.DistanceKm)
	return done, nil
}

func (o *Orchestrator) releaseDriver(r models.Ride) {
	if r.Driver == nil || o.matcher == nil {
		return
	}
	at := r.DriverLocation
	if r.Status == models.StatusInRide || r.Status == models.StatusPaying || r.Status == models.StatusCompleted {
		loc := r.CurrentLocation
		at = &loc
	}
	o.matcher.Release(*r.Driver, at)
}
