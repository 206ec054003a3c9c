package models

import "time"

// Coord is a WGS84 position in decimal degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Status is the canonical ride lifecycle stage.
type Status string

const (
	StatusIdle           Status = "IDLE"
	StatusSearching      Status = "SEARCHING"
	StatusMatched        Status = "MATCHED"
	StatusMatchAccepted  Status = "MATCH_ACCEPTED"
	StatusDriverArriving Status = "DRIVER_ARRIVING"
	StatusInRide         Status = "IN_RIDE"
	StatusPaying         Status = "PAYING"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// Terminal reports whether no further transition other than reset is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type RideRequest struct {
	RiderID     string `json:"rider_id"`
	Origin      Coord  `json:"origin"`
	Destination *Coord `json:"destination,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
}

type Driver struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Vehicle string    `json:"vehicle"`
	Plate   string    `json:"plate"`
	Phone   string    `json:"phone"`
	Loc     Coord     `json:"loc"`
	Rating  float64   `json:"rating"` // 0..5
	Online  bool      `json:"online"`
	Updated time.Time `json:"updated"`
}

// Advisory values surfaced to the UI without failing the ride.
const (
	AdvisoryRouteUnavailable = "route_unavailable"
)

// Ride is the aggregate root of one simulated trip.
type Ride struct {
	ID          string  `json:"id"`
	RiderID     string  `json:"rider_id"`
	Status      Status  `json:"status"`
	VehicleType string  `json:"vehicle_type,omitempty"`
	Origin      Coord   `json:"origin"`
	Destination *Coord  `json:"destination,omitempty"`
	Driver      *Driver `json:"driver,omitempty"`

	CurrentLocation Coord  `json:"current_location"`
	DriverLocation  *Coord `json:"driver_location,omitempty"`

	DistanceKm    float64 `json:"distance_km"`
	DurationMin   float64 `json:"duration_min"`
	CurrentFare   int64   `json:"current_fare"`
	EstimatedFare int64   `json:"estimated_fare"`
	Currency      string  `json:"currency,omitempty"`
	EtaMin        float64 `json:"eta_min"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	Route      []Coord `json:"route,omitempty"`
	RouteIndex int     `json:"route_index"`
	// RouteCarryM is the distance already covered past Route[RouteIndex].
	RouteCarryM float64 `json:"route_carry_m,omitempty"`

	Advisory string `json:"advisory,omitempty"`
}

// Clone returns a deep copy safe to hand to observers.
func (r Ride) Clone() Ride {
	out := r
	if r.Destination != nil {
		d := *r.Destination
		out.Destination = &d
	}
	if r.Driver != nil {
		d := *r.Driver
		out.Driver = &d
	}
	if r.DriverLocation != nil {
		l := *r.DriverLocation
		out.DriverLocation = &l
	}
	if r.StartTime != nil {
		t := *r.StartTime
		out.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	if r.Route != nil {
		out.Route = append([]Coord(nil), r.Route...)
	}
	return out
}

// RidePatch carries a partial update; nil fields are left untouched.
type RidePatch struct {
	CurrentLocation *Coord
	DriverLocation  *Coord
	DistanceKm      *float64
	DurationMin     *float64
	CurrentFare     *int64
	EstimatedFare   *int64
	EtaMin          *float64
	Route           []Coord
	RouteIndex      *int
	RouteCarryM     *float64
	Advisory        *string
}

// HistoryEntry is an immutable snapshot of a finished ride.
type HistoryEntry struct {
	RideID      string    `json:"ride_id"`
	Destination *Coord    `json:"destination,omitempty"`
	Fare        int64     `json:"fare"`
	Currency    string    `json:"currency,omitempty"`
	DistanceKm  float64   `json:"distance_km"`
	DriverName  string    `json:"driver_name,omitempty"`
	Date        time.Time `json:"date"`
	Status      Status    `json:"status"`
}

// NewHistoryEntry snapshots a terminal ride.
func NewHistoryEntry(r Ride) HistoryEntry {
	e := HistoryEntry{
		RideID:     r.ID,
		Fare:       r.CurrentFare,
		Currency:   r.Currency,
		DistanceKm: r.DistanceKm,
		Date:       r.UpdatedAt,
		Status:     r.Status,
	}
	if r.EndTime != nil {
		e.Date = *r.EndTime
	}
	if r.Destination != nil {
		d := *r.Destination
		e.Destination = &d
	}
	if r.Driver != nil {
		e.DriverName = r.Driver.Name
	}
	return e
}

// RideEvent is the message published for every committed ride snapshot.
type RideEvent struct {
	RideID      string    `json:"ride_id"`
	Status      Status    `json:"status"`
	Driver      *Driver   `json:"driver,omitempty"`
	Vehicle     *Coord    `json:"vehicle,omitempty"`
	CurrentFare int64     `json:"current_fare"`
	Currency    string    `json:"currency,omitempty"`
	EtaMin      float64   `json:"eta_min"`
	Advisory    string    `json:"advisory,omitempty"`
	At          time.Time `json:"at"`
}

// NewRideEvent builds the event for r. Vehicle is where the driver's car is
// right now: approaching the pickup, or carrying the rider.
func NewRideEvent(r Ride) RideEvent {
	e := RideEvent{
		RideID:      r.ID,
		Status:      r.Status,
		CurrentFare: r.CurrentFare,
		Currency:    r.Currency,
		EtaMin:      r.EtaMin,
		Advisory:    r.Advisory,
		At:          r.UpdatedAt,
	}
	if r.Driver != nil {
		d := *r.Driver
		e.Driver = &d
	}
	switch r.Status {
	case StatusMatched, StatusMatchAccepted, StatusDriverArriving:
		if r.DriverLocation != nil {
			l := *r.DriverLocation
			e.Vehicle = &l
		}
	case StatusInRide, StatusPaying, StatusCompleted:
		l := r.CurrentLocation
		e.Vehicle = &l
	}
	return e
}
