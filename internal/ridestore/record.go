package ridestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ride-simulator/internal/lifecycle"
	"github.com/example/ride-simulator/internal/models"
)

const recordVersion = 1

// record is the persisted layout: one named document holding the active
// ride's fields and the capped, newest-first history.
type record struct {
	Version     int            `json:"version"`
	Status      models.Status  `json:"status"`
	Origin      models.Coord   `json:"origin"`
	Destination *models.Coord  `json:"destination,omitempty"`
	VehicleType string         `json:"vehicleType,omitempty"`
	Driver      *models.Driver `json:"driver,omitempty"`
	Fare        int64          `json:"fare"`
	Distance    float64        `json:"distance"`
	Duration    float64        `json:"duration"`

	ID              string         `json:"id,omitempty"`
	RiderID         string         `json:"riderId,omitempty"`
	EstimatedFare   int64          `json:"estimatedFare"`
	Currency        string         `json:"currency,omitempty"`
	EtaMin          float64        `json:"etaMin"`
	CurrentLocation models.Coord   `json:"currentLocation"`
	DriverLocation  *models.Coord  `json:"driverLocation,omitempty"`
	StartTime       *time.Time     `json:"startTime,omitempty"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Route           []models.Coord `json:"route,omitempty"`
	RouteIndex      int            `json:"routeIndex"`
	RouteCarryM     float64        `json:"routeCarryM,omitempty"`
	Advisory        string         `json:"advisory,omitempty"`

	History []models.HistoryEntry `json:"history"`
}

func encode(r models.Ride, history []models.HistoryEntry) ([]byte, error) {
	rec := record{
		Version:         recordVersion,
		Status:          r.Status,
		Origin:          r.Origin,
		Destination:     r.Destination,
		VehicleType:     r.VehicleType,
		Driver:          r.Driver,
		Fare:            r.CurrentFare,
		Distance:        r.DistanceKm,
		Duration:        r.DurationMin,
		ID:              r.ID,
		RiderID:         r.RiderID,
		EstimatedFare:   r.EstimatedFare,
		Currency:        r.Currency,
		EtaMin:          r.EtaMin,
		CurrentLocation: r.CurrentLocation,
		DriverLocation:  r.DriverLocation,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		UpdatedAt:       r.UpdatedAt,
		Route:           r.Route,
		RouteIndex:      r.RouteIndex,
		RouteCarryM:     r.RouteCarryM,
		Advisory:        r.Advisory,
		History:         history,
	}
	if rec.History == nil {
		rec.History = []models.HistoryEntry{}
	}
	return json.Marshal(rec)
}

func decode(data []byte, maxHistory int) (models.Ride, []models.HistoryEntry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Ride{}, nil, fmt.Errorf("decode state: %w", err)
	}
	if rec.Version != recordVersion {
		return models.Ride{}, nil, fmt.Errorf("unsupported state version %d", rec.Version)
	}
	if rec.Status != models.StatusCancelled && lifecycle.Rank(rec.Status) < 0 {
		return models.Ride{}, nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	if len(rec.Route) > 0 && (rec.RouteIndex < 0 || rec.RouteIndex > len(rec.Route)-1) {
		return models.Ride{}, nil, fmt.Errorf("route index %d outside route of %d points", rec.RouteIndex, len(rec.Route))
	}
	r := models.Ride{
		ID:              rec.ID,
		RiderID:         rec.RiderID,
		Status:          rec.Status,
		VehicleType:     rec.VehicleType,
		Origin:          rec.Origin,
		Destination:     rec.Destination,
		Driver:          rec.Driver,
		CurrentLocation: rec.CurrentLocation,
		DriverLocation:  rec.DriverLocation,
		DistanceKm:      rec.Distance,
		DurationMin:     rec.Duration,
		CurrentFare:     rec.Fare,
		EstimatedFare:   rec.EstimatedFare,
		Currency:        rec.Currency,
		EtaMin:          rec.EtaMin,
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		UpdatedAt:       rec.UpdatedAt,
		Route:           rec.Route,
		RouteIndex:      rec.RouteIndex,
		RouteCarryM:     rec.RouteCarryM,
		Advisory:        rec.Advisory,
	}
	history := rec.History
	if len(history) > maxHistory {
		history = history[:maxHistory]
	}
	return r, history, nil
}
