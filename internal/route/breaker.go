package route

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
)

// BreakerSettings tunes the circuit breaker around a remote route provider.
type BreakerSettings struct {
	Name                string
	MaxConsecutiveFails uint32
	OpenTimeout         time.Duration
	Logger              *slog.Logger
}

// Breaker stops calling a failing provider for OpenTimeout after
// MaxConsecutiveFails errors in a row. While open, FetchRoute returns
// gobreaker.ErrOpenState and Resolve falls back to a straight line.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Provider, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "route"
	}
	if s.MaxConsecutiveFails == 0 {
		s.MaxConsecutiveFails = 3
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observability.RouteBreakerState.WithLabelValues(s.Name).Set(float64(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not the provider's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RouteBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("route_breaker_state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) FetchRoute(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FetchRoute(ctx, origin, destination)
	})
	if err != nil {
		return nil, err
	}
	path, _ := out.([]models.Coord)
	return path, nil
}

// State reports the breaker state, mainly for tests and health output.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
