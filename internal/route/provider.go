package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
)

// ErrRouteUnavailable means the provider produced no usable path.
var ErrRouteUnavailable = errors.New("route unavailable")

// Provider returns an ordered coordinate path approximating a drivable route.
// An empty result with a nil error is allowed and means "no path".
type Provider interface {
	FetchRoute(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error)

func (f ProviderFunc) FetchRoute(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error) {
	return f(ctx, origin, destination)
}

// StraightLine fabricates a path of evenly spaced points on the segment
// origin→destination. It never fails.
type StraightLine struct {
	Steps int
}

func (s StraightLine) FetchRoute(_ context.Context, origin, destination models.Coord) ([]models.Coord, error) {
	return straight(origin, destination, s.Steps), nil
}

func straight(origin, destination models.Coord, steps int) []models.Coord {
	if steps < 1 {
		steps = 1
	}
	if origin == destination {
		return []models.Coord{origin}
	}
	out := make([]models.Coord, 0, steps+1)
	for i := 0; i <= steps; i++ {
		out = append(out, geo.Interpolate(origin, destination, float64(i)/float64(steps)))
	}
	return out
}

// Resolve fetches a route and guarantees a non-empty result. When p fails or
// returns nothing, a straight-line path is returned together with an error
// wrapping ErrRouteUnavailable so the caller can raise an advisory.
func Resolve(ctx context.Context, p Provider, origin, destination models.Coord, fallbackSteps int) ([]models.Coord, error) {
	if p == nil {
		return straight(origin, destination, fallbackSteps), fmt.Errorf("%w: no provider configured", ErrRouteUnavailable)
	}
	path, err := p.FetchRoute(ctx, origin, destination)
	if err != nil {
		return straight(origin, destination, fallbackSteps), fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	path = sanitize(path)
	if len(path) == 0 {
		return straight(origin, destination, fallbackSteps), fmt.Errorf("%w: empty path", ErrRouteUnavailable)
	}
	return anchor(path, origin, destination), nil
}

func sanitize(path []models.Coord) []models.Coord {
	out := make([]models.Coord, 0, len(path))
	for _, c := range path {
		if !geo.ValidCoord(c) {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

// anchor pins both ends of path to the requested endpoints, since road
// snapping usually moves them a few meters.
func anchor(path []models.Coord, origin, destination models.Coord) []models.Coord {
	out := make([]models.Coord, 0, len(path)+2)
	if path[0] != origin {
		out = append(out, origin)
	}
	out = append(out, path...)
	if out[len(out)-1] != destination {
		out = append(out, destination)
	}
	return out
}
