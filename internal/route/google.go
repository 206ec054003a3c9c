package route

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/ride-simulator/internal/models"
)

// GoogleProvider fetches driving routes from the Google Directions API.
type GoogleProvider struct {
	client   *maps.Client
	Language string
	Region   string
}

// NewGoogleProvider creates a GoogleProvider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// FetchRoute returns the decoded overview polyline of the first route.
func (g *GoogleProvider) FetchRoute(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
		Language:    g.Language,
		Region:      g.Region,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return nil, errors.New("no route found")
	}
	points, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	return fromLatLngs(points), nil
}

func latLng(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func fromLatLngs(points []maps.LatLng) []models.Coord {
	out := make([]models.Coord, 0, len(points))
	for _, p := range points {
		out = append(out, models.Coord{Lat: p.Lat, Lon: p.Lng})
	}
	return out
}
