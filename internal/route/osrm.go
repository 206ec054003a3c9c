package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-simulator/internal/models"
)

// OSRMProvider performs route/eta lookups against an OSRM HTTP server.
type OSRMProvider struct {
	Endpoint string
	Profile  string
	Client   *http.Client
}

func NewOSRMProvider(endpoint string) *OSRMProvider {
	return &OSRMProvider{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Profile:  "driving",
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// FetchRoute queries /route with full GeoJSON geometry.
func (o *OSRMProvider) FetchRoute(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	out, err := o.query(ctx, from, to, "overview=full&geometries=geojson")
	if err != nil {
		return nil, err
	}
	coords := out.Routes[0].Geometry.Coordinates
	path := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		// GeoJSON order is lon,lat
		path = append(path, models.Coord{Lat: c[1], Lon: c[0]})
	}
	return path, nil
}

// EstimateSeconds queries OSRM /route between points and returns duration in seconds.
func (o *OSRMProvider) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	out, err := o.query(ctx, from, to, "overview=false")
	if err != nil {
		return 0, err
	}
	return out.Routes[0].Duration, nil
}

func (o *OSRMProvider) query(ctx context.Context, from, to models.Coord, params string) (*osrmResponse, error) {
	profile := o.Profile
	if profile == "" {
		profile = "driving"
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	// OSRM route query: /route/v1/{profile}/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?%s", o.Endpoint, profile, from.Lon, from.Lat, to.Lon, to.Lat, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: do request: %w", err)
	}
	defer resp.Body.Close()
	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("osrm: decode (http %d): %w", resp.StatusCode, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v %s", out.Code, out.Message)
	}
	return &out, nil
}
