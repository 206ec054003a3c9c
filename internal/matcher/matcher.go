package matcher

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-simulator/internal/eta"
	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
)

// SyntheticDistanceM is how far from the pickup a made-up driver appears
// when the fleet has nobody online.
const SyntheticDistanceM = 800.0

type Service struct {
	Geo             geo.Geo
	DefaultSpeedMps float64
	TopN            int
	ETAClient       eta.Client // optional OSRM client
	ETACache        *eta.Cache // optional ETA cache
	Logger          *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

const defaultTopN = 10

// Match picks the cheapest online driver for a pickup at origin and takes
// it out of availability. It only reports false when ctx is done.
func (s *Service) Match(ctx context.Context, origin models.Coord) (models.Driver, float64, bool) {
	if err := ctx.Err(); err != nil {
		return models.Driver{}, 0, false
	}
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()
	topN := s.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	var cands []models.Driver
	if s.Geo != nil {
		cands = s.Geo.Nearby(origin.Lat, origin.Lon, topN)
	}
	if len(cands) == 0 {
		d := s.synthetic(origin)
		observability.MatchesTotal.WithLabelValues("synthetic").Inc()
		return d, eta.EstimateSeconds(d.Loc, origin, s.DefaultSpeedMps), true
	}
	type scored struct {
		d      models.Driver
		etaSec float64
		cost   float64
	}
	scoredList := make([]scored, 0, len(cands))
	for _, d := range cands {
		etaSec := s.estimate(ctx, d.Loc, origin)
		cost := etaSec + 30.0*(5.0-d.Rating) // cost = w1*eta + w2*(5 - rating)
		scoredList = append(scoredList, scored{d, etaSec, cost})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].cost < scoredList[j].cost })

	best := scoredList[0]
	s.reserve(best.d)
	observability.MatchesTotal.WithLabelValues("fleet").Inc()
	return best.d, best.etaSec, true
}

func (s *Service) estimate(ctx context.Context, from, to models.Coord) float64 {
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(from, to); ok {
			return v
		}
	}
	if s.ETAClient != nil {
		v, err := s.ETAClient.EstimateSeconds(ctx, from, to)
		if err == nil {
			if s.ETACache != nil {
				s.ETACache.Set(from, to, v)
			}
			return v
		}
		s.logger().Debug("eta_fallback", "err", err)
	}
	// fallback to naive estimator
	return eta.EstimateSeconds(from, to, s.DefaultSpeedMps)
}

func (s *Service) reserve(d models.Driver) {
	if s.Geo == nil {
		return
	}
	d.Online = false
	s.Geo.Upsert(d)
	observability.DriversOnline.Dec()
}

// Release puts a driver back into the fleet at its last known position.
// Synthetic drivers are not part of the fleet and are ignored.
func (s *Service) Release(d models.Driver, at *models.Coord) {
	if s.Geo == nil || d.ID == "" || isSynthetic(d) {
		return
	}
	if at != nil {
		d.Loc = *at
	}
	d.Online = true
	s.Geo.Upsert(d)
	observability.DriversOnline.Inc()
}

const syntheticPrefix = "sim-"

func isSynthetic(d models.Driver) bool {
	return len(d.ID) > len(syntheticPrefix) && d.ID[:len(syntheticPrefix)] == syntheticPrefix
}

func (s *Service) synthetic(origin models.Coord) models.Driver {
	s.mu.Lock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	bearing := s.rng.Float64() * 360
	tmp := geo.NewIndex()
	d := geo.SeedFleet(tmp, origin, 0, 1, s.rng)[0]
	s.mu.Unlock()

	d.ID = syntheticPrefix + d.ID
	d.Loc = geo.Destination(origin, bearing, SyntheticDistanceM)
	d.Online = false
	return d
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
