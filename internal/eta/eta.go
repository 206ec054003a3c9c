package eta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-simulator/internal/geo"
	"github.com/example/ride-simulator/internal/models"
)

// DefaultSpeedMps is ~28.8 km/h, a typical city average.
const DefaultSpeedMps = 8.0

// Client is the interface used by the matcher to get road ETAs.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

// Key renders a stable cache key for a directed coordinate pair.
func Key(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := Key(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := Key(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// EstimateSeconds is the straight-line ETA: distance / speed.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	return RemainingSeconds(geo.Distance(from, to), speedMps)
}

// RemainingSeconds converts a distance left to travel into seconds.
func RemainingSeconds(meters, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	if meters <= 0 {
		return 0
	}
	return meters / speedMps
}

// RemainingOnRoute returns the meters left from the cursor to the end of route.
func RemainingOnRoute(route []models.Coord, index int, carryM float64) float64 {
	if index >= len(route)-1 {
		return 0
	}
	left := geo.PathLength(route[index:]) - carryM
	if left < 0 {
		return 0
	}
	return left
}
