package route

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-simulator/internal/eta"
	"github.com/example/ride-simulator/internal/models"
)

// Cached wraps a Provider with a TTL cache. Failures and empty paths are
// not cached so a later ride can retry.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	store map[string]cachedPath
}

type cachedPath struct {
	path []models.Coord
	ts   time.Time
}

func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now, store: make(map[string]cachedPath)}
}

func (c *Cached) FetchRoute(ctx context.Context, origin, destination models.Coord) ([]models.Coord, error) {
	k := eta.Key(origin, destination)
	c.mu.Lock()
	e, ok := c.store[k]
	if ok && c.now().Sub(e.ts) <= c.ttl {
		c.mu.Unlock()
		return append([]models.Coord(nil), e.path...), nil
	}
	if ok {
		delete(c.store, k)
	}
	c.mu.Unlock()

	path, err := c.next.FetchRoute(ctx, origin, destination)
	if err != nil || len(path) == 0 {
		return path, err
	}
	c.mu.Lock()
	c.store[k] = cachedPath{path: append([]models.Coord(nil), path...), ts: c.now()}
	c.mu.Unlock()
	return path, nil
}
