package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
)

// Sink receives every committed ride snapshot.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r models.Ride) error
}

// Run forwards snapshots from updates to every sink until updates is closed
// or ctx is done. Sink failures are logged and counted, never fatal.
func Run(ctx context.Context, updates <-chan models.Ride, logger *slog.Logger, sinks ...Sink) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-updates:
			if !ok {
				return
			}
			for _, s := range sinks {
				sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if err := s.Publish(sctx, r); err != nil {
					observability.SinkErrors.WithLabelValues(s.Name()).Inc()
					logger.Warn("sink_publish_failed", "sink", s.Name(), "ride_id", r.ID, "err", err)
				}
				cancel()
			}
		}
	}
}
