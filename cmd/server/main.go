package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-simulator/internal/config"
	"github.com/example/ride-simulator/internal/dispatch"
	"github.com/example/ride-simulator/internal/eta"
	"github.com/example/ride-simulator/internal/fare"
	"github.com/example/ride-simulator/internal/geo"
	httpapi "github.com/example/ride-simulator/internal/http"
	"github.com/example/ride-simulator/internal/ingest"
	"github.com/example/ride-simulator/internal/logging"
	"github.com/example/ride-simulator/internal/matcher"
	"github.com/example/ride-simulator/internal/observability"
	"github.com/example/ride-simulator/internal/orchestrator"
	"github.com/example/ride-simulator/internal/ridestore"
	"github.com/example/ride-simulator/internal/route"
	"github.com/example/ride-simulator/internal/simulator"
	"github.com/example/ride-simulator/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
	}

	fleet := newFleet(cfg, rc, logger)
	routes, etaClient, err := newRouteProvider(cfg, logger)
	if err != nil {
		logger.Error("route provider", "err", err)
		os.Exit(1)
	}

	blob, db, err := newStateBlob(ctx, cfg, rc)
	if err != nil {
		logger.Error("state backend", "backend", cfg.StateBackend, "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	store := ridestore.New(ridestore.Config{MaxHistory: cfg.HistoryMax, Blob: blob, Logger: logger})
	if err := store.Load(ctx); err != nil {
		logger.Warn("state_restore_failed", "err", err)
	}

	m := &matcher.Service{
		Geo:             fleet,
		DefaultSpeedMps: cfg.SpeedKmh * 1000 / 3600,
		TopN:            cfg.MatcherTopN,
		ETAClient:       etaClient,
		ETACache:        eta.NewCache(cfg.RouteCacheTTL),
		Logger:          logger,
	}
	orch := orchestrator.New(store, m, orchestrator.Config{
		TickInterval: cfg.TickInterval,
		SearchDelay:  cfg.SearchDelay,
		AcceptDelay:  cfg.AcceptDelay,
		ArrivalDelay: cfg.ArrivalDelay,
		RouteSteps:   cfg.RouteSteps,
		VehicleType:  cfg.VehicleType,
		Simulator:    simulator.Simulator{SpeedKmh: cfg.SpeedKmh, Interpolate: cfg.Interpolate},
		Fare: fare.Policy{
			BaseFare:  cfg.FareBase,
			PerKm:     cfg.FarePerKm,
			PerMinute: cfg.FarePerMin,
			Minimum:   cfg.FareMinimum,
			RoundTo:   10,
			Currency:  cfg.FareCurrency,
		},
	}, orchestrator.WithLogger(logger), orchestrator.WithRouteProvider(routes))
	orch.Resume()

	hub := dispatch.NewWSHub(logger)
	sinks := []dispatch.Sink{hub}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, dispatch.NewWebhook(cfg.WebhookURL))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		sinks = append(sinks, kp)
	}
	if cfg.NATSURL != "" {
		np, err := ingest.NewNATSProducer(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("nats sink disabled", "url", cfg.NATSURL, "err", err)
		} else {
			defer np.Close()
			sinks = append(sinks, np)
		}
	}
	updates, unsubscribe := store.Subscribe()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatch.Run(ctx, updates, logger, sinks...)
	}()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(orch, hub, httpapi.Options{CORSOrigins: cfg.CORSOrigins, Logger: logger}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("ride-simulator listening", "addr", cfg.HTTPAddr, "state_backend", cfg.StateBackend, "route_provider", cfg.RouteProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	orch.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	unsubscribe()
	<-dispatchDone
}

func newFleet(cfg config.ServerConfig, rc *redis.Client, logger *slog.Logger) geo.Geo {
	var fleet geo.Geo
	if rc != nil {
		fleet = geo.NewRedisGeo(rc, cfg.RedisGeoKey, cfg.FleetRadiusM*2, logger)
	} else {
		fleet = geo.NewIndex()
	}
	drivers := geo.SeedFleet(fleet, cfg.FleetCenter, cfg.FleetRadiusM, cfg.FleetSize, nil)
	observability.DriversOnline.Set(float64(len(drivers)))
	return fleet
}

func newRouteProvider(cfg config.ServerConfig, logger *slog.Logger) (route.Provider, eta.Client, error) {
	breaker := func(p route.Provider) route.Provider {
		return route.NewBreaker(p, route.BreakerSettings{
			Name:                cfg.RouteProvider,
			MaxConsecutiveFails: uint32(cfg.RouteBreakerFails),
			OpenTimeout:         cfg.RouteBreakerOpen,
			Logger:              logger,
		})
	}
	switch cfg.RouteProvider {
	case "osrm":
		p := route.NewOSRMProvider(cfg.OSRMEndpoint)
		return route.NewCached(breaker(p), cfg.RouteCacheTTL), p, nil
	case "google":
		p, err := route.NewGoogleProvider(cfg.GoogleMapsAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return route.NewCached(breaker(p), cfg.RouteCacheTTL), nil, nil
	default:
		return route.StraightLine{Steps: cfg.RouteSteps}, nil, nil
	}
}

func newStateBlob(ctx context.Context, cfg config.ServerConfig, rc *redis.Client) (storage.Blob, *sql.DB, error) {
	switch cfg.StateBackend {
	case "memory":
		return storage.NewMemoryBlob(), nil, nil
	case "redis":
		return storage.NewRedisBlob(storage.NewRedisKV(rc), cfg.StateKey), nil, nil
	case "postgres":
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := storage.OpenPostgres(pctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		blob := storage.NewPostgresBlob(db, cfg.StateKey)
		if cfg.RunMigrations {
			if err := blob.Migrate(pctx); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return blob, db, nil
	default:
		return storage.NewFileBlob(cfg.StateFile), nil, nil
	}
}
