package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/ride-simulator/internal/models"
)

// ServerConfig captures all tunable parameters for the simulator process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	TickInterval time.Duration
	SpeedKmh     float64
	SearchDelay  time.Duration
	AcceptDelay  time.Duration
	ArrivalDelay time.Duration
	Interpolate  bool
	FleetSize    int
	FleetCenter  models.Coord
	FleetRadiusM float64
	VehicleType  string
	MatcherTopN  int

	FareBase     int64
	FarePerKm    int64
	FarePerMin   int64
	FareMinimum  int64
	FareCurrency string

	HistoryMax int

	RouteProvider    string
	OSRMEndpoint     string
	GoogleMapsAPIKey string
	RouteCacheTTL    time.Duration
	RouteSteps       int

	RouteBreakerFails int
	RouteBreakerOpen  time.Duration

	StateBackend string
	StateFile    string
	StateKey     string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string
	WebhookURL   string
	NATSURL      string
	NATSSubject  string

	PGDSN string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		CORSOrigins:     []string{"*"},

		TickInterval: time.Second,
		SpeedKmh:     30,
		SearchDelay:  3 * time.Second,
		AcceptDelay:  2 * time.Second,
		ArrivalDelay: time.Second,
		FleetSize:    12,
		FleetCenter:  models.Coord{Lat: 47.9186, Lon: 106.9170},
		FleetRadiusM: 3000,
		VehicleType:  "standard",
		MatcherTopN:  8,

		FareBase:     3000,
		FarePerKm:    1500,
		FarePerMin:   100,
		FareMinimum:  3000,
		FareCurrency: "MNT",

		HistoryMax: 20,

		RouteProvider: "straight",
		OSRMEndpoint:  "https://router.project-osrm.org",
		RouteCacheTTL: 10 * time.Minute,
		RouteSteps:    20,

		RouteBreakerFails: 3,
		RouteBreakerOpen:  30 * time.Second,

		StateBackend: "file",
		StateFile:    "ride-simulator-state.json",
		StateKey:     "ride-simulator:state",
		RedisGeoKey:  "drivers_geo",
		KafkaTopic:   "ride-events",
		NATSSubject:  "rides.events",
		LogLevel:     "info",
	}
}

// LoadServerConfig reads .env (when present) and the environment.
func LoadServerConfig() (ServerConfig, error) {
	var errs []error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("load .env: %w", err))
	}
	cfg, err := fromEnv()
	if err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func fromEnv() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitAndTrim(v)
	}

	setDurationFromEnv(&cfg.TickInterval, "SIM_TICK_INTERVAL", &errs)
	setFloatFromEnv(&cfg.SpeedKmh, "SIM_SPEED_KMH", &errs)
	setDurationFromEnv(&cfg.SearchDelay, "SIM_SEARCH_DELAY", &errs)
	setDurationFromEnv(&cfg.AcceptDelay, "SIM_ACCEPT_DELAY", &errs)
	setDurationFromEnv(&cfg.ArrivalDelay, "SIM_ARRIVAL_DELAY", &errs)
	setBoolFromEnv(&cfg.Interpolate, "SIM_INTERPOLATE", &errs)
	setIntFromEnv(&cfg.FleetSize, "SIM_FLEET_SIZE", &errs)
	setCoordFromEnv(&cfg.FleetCenter, "SIM_FLEET_CENTER", &errs)
	setFloatFromEnv(&cfg.FleetRadiusM, "SIM_FLEET_RADIUS_M", &errs)
	setStringFromEnv(&cfg.VehicleType, "SIM_VEHICLE_TYPE")
	setIntFromEnv(&cfg.MatcherTopN, "MATCHER_TOP_N", &errs)

	setInt64FromEnv(&cfg.FareBase, "FARE_BASE", &errs)
	setInt64FromEnv(&cfg.FarePerKm, "FARE_PER_KM", &errs)
	setInt64FromEnv(&cfg.FarePerMin, "FARE_PER_MIN", &errs)
	setInt64FromEnv(&cfg.FareMinimum, "FARE_MINIMUM", &errs)
	setStringFromEnv(&cfg.FareCurrency, "FARE_CURRENCY")

	setIntFromEnv(&cfg.HistoryMax, "HISTORY_MAX", &errs)

	if v := os.Getenv("ROUTE_PROVIDER"); v != "" {
		cfg.RouteProvider = strings.ToLower(strings.TrimSpace(v))
	}
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	cfg.GoogleMapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setIntFromEnv(&cfg.RouteSteps, "ROUTE_STRAIGHT_STEPS", &errs)
	setIntFromEnv(&cfg.RouteBreakerFails, "ROUTE_BREAKER_FAILS", &errs)
	setDurationFromEnv(&cfg.RouteBreakerOpen, "ROUTE_BREAKER_OPEN", &errs)

	if v := os.Getenv("STATE_BACKEND"); v != "" {
		cfg.StateBackend = strings.ToLower(strings.TrimSpace(v))
	}
	setStringFromEnv(&cfg.StateFile, "STATE_FILE")
	setStringFromEnv(&cfg.StateKey, "STATE_KEY")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	cfg.WebhookURL = strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	setStringFromEnv(&cfg.NATSSubject, "NATS_SUBJECT")

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c ServerConfig) validate() []error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("SIM_TICK_INTERVAL must be > 0"))
	}
	if c.SpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("SIM_SPEED_KMH must be > 0"))
	}
	if c.HistoryMax <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_MAX must be > 0"))
	}
	if c.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if c.RouteBreakerFails <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_BREAKER_FAILS must be > 0"))
	}
	if c.FleetSize < 0 {
		errs = append(errs, fmt.Errorf("SIM_FLEET_SIZE must be >= 0"))
	}
	if c.FareBase < 0 || c.FarePerKm < 0 || c.FarePerMin < 0 || c.FareMinimum < 0 {
		errs = append(errs, fmt.Errorf("fare rates must be >= 0"))
	}
	switch c.RouteProvider {
	case "straight", "osrm":
	case "google":
		if c.GoogleMapsAPIKey == "" {
			errs = append(errs, fmt.Errorf("ROUTE_PROVIDER=google requires GOOGLE_MAPS_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTE_PROVIDER %q", c.RouteProvider))
	}
	switch c.StateBackend {
	case "memory", "file":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("STATE_BACKEND=redis requires REDIS_ADDR"))
		}
	case "postgres":
		if c.PGDSN == "" {
			errs = append(errs, fmt.Errorf("STATE_BACKEND=postgres requires PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend))
	}
	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

// setCoordFromEnv parses "lat,lng".
func setCoordFromEnv(target *models.Coord, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := splitAndTrim(v)
	if len(parts) != 2 {
		*errs = append(*errs, fmt.Errorf("invalid %s: want lat,lng", key))
		return
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	if err := errors.Join(err1, err2); err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*target = models.Coord{Lat: lat, Lon: lon}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
