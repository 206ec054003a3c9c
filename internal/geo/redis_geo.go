package geo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-simulator/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands so several simulator
// processes can share one fleet.
type RedisGeo struct {
	client  *redis.Client
	key     string
	radiusM float64
	logger  *slog.Logger
}

func NewRedisGeo(client *redis.Client, key string, radiusM float64, logger *slog.Logger) *RedisGeo {
	if logger == nil {
		logger = slog.Default()
	}
	if radiusM <= 0 {
		radiusM = 5000
	}
	return &RedisGeo{client: client, key: key, radiusM: radiusM, logger: logger}
}

func (r *RedisGeo) Upsert(d models.Driver) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// store as GEOADD and HSET for metadata
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
		r.logger.Warn("fleet_geoadd_failed", "driver_id", d.ID, "err", err)
		return
	}
	err := r.client.HSet(ctx, MetaKey(d.ID), MetaFields(d)).Err()
	if err != nil {
		r.logger.Warn("fleet_meta_failed", "driver_id", d.ID, "err", err)
	}
}

func (r *RedisGeo) Nearby(lat, lon float64, limit int) []models.Driver {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{Radius: r.radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		r.logger.Warn("fleet_nearby_failed", "err", err)
		return nil
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		applyMeta(&d, m)
		if !d.Online {
			continue
		}
		out = append(out, d)
	}
	return out
}

func applyMeta(d *models.Driver, m map[string]string) {
	d.Name = m["name"]
	d.Vehicle = m["vehicle"]
	d.Plate = m["plate"]
	d.Phone = m["phone"]
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = f
		}
	}
	d.Online = m["online"] == "true"
}

// MetaFields is the hash written under MetaKey; applyMeta reads it back.
func MetaFields(d models.Driver) map[string]interface{} {
	updated := d.Updated
	if updated.IsZero() {
		updated = time.Now()
	}
	return map[string]interface{}{
		"name":    d.Name,
		"vehicle": d.Vehicle,
		"plate":   d.Plate,
		"phone":   d.Phone,
		"rating":  fmt.Sprintf("%f", d.Rating),
		"online":  strconv.FormatBool(d.Online),
		"updated": updated.Format(time.RFC3339),
	}
}

// MetaKey is the hash holding driver display metadata.
func MetaKey(id string) string { return "driver:meta:" + id }
