package geo

import (
	"math"

	"github.com/example/ride-simulator/internal/models"
)

// EarthRadiusM is the spherical-Earth radius used by every helper here.
const EarthRadiusM = 6371000.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Bearing returns the initial compass bearing from a to b in [0, 360).
// The result is 0 when a == b.
func Bearing(a, b models.Coord) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return normalizeDeg(toDeg(math.Atan2(y, x)))
}

// Destination returns the point reached from origin after travelling meters
// along the great circle that starts at bearingDeg.
func Destination(origin models.Coord, bearingDeg, meters float64) models.Coord {
	delta := meters / EarthRadiusM
	theta := toRad(bearingDeg)
	lat1, lon1 := toRad(origin.Lat), toRad(origin.Lon)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1), math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))
	return models.Coord{Lat: toDeg(lat2), Lon: normalizeLon(toDeg(lon2))}
}

// Interpolate returns the point a fraction t of the way from a to b.
// Linear in degrees, which is accurate enough over street-length segments.
func Interpolate(a, b models.Coord, t float64) models.Coord {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return models.Coord{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// PathLength sums segment distances along path in meters.
func PathLength(path []models.Coord) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// ValidCoord reports whether c lies inside WGS84 bounds.
func ValidCoord(c models.Coord) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

func normalizeLon(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}
