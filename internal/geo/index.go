package geo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-simulator/internal/models"
)

// Geo is the minimal fleet interface required by the matcher.
type Geo interface {
	Nearby(lat, lon float64, limit int) []models.Driver
	Upsert(d models.Driver)
}

// Index is an in-memory simulated fleet.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.drivers)
}

// naive scan; fleet sizes in the simulator are tiny
func (g *Index) Nearby(lat, lon float64, limit int) []models.Driver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Online {
			continue
		}
		dist := Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon)
		arr = append(arr, pair{d, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out
}

var (
	fleetNames    = []string{"Bat-Erdene", "Temuulen", "Anar", "Saraa", "Ganbold", "Oyuna", "Tuvshin", "Naraa"}
	fleetVehicles = []string{"Toyota Prius", "Hyundai Sonata", "Toyota Camry", "Kia K5", "Nissan Leaf"}
)

// SeedFleet places n online drivers uniformly around center within radiusM.
func SeedFleet(g Geo, center models.Coord, radiusM float64, n int, rng *rand.Rand) []models.Driver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		d := models.Driver{
			ID:      "drv-" + randomTag(rng),
			Name:    fleetNames[rng.Intn(len(fleetNames))],
			Vehicle: fleetVehicles[rng.Intn(len(fleetVehicles))],
			Plate:   plate(rng),
			Phone:   "+976" + digits(rng, 8),
			Loc:     Destination(center, rng.Float64()*360, rng.Float64()*radiusM),
			Rating:  4 + float64(rng.Intn(11))/10,
			Online:  true,
		}
		g.Upsert(d)
		out = append(out, d)
	}
	return out
}

func randomTag(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func plate(rng *rand.Rand) string {
	const letters = "АБВГДЕЗИКЛМНОПРСТУХ"
	r := []rune(letters)
	return digits(rng, 4) + " УБ" + string(r[rng.Intn(len(r))])
}

func digits(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}
