package geo

import "math"

// cheap-ruler WGS84 constants, distances in miles.
const (
	earthRadiusKm = 6378.137
	flattening    = 1 / 298.257223563
	e2            = flattening * (2 - flattening)
	milesPerKm    = 1000 / 1609.344
)

// Ruler measures short distances around a reference latitude.
type Ruler struct {
	kx, ky float64
}

// NewRuler returns a miles ruler tuned for lat.
func NewRuler(lat float64) Ruler {
	m := d2r * earthRadiusKm * milesPerKm
	coslat := math.Cos(lat * d2r)
	w2 := 1 / (1 - e2*(1-coslat*coslat))
	w := math.Sqrt(w2)
	return Ruler{kx: m * w * coslat, ky: m * w * w2 * (1 - e2)}
}

// Distance returns the distance in miles between two lon/lat points.
func (r Ruler) Distance(lon1, lat1, lon2, lat2 float64) float64 {
	dx := wrapLon(lon1-lon2) * r.kx
	dy := (lat1 - lat2) * r.ky
	return math.Sqrt(dx*dx + dy*dy)
}

func wrapLon(deg float64) float64 {
	for deg < -180 {
		deg += 360
	}
	for deg > 180 {
		deg -= 360
	}
	return deg
}

// Cover is the minimal view of a grid cover needed for distance checks:
// its tile position at zoom Z.
type Cover struct {
	X, Y uint32
	Z    int
}

// Distance returns the smaller of the distance from the proximity point to
// the cover's tile center and to its furthest tile corner, in miles.
func Distance(lon, lat float64, c Cover) float64 {
	ruler := NewRuler(lat)
	x, y := float64(c.X), float64(c.Y)
	cx, cy := TileCorner(x+0.5, y+0.5, c.Z)
	center := ruler.Distance(lon, lat, cx, cy)

	var furthest float64
	for _, d := range [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		px, py := TileCorner(x+d[0], y+d[1], c.Z)
		if dist := ruler.Distance(lon, lat, px, py); dist > furthest {
			furthest = dist
		}
	}
	return math.Min(center, furthest)
}

// ScoreDist weights meanScore by proximity. Results decay to zero at
// radius*(15-zoom) miles; zoom is capped at 14.
func ScoreDist(meanScore, dist float64, zoom int, radius float64) float64 {
	if zoom > 14 {
		zoom = 14
	}
	weighted := radius * float64(15-zoom)
	d := 1 - math.Min(dist/weighted, 1)
	return round4(100 * meanScore * d * d)
}

// DistScore scales score by inverse distance, with distances under 50
// miles treated as 50.
func DistScore(score, dist float64) float64 {
	return round4(score * 1000 / math.Max(dist, 50))
}

// MeanScore is the geometric mean of scores, each floored at 1.
func MeanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	prod := 1.0
	for _, s := range scores {
		prod *= math.Max(s, 1)
	}
	return math.Pow(prod, 1/float64(len(scores)))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
