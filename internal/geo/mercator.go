// Package geo holds the spherical mercator tile math, bounding box helpers
// and proximity scoring shared by the coalescer and the geocode pipeline.
package geo

import "math"

// TileSize is the pixel size of one tile.
const TileSize = 256

const (
	d2r     = math.Pi / 180
	r2d     = 180 / math.Pi
	maxLat  = 85.0511
	maxSinf = 0.9999
)

// LonLatToPx projects a lon/lat pair to global pixel coordinates at zoom.
// Pixels are rounded and clamped to the world extent.
func LonLatToPx(lon, lat float64, zoom int) (float64, float64) {
	size := TileSize * math.Exp2(float64(zoom))
	d := size / 2
	bc := size / 360
	cc := size / (2 * math.Pi)
	f := math.Min(math.Max(math.Sin(d2r*lat), -maxSinf), maxSinf)
	x := math.Round(d + lon*bc)
	y := math.Round(d + 0.5*math.Log((1+f)/(1-f))*(-cc))
	if x > size {
		x = size
	}
	if y > size {
		y = size
	}
	return x, y
}

// PxToLonLat is the inverse of LonLatToPx.
func PxToLonLat(px, py float64, zoom int) (float64, float64) {
	size := TileSize * math.Exp2(float64(zoom))
	d := size / 2
	bc := size / 360
	cc := size / (2 * math.Pi)
	g := (py - d) / (-cc)
	lon := (px - d) / bc
	lat := r2d * (2*math.Atan(math.Exp(g)) - 0.5*math.Pi)
	return lon, lat
}

// TileCorner returns the lon/lat of the top-left corner of tile x/y at zoom.
func TileCorner(x, y float64, zoom int) (float64, float64) {
	return PxToLonLat(x*TileSize, y*TileSize, zoom)
}

// ZXY is a fractional tile position.
type ZXY struct {
	Z int     `json:"z"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Center2ZXY converts a lon/lat point into tile coordinates at zoom z,
// clamping to the mercator world.
func Center2ZXY(lon, lat float64, z int) ZXY {
	lon = math.Min(180, math.Max(-180, lon))
	lat = math.Min(maxLat, math.Max(-maxLat, lat))
	px, py := LonLatToPx(lon, lat, z)
	return ZXY{Z: z, X: px / TileSize, Y: py / TileSize}
}

// TileOf returns the integer tile containing lon/lat at zoom z.
func TileOf(lon, lat float64, z int) (uint32, uint32) {
	c := Center2ZXY(lon, lat, z)
	limit := math.Exp2(float64(z)) - 1
	x := math.Min(math.Max(math.Floor(c.X), 0), limit)
	y := math.Min(math.Max(math.Floor(c.Y), 0), limit)
	return uint32(x), uint32(y)
}
