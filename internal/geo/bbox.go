package geo

import "math"

// BBox is [minX, minY, maxX, maxY] in degrees.
type BBox [4]float64

// TileBBox is an inclusive tile range at a zoom level.
type TileBBox struct {
	Z    int `json:"z"`
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// Contains reports whether tile x/y at the same zoom falls in the range.
func (t TileBBox) Contains(x, y int) bool {
	return x >= t.MinX && x <= t.MaxX && y >= t.MinY && y <= t.MaxY
}

// Inside reports whether lon/lat lies in bbox, edges included.
func Inside(lon, lat float64, bbox BBox) bool {
	return !(lon < bbox[0] || lon > bbox[2] || lat < bbox[1] || lat > bbox[3])
}

// InsideTile converts bbox to the tile range covering it at zoom.
func InsideTile(bbox BBox, zoom int) TileBBox {
	llx, lly := LonLatToPx(bbox[0], bbox[1], zoom)
	urx, ury := LonLatToPx(bbox[2], bbox[3], zoom)
	x0 := math.Floor(llx / TileSize)
	x1 := math.Floor((urx - 1) / TileSize)
	y0 := math.Floor(ury / TileSize)
	y1 := math.Floor((lly - 1) / TileSize)
	return TileBBox{
		Z:    zoom,
		MinX: int(math.Max(math.Min(x0, x1), 0)),
		MinY: int(math.Max(math.Min(y0, y1), 0)),
		MaxX: int(math.Max(x0, x1)),
		MaxY: int(math.Max(y0, y1)),
	}
}

// Intersect reports whether two bounding boxes overlap, touching included.
func Intersect(a, b BBox) bool {
	return !(a[0] > b[2] || a[2] < b[0] || a[1] > b[3] || a[3] < b[1])
}

// ClipBBox returns bbox unchanged unless it crosses the antimeridian, in
// which case it is clipped at +/-179.9 keeping the larger side.
func ClipBBox(bbox BBox) BBox {
	if bbox[0] < bbox[2] {
		return bbox
	}
	if math.Abs(bbox[0]) > math.Abs(bbox[2]) {
		bbox[0] = -179.9
	} else {
		bbox[2] = 179.9
	}
	return bbox
}
