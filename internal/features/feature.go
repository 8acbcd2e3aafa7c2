// Package features holds the feature records behind the grids of every
// source, and the stores the geocoder hydrates results from.
package features

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

// maxCoverTiles bounds how many tiles a feature bbox may expand into before
// indexing falls back to the center tile alone.
const maxCoverTiles = 256

// Feature is one indexed place. Text holds comma separated synonyms, the
// first being the display name. Address features carry housenumbers per
// geometry, with AddressPoints parallel to AddressNumbers. Intersections
// names the streets crossing a street feature.
type Feature struct {
	ID             int64          `json:"id"`
	Source         string         `json:"source"`
	Text           string         `json:"carmen:text"`
	Center         [2]float64     `json:"carmen:center"`
	BBox           *geo.BBox      `json:"bbox,omitempty"`
	Score          float64        `json:"carmen:score,omitempty"`
	AddressNumbers [][]string     `json:"carmen:addressnumber,omitempty"`
	AddressPoints  [][][2]float64 `json:"carmen:addresspoints,omitempty"`
	RangeType      string         `json:"carmen:rangetype,omitempty"`
	LFromHN        [][]string     `json:"carmen:lfromhn,omitempty"`
	LToHN          [][]string     `json:"carmen:ltohn,omitempty"`
	RFromHN        [][]string     `json:"carmen:rfromhn,omitempty"`
	RToHN          [][]string     `json:"carmen:rtohn,omitempty"`
	Intersections  []string       `json:"carmen:intersections,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// Synonyms splits Text into its trimmed, non-empty names.
func (f Feature) Synonyms() []string {
	var out []string
	for _, s := range strings.Split(f.Text, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Name is the first synonym.
func (f Feature) Name() string {
	if syn := f.Synonyms(); len(syn) > 0 {
		return syn[0]
	}
	return ""
}

// GridID is the id the feature is known by inside grids.
func (f Feature) GridID() uint32 { return termops.FeatureID(f.ID) }

// IsAddress reports whether the feature carries housenumbers.
func (f Feature) IsAddress() bool {
	return len(f.AddressNumbers) > 0 || f.RangeType != ""
}

// HousenumDoc returns the housenumber data for range token generation.
func (f Feature) HousenumDoc() termops.HousenumDoc {
	geometries := max(len(f.LFromHN), len(f.LToHN), len(f.RFromHN), len(f.RToHN))
	return termops.HousenumDoc{
		AddressNumbers: f.AddressNumbers,
		RangeType:      f.RangeType,
		LFromHN:        f.LFromHN,
		LToHN:          f.LToHN,
		RFromHN:        f.RFromHN,
		RToHN:          f.RToHN,
		Geometries:     geometries,
	}
}

// AddressPoint returns the point of housenumber number, matched
// case-insensitively.
func (f Feature) AddressPoint(number string) ([2]float64, bool) {
	for g, numbers := range f.AddressNumbers {
		if g >= len(f.AddressPoints) {
			break
		}
		for i, n := range numbers {
			if i < len(f.AddressPoints[g]) && strings.EqualFold(n, number) {
				return f.AddressPoints[g][i], true
			}
		}
	}
	return [2]float64{}, false
}

// Tile is an integer tile position.
type Tile struct {
	X uint32
	Y uint32
}

// Tiles returns the tiles the feature covers at zoom, sorted by y then x:
// the center tile, every tile of a bbox small enough to expand, and the
// tile of each address point.
func (f Feature) Tiles(zoom int) []Tile {
	seen := make(map[Tile]bool)
	add := func(lon, lat float64) {
		x, y := geo.TileOf(lon, lat, zoom)
		seen[Tile{X: x, Y: y}] = true
	}
	add(f.Center[0], f.Center[1])

	if f.BBox != nil {
		tb := geo.InsideTile(geo.ClipBBox(*f.BBox), zoom)
		if (tb.MaxX-tb.MinX+1)*(tb.MaxY-tb.MinY+1) <= maxCoverTiles {
			for y := tb.MinY; y <= tb.MaxY; y++ {
				for x := tb.MinX; x <= tb.MaxX; x++ {
					seen[Tile{X: uint32(x), Y: uint32(y)}] = true
				}
			}
		}
	}
	for _, points := range f.AddressPoints {
		for _, p := range points {
			add(p[0], p[1])
		}
	}

	tiles := make([]Tile, 0, len(seen))
	for t := range seen {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
	return tiles
}

// CoversTile reports whether tile x/y at zoom is one of the feature's tiles.
func (f Feature) CoversTile(zoom int, x, y uint32) bool {
	for _, t := range f.Tiles(zoom) {
		if t.X == x && t.Y == y {
			return true
		}
	}
	return false
}
