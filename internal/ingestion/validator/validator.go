// Package validator provides input validation for ingested features. It
// checks identity, names, coordinates and housenumber shapes and returns
// per-field error details.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
)

const (
	maxTextLength = 4096
	maxSynonyms   = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateFeature checks f against the known sources and returns a
// ValidationError listing every problem. known may be nil to skip the
// source check.
func ValidateFeature(f *features.Feature, known func(string) bool) error {
	errs := make(map[string]string)

	if f.ID <= 0 {
		errs["id"] = "id must be a positive integer"
	}
	switch {
	case f.Source == "":
		errs["source"] = "source is required"
	case known != nil && !known(f.Source):
		errs["source"] = fmt.Sprintf("unknown source %q", f.Source)
	}

	text := strings.TrimSpace(f.Text)
	switch {
	case text == "" || len(f.Synonyms()) == 0:
		errs["carmen:text"] = "text is required"
	case len(text) > maxTextLength:
		errs["carmen:text"] = fmt.Sprintf("text must be at most %d characters", maxTextLength)
	case len(f.Synonyms()) > maxSynonyms:
		errs["carmen:text"] = fmt.Sprintf("at most %d synonyms are allowed", maxSynonyms)
	}

	if !validLonLat(f.Center) {
		errs["carmen:center"] = "center must be [lon, lat] within [-180,180] and [-90,90]"
	}
	if f.BBox != nil {
		b := *f.BBox
		if !validLonLat([2]float64{b[0], b[1]}) || !validLonLat([2]float64{b[2], b[3]}) || b[1] > b[3] {
			errs["bbox"] = "bbox must be [minX, minY, maxX, maxY] in degrees"
		}
	}
	if f.Score < 0 || math.IsNaN(f.Score) || math.IsInf(f.Score, 0) {
		errs["carmen:score"] = "score must be a finite non-negative number"
	}

	if len(f.AddressPoints) > 0 {
		if len(f.AddressPoints) != len(f.AddressNumbers) {
			errs["carmen:addresspoints"] = "address points must have one list per housenumber list"
		} else {
			for g := range f.AddressNumbers {
				if len(f.AddressPoints[g]) != len(f.AddressNumbers[g]) {
					errs["carmen:addresspoints"] = fmt.Sprintf("geometry %d has %d numbers and %d points", g, len(f.AddressNumbers[g]), len(f.AddressPoints[g]))
					break
				}
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validLonLat(p [2]float64) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}
