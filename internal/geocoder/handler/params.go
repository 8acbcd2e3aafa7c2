package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// ParseOptions reads proximity, bbox, types and limit from query
// parameters.
func ParseOptions(values url.Values) (geocoder.Options, error) {
	var opts geocoder.Options

	if raw := values.Get("proximity"); raw != "" {
		coords, err := parseFloats(raw, 2)
		if err != nil {
			return opts, fmt.Errorf("%w: proximity: %v", apperrors.ErrInvalidInput, err)
		}
		if coords[0] < -180 || coords[0] > 180 || coords[1] < -90 || coords[1] > 90 {
			return opts, fmt.Errorf("%w: proximity must be lon,lat within range", apperrors.ErrInvalidInput)
		}
		opts.Proximity = &[2]float64{coords[0], coords[1]}
	}

	if raw := values.Get("bbox"); raw != "" {
		c, err := parseFloats(raw, 4)
		if err != nil {
			return opts, fmt.Errorf("%w: bbox: %v", apperrors.ErrInvalidInput, err)
		}
		if c[0] > c[2] || c[1] > c[3] {
			return opts, fmt.Errorf("%w: bbox must be minX,minY,maxX,maxY", apperrors.ErrInvalidInput)
		}
		bbox := geo.BBox{c[0], c[1], c[2], c[3]}
		opts.BBox = &bbox
	}

	if raw := values.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Types = append(opts.Types, t)
			}
		}
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("%w: limit must be a positive integer", apperrors.ErrInvalidInput)
		}
		opts.Limit = n
	}
	return opts, nil
}

func parseFloats(raw string, n int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out[i] = v
	}
	return out, nil
}
