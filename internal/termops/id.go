package termops

import (
	"regexp"
	"strconv"
)

var featureRefPattern = regexp.MustCompile(`^(\S+)\.([0-9]+)$`)

// FeatureRef is a direct lookup such as "place.123".
type FeatureRef struct {
	Source string
	ID     int64
}

// ParseFeatureRef recognizes "<source>.<id>" queries for sources that exist
// in known.
func ParseFeatureRef(query string, known func(string) bool) (FeatureRef, bool) {
	m := featureRefPattern.FindStringSubmatch(query)
	if m == nil || !known(m[1]) {
		return FeatureRef{}, false
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return FeatureRef{}, false
	}
	return FeatureRef{Source: m[1], ID: id}, true
}
