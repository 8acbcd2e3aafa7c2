// Package analytics aggregates forward geocode activity: query events
// published by geocoders and flush events published by indexers.
package analytics

import "time"

// QueryEvent records one forward geocode as the HTTP layer saw it.
type QueryEvent struct {
	Query        string    `json:"query"`
	Tokens       []string  `json:"tokens,omitempty"`
	Types        []string  `json:"types,omitempty"`
	Proximity    bool      `json:"proximity"`
	Returned     int       `json:"returned"`
	TopSource    string    `json:"top_source,omitempty"`
	TopRelevance float64   `json:"top_relevance"`
	Cache        string    `json:"cache"`
	Status       int       `json:"status"`
	LatencyMs    int64     `json:"latency_ms"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Tracker accepts query events without blocking the request.
type Tracker interface {
	Track(event QueryEvent)
}
