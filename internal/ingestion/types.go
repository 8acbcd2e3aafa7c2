// Package ingestion defines the request/response types and Kafka event schemas
// used by the feature ingestion pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	Feature features.Feature `json:"feature"`
}

// IngestResponse is returned to the caller after a feature is accepted.
type IngestResponse struct {
	Source    string `json:"source"`
	FeatureID int64  `json:"feature_id"`
	GridID    uint32 `json:"grid_id"`
	Status    string `json:"status"`
}

// FeatureEvent is the Kafka message payload produced after a feature is
// persisted and ready for indexing.
type FeatureEvent struct {
	Feature    features.Feature `json:"feature"`
	IngestedAt time.Time        `json:"ingested_at"`
}

// IndexEvent announces a flush of one source's index. Geocoders drop their
// cached queries when they see one.
type IndexEvent struct {
	Source    string    `json:"source"`
	Phrases   int       `json:"phrases"`
	Features  int       `json:"features"`
	FlushedAt time.Time `json:"flushed_at"`
}
