// Package proto defines the shared message types exchanged over the internal
// JSON-over-TCP RPC layer (see pkg/grpc) between the geocoder, the
// gridserver and the indexer.
//
// The types are plain structs with JSON tags so every service can decode
// them without sharing internal packages.
package proto

// ---------- Common ----------

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Coalesce ----------

// Phrasematch is one stack member sent to the gridserver.
type Phrasematch struct {
	Idx         int      `json:"idx"`
	Phrase      string   `json:"phrase"`
	Mask        uint32   `json:"mask"`
	Weight      float64  `json:"weight"`
	Zoom        int      `json:"zoom"`
	Subquery    []string `json:"subquery,omitempty"`
	ScoreFactor float64  `json:"scorefactor"`
	Prefix      bool     `json:"prefix,omitempty"`
	Address     string   `json:"address,omitempty"`
}

// TileCenter is a fractional tile position.
type TileCenter struct {
	Z int     `json:"z"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TileRange is an inclusive tile range at one zoom.
type TileRange struct {
	Z    int `json:"z"`
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// CoalesceRequest is the input to GridService.Coalesce.
type CoalesceRequest struct {
	Members []Phrasematch `json:"members"`
	Relev   float64       `json:"relev"`
	Center  *TileCenter   `json:"center,omitempty"`
	Radius  float64       `json:"radius,omitempty"`
	BBox    *TileRange    `json:"bbox,omitempty"`
}

// CoalesceCover is one grid cell of a coalesce match.
type CoalesceCover struct {
	X         uint32  `json:"x"`
	Y         uint32  `json:"y"`
	Relev     float64 `json:"relev"`
	ID        uint32  `json:"id"`
	Idx       int     `json:"idx"`
	TmpID     uint32  `json:"tmpid"`
	Distance  float64 `json:"distance"`
	Score     int     `json:"score"`
	ScoreDist float64 `json:"scoredist"`
}

// CoalesceMatch is one coalesce result, leading cover first.
type CoalesceMatch struct {
	Relev  float64         `json:"relev"`
	Covers []CoalesceCover `json:"covers"`
}

// CoalesceResponse is the output of GridService.Coalesce.
type CoalesceResponse struct {
	Matches []CoalesceMatch `json:"matches"`
}

// ---------- Stats ----------

// StatsRequest optionally names one source; empty means every source.
type StatsRequest struct {
	Source string `json:"source,omitempty"`
}

// SourceStat holds per-source key counts.
type SourceStat struct {
	Source string `json:"source"`
	Idx    int    `json:"idx"`
	Grids  int    `json:"grids"`
	Freqs  int    `json:"freqs"`
	Shards int    `json:"shards"`
}

// StatsResponse lists the sources a gridserver serves.
type StatsResponse struct {
	Sources []SourceStat `json:"sources"`
}
