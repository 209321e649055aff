package api

// LatLonJSON represents a lat/lon pair in JSON.
type LatLonJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundsJSON is a latitude/longitude box.
type BoundsJSON struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// NodeJSON is one graph node.
type NodeJSON struct {
	ID  uint32  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NodesResponse is the JSON response for GET /api/v1/nodes.
type NodesResponse struct {
	Nodes     []NodeJSON  `json:"nodes"`
	Total     int         `json:"total"`
	InBounds  int         `json:"in_bounds"`
	Truncated bool        `json:"truncated,omitempty"`
	Sampled   bool        `json:"sampled,omitempty"`
	Bounds    *BoundsJSON `json:"bounds,omitempty"`
}

// NodeStatsResponse is the JSON response for GET /api/v1/nodes/stats.
type NodeStatsResponse struct {
	Count  int         `json:"count"`
	Bounds *BoundsJSON `json:"bounds,omitempty"`
	Center *LatLonJSON `json:"center,omitempty"`
}

// EdgeJSON is one directed arc with both endpoint coordinates.
type EdgeJSON struct {
	From     uint32  `json:"from"`
	To       uint32  `json:"to"`
	FromLat  float64 `json:"from_lat"`
	FromLon  float64 `json:"from_lon"`
	ToLat    float64 `json:"to_lat"`
	ToLon    float64 `json:"to_lon"`
	WeightKm float64 `json:"weight_km"`
}

// EdgesResponse is the JSON response for GET /api/v1/edges.
type EdgesResponse struct {
	Edges     []EdgeJSON `json:"edges"`
	Total     int        `json:"total"`
	Truncated bool       `json:"truncated,omitempty"`
}

// PlaceJSON is one search hit.
type PlaceJSON struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// PlacesResponse is the JSON response for GET /api/v1/places/search.
type PlacesResponse struct {
	Places []PlaceJSON `json:"places"`
	Total  int         `json:"total"`
}

// PlaceNodeResponse is the JSON response for GET /api/v1/places/{id}/node.
type PlaceNodeResponse struct {
	PlaceID    int     `json:"place_id"`
	NodeID     uint32  `json:"node_id"`
	DistanceKm float64 `json:"distance_km"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumNodes  uint32 `json:"num_nodes"`
	NumArcs   uint32 `json:"num_arcs"`
	NumPlaces int    `json:"num_places"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
