package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"

	"map_graph/pkg/geo"
	"map_graph/pkg/graph"
	"map_graph/pkg/places"
	"map_graph/pkg/spatial"
)

// Limits on response sizes.
const (
	defaultNodeLimit = 2000
	maxNodeLimit     = 10000
	sampleNodes      = 500
	maxEdges         = 2000
	defaultPlaces    = 20
	maxPlaces        = 100
)

// Dataset is everything the handlers serve. Places may be nil.
type Dataset struct {
	Graph  *graph.Graph
	Nodes  spatial.Locator
	Index  *spatial.Index
	Places *places.Catalog
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	data  Dataset
	stats StatsResponse
}

// NewHandlers creates handlers over data.
func NewHandlers(data Dataset) *Handlers {
	stats := StatsResponse{NumNodes: data.Graph.NumNodes, NumArcs: data.Graph.NumArcs}
	if data.Places != nil {
		stats.NumPlaces = data.Places.Len()
	}
	return &Handlers{data: data, stats: stats}
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.stats)
}

// HandleNodes handles GET /api/v1/nodes. Without bounds it returns a
// sample of the first nodes.
func (h *Handlers) HandleNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	total := int(h.data.Graph.NumNodes)

	if !hasBounds(q) {
		n := min(sampleNodes, total)
		resp := NodesResponse{Nodes: make([]NodeJSON, 0, n), Total: total, Sampled: true}
		for i := uint32(0); i < uint32(n); i++ {
			resp.Nodes = append(resp.Nodes, h.node(i))
		}
		writeJSON(w, resp)
		return
	}

	b, field, err := parseBounds(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bounds", field)
		return
	}
	limit, err := parseLimit(q.Get("limit"), defaultNodeLimit, maxNodeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit")
		return
	}

	inBounds := h.data.Index.CountInBounds(b)
	ids := h.data.Index.InBounds(b, limit)
	resp := NodesResponse{
		Nodes:     make([]NodeJSON, 0, len(ids)),
		Total:     total,
		InBounds:  inBounds,
		Truncated: inBounds > len(ids),
		Bounds:    boundsJSON(b),
	}
	for _, id := range ids {
		resp.Nodes = append(resp.Nodes, h.node(id))
	}
	writeJSON(w, resp)
}

// HandleNodeStats handles GET /api/v1/nodes/stats.
func (h *Handlers) HandleNodeStats(w http.ResponseWriter, r *http.Request) {
	resp := NodeStatsResponse{Count: int(h.data.Graph.NumNodes)}
	if b, ok := h.data.Index.Bounds(); ok {
		resp.Bounds = boundsJSON(b)
		c := b.Center()
		resp.Center = &LatLonJSON{Lat: c.Lat(), Lon: c.Lon()}
	}
	writeJSON(w, resp)
}

// HandleEdges handles GET /api/v1/edges. It returns arcs whose source node
// lies inside the bounds, in source id order.
func (h *Handlers) HandleEdges(w http.ResponseWriter, r *http.Request) {
	b, field, err := parseBounds(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bounds", field)
		return
	}

	g := h.data.Graph
	resp := EdgesResponse{Edges: []EdgeJSON{}}
	for _, u := range h.data.Index.InBounds(b, 0) {
		if err := r.Context().Err(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
			return
		}
		start, end := g.ArcsFrom(u)
		for e := start; e < end; e++ {
			if len(resp.Edges) == maxEdges {
				resp.Truncated = true
				break
			}
			v := uint32(g.Targets[e])
			resp.Edges = append(resp.Edges, EdgeJSON{
				From:     u,
				To:       v,
				FromLat:  h.data.Nodes.NodeLat(u),
				FromLon:  h.data.Nodes.NodeLon(u),
				ToLat:    h.data.Nodes.NodeLat(v),
				ToLon:    h.data.Nodes.NodeLon(v),
				WeightKm: g.Weights[e],
			})
		}
		if resp.Truncated {
			break
		}
	}
	resp.Total = len(resp.Edges)
	writeJSON(w, resp)
}

// HandlePlaceSearch handles GET /api/v1/places/search.
func (h *Handlers) HandlePlaceSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q")
		return
	}
	limit, err := parseLimit(q.Get("limit"), defaultPlaces, maxPlaces)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit")
		return
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset")
			return
		}
	}

	resp := PlacesResponse{Places: []PlaceJSON{}}
	if h.data.Places != nil {
		hits, total := h.data.Places.Search(query, limit, offset)
		resp.Total = total
		for _, hit := range hits {
			resp.Places = append(resp.Places, PlaceJSON{
				ID:   hit.ID,
				Name: hit.Name,
				Type: hit.Type,
				Lat:  hit.Lat,
				Lon:  hit.Lon,
			})
		}
	}
	writeJSON(w, resp)
}

// HandlePlaceNode handles GET /api/v1/places/{id}/node.
func (h *Handlers) HandlePlaceNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id")
		return
	}
	if h.data.Places == nil {
		writeError(w, http.StatusNotFound, "place_not_found", "")
		return
	}
	p, ok := h.data.Places.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "place_not_found", "")
		return
	}
	nodeID, km, ok := h.data.Index.Nearest(orb.Point{p.Lon, p.Lat})
	if !ok {
		writeError(w, http.StatusNotFound, "no_nodes", "")
		return
	}
	writeJSON(w, PlaceNodeResponse{
		PlaceID:    id,
		NodeID:     nodeID,
		DistanceKm: km,
		Lat:        h.data.Nodes.NodeLat(nodeID),
		Lon:        h.data.Nodes.NodeLon(nodeID),
	})
}

func (h *Handlers) node(id uint32) NodeJSON {
	return NodeJSON{ID: id, Lat: h.data.Nodes.NodeLat(id), Lon: h.data.Nodes.NodeLon(id)}
}

var boundParams = []string{"minLat", "maxLat", "minLon", "maxLon"}

func hasBounds(q map[string][]string) bool {
	for _, k := range boundParams {
		if len(q[k]) > 0 && q[k][0] != "" {
			return true
		}
	}
	return false
}

// parseBounds reads the four bound parameters. field names the first
// offending parameter on error.
func parseBounds(q map[string][]string) (b orb.Bound, field string, err error) {
	var v [4]float64
	for i, k := range boundParams {
		if len(q[k]) == 0 {
			return b, k, errors.New("missing bound")
		}
		f, err := strconv.ParseFloat(q[k][0], 64)
		if err != nil {
			return b, k, err
		}
		v[i] = f
	}
	minLat, maxLat, minLon, maxLon := v[0], v[1], v[2], v[3]
	if err := validateCoord(LatLonJSON{Lat: minLat, Lon: minLon}); err != nil {
		return b, "minLat", err
	}
	if err := validateCoord(LatLonJSON{Lat: maxLat, Lon: maxLon}); err != nil {
		return b, "maxLat", err
	}
	if minLat > maxLat || minLon > maxLon {
		return b, "minLat", errors.New("min exceeds max")
	}
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}, "", nil
}

func parseLimit(s string, def, max int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, max), nil
}

func boundsJSON(b orb.Bound) *BoundsJSON {
	return &BoundsJSON{MinLat: b.Min.Lat(), MaxLat: b.Max.Lat(), MinLon: b.Min.Lon(), MaxLon: b.Max.Lon()}
}

func validateCoord(ll LatLonJSON) error {
	if !geo.ValidLatLng(ll.Lat, ll.Lon) {
		return errors.New("coordinates must be finite and inside the WGS84 range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
