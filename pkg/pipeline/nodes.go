// Package pipeline turns road-segment records into a deduplicated node set
// and a weighted CSR graph.
package pipeline

import (
	"bytes"
	"cmp"
	"slices"

	"map_graph/pkg/chunk"
	"map_graph/pkg/record"
)

// Coord is a node identity. Two coordinates are the same node only when
// both components are exactly equal.
type Coord struct {
	Lat float64
	Lon float64
}

func compareCoord(a, b Coord) int {
	if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
		return c
	}
	return cmp.Compare(a.Lon, b.Lon)
}

// NodeSet is the set of distinct coordinates seen in one chunk.
type NodeSet map[Coord]struct{}

// ScanStats counts what a collector saw in its range.
type ScanStats struct {
	Lines   int64
	Records int64
	Skipped int64 // malformed lines
}

func (s *ScanStats) add(o ScanStats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.Skipped += o.Skipped
}

// scanRecords feeds every parsable record in r to fn. Blank lines are
// ignored, malformed ones are counted and dropped.
func scanRecords(path string, r chunk.Range, fn func(rec record.Record)) (ScanStats, error) {
	var stats ScanStats
	err := chunk.Scan(path, r, func(line []byte) {
		if len(bytes.TrimSpace(line)) == 0 {
			return
		}
		stats.Lines++
		rec, ok := record.Parse(line)
		if !ok {
			stats.Skipped++
			return
		}
		stats.Records++
		fn(rec)
	})
	return stats, err
}

// CollectNodes returns the distinct coordinates in r.
func CollectNodes(path string, r chunk.Range) (NodeSet, ScanStats, error) {
	set := make(NodeSet)
	stats, err := scanRecords(path, r, func(rec record.Record) {
		set[Coord{Lat: rec.Lat, Lon: rec.Lon}] = struct{}{}
	})
	if err != nil {
		return nil, stats, err
	}
	return set, stats, nil
}

// NodeIndex is the immutable coordinate to id mapping. Ids are ranks in
// (lat, lon) order.
type NodeIndex struct {
	coords []Coord
	ids    map[Coord]uint32
}

// AggregateNodes merges per-chunk sets and assigns dense ids.
func AggregateNodes(sets []NodeSet) *NodeIndex {
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	coords := make([]Coord, 0, total)
	for _, s := range sets {
		for c := range s {
			coords = append(coords, c)
		}
	}
	slices.SortFunc(coords, compareCoord)
	coords = slices.Compact(coords)
	coords = slices.Clip(coords)

	ids := make(map[Coord]uint32, len(coords))
	for i, c := range coords {
		ids[c] = uint32(i)
	}
	return &NodeIndex{coords: coords, ids: ids}
}

// Len returns the number of nodes.
func (n *NodeIndex) Len() int { return len(n.coords) }

// Coord returns the coordinate of node id.
func (n *NodeIndex) Coord(id uint32) Coord { return n.coords[id] }

// Coords returns all coordinates in id order. The slice must not be modified.
func (n *NodeIndex) Coords() []Coord { return n.coords }

// Lookup returns the id of c.
func (n *NodeIndex) Lookup(c Coord) (uint32, bool) {
	id, ok := n.ids[c]
	return id, ok
}

// LatLon splits the coordinates into the column layout the stores take.
func (n *NodeIndex) LatLon() (lat, lon []float64) {
	lat = make([]float64, len(n.coords))
	lon = make([]float64, len(n.coords))
	for i, c := range n.coords {
		lat[i], lon[i] = c.Lat, c.Lon
	}
	return lat, lon
}
