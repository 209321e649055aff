package pipeline

import (
	"map_graph/pkg/geo"
	"map_graph/pkg/graph"
)

// StitchResult is the arc list produced from all ways.
type StitchResult struct {
	Arcs []graph.Arc // discovery order, reciprocal pairs adjacent

	Ways              int
	Accepted          int // coordinate pairs that produced two arcs
	SkippedUnresolved int
	SkippedSelfLoop   int
}

// Stitch walks the per-chunk fragment lists in chunk order, joins fragments
// of the same way that meet at a chunk boundary and turns every consecutive
// coordinate pair into two reciprocal arcs. chunks[k] must hold the
// fragments of chunk k; empty chunks pass the open way through unchanged.
func Stitch(chunks [][]Fragment, nodes *NodeIndex) *StitchResult {
	res := &StitchResult{}

	var (
		curID string
		cur   []Coord
		open  bool
	)
	for _, frags := range chunks {
		for _, f := range frags {
			if open && f.WayID == curID {
				// Force a copy so the fragment's backing array stays untouched.
				cur = append(cur[:len(cur):len(cur)], f.Coords...)
				continue
			}
			if open {
				res.addWay(cur, nodes)
			}
			curID, cur, open = f.WayID, f.Coords, true
		}
	}
	if open {
		res.addWay(cur, nodes)
	}
	return res
}

func (res *StitchResult) addWay(way []Coord, nodes *NodeIndex) {
	res.Ways++
	for i := 0; i+1 < len(way); i++ {
		a, b := way[i], way[i+1]
		u, okA := nodes.Lookup(a)
		v, okB := nodes.Lookup(b)
		if !okA || !okB {
			res.SkippedUnresolved++
			continue
		}
		if u == v {
			res.SkippedSelfLoop++
			continue
		}
		w := geo.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
		res.Arcs = append(res.Arcs,
			graph.Arc{From: u, To: v, Weight: w},
			graph.Arc{From: v, To: u, Weight: w},
		)
		res.Accepted++
	}
}
