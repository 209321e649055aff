// Package spatial indexes graph nodes by location.
package spatial

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"map_graph/pkg/geo"
)

// nearestCandidates is how many nodes Nearest re-ranks by haversine
// distance after the planar search.
const nearestCandidates = 8

// Locator gives node coordinates by id.
type Locator interface {
	NodeLat(i uint32) float64
	NodeLon(i uint32) float64
}

// Index is an R-tree over node points, keyed [lon, lat]. It is read-only
// after New.
type Index struct {
	tr rtree.RTreeG[uint32]
	n  int
}

// New indexes nodes 0..n-1.
func New(nodes Locator, n uint32) *Index {
	idx := &Index{n: int(n)}
	for i := uint32(0); i < n; i++ {
		p := [2]float64{nodes.NodeLon(i), nodes.NodeLat(i)}
		idx.tr.Insert(p, p, i)
	}
	return idx
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int { return idx.n }

// InBounds returns up to limit node ids inside b, in ascending id order.
// A limit <= 0 means no limit.
func (idx *Index) InBounds(b orb.Bound, limit int) []uint32 {
	var ids []uint32
	idx.tr.Search([2]float64(b.Min), [2]float64(b.Max), func(_, _ [2]float64, id uint32) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// CountInBounds returns the number of nodes inside b.
func (idx *Index) CountInBounds(b orb.Bound) int {
	n := 0
	idx.tr.Search([2]float64(b.Min), [2]float64(b.Max), func(_, _ [2]float64, _ uint32) bool {
		n++
		return true
	})
	return n
}

// Nearest returns the node closest to p and its distance in kilometers.
func (idx *Index) Nearest(p orb.Point) (id uint32, km float64, ok bool) {
	if idx.n == 0 {
		return 0, 0, false
	}

	// Equirectangular distance to the nearest point of each box. It only
	// orders candidates; the final pick uses haversine.
	boxDist := func(min, max [2]float64, _ uint32, _ bool) float64 {
		lon := clamp(p.Lon(), min[0], max[0])
		lat := clamp(p.Lat(), min[1], max[1])
		return geo.EquirectangularDist(p.Lat(), p.Lon(), lat, lon)
	}

	km = math.Inf(1)
	seen := 0
	idx.tr.Nearby(boxDist, func(min, _ [2]float64, cand uint32, _ float64) bool {
		d := geo.Haversine(p.Lat(), p.Lon(), min[1], min[0])
		if d < km || (d == km && cand < id) {
			id, km = cand, d
		}
		seen++
		return seen < nearestCandidates
	})
	return id, km, true
}

// Bounds returns the extent of all nodes.
func (idx *Index) Bounds() (orb.Bound, bool) {
	if idx.n == 0 {
		return orb.Bound{}, false
	}
	min, max := idx.tr.Bounds()
	return orb.Bound{Min: orb.Point(min), Max: orb.Point(max)}, true
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
