package pipeline

import (
	"map_graph/pkg/chunk"
	"map_graph/pkg/record"
)

// Fragment is the part of one way's coordinate stream that fell inside a
// single chunk.
type Fragment struct {
	WayID  string
	Coords []Coord
}

// CollectWays groups the records of r into fragments, one per run of
// consecutive records sharing a way id. Malformed records are dropped
// without closing the current fragment.
func CollectWays(path string, r chunk.Range) ([]Fragment, ScanStats, error) {
	var frags []Fragment
	stats, err := scanRecords(path, r, func(rec record.Record) {
		if n := len(frags); n == 0 || frags[n-1].WayID != rec.WayID {
			frags = append(frags, Fragment{WayID: rec.WayID})
		}
		last := &frags[len(frags)-1]
		last.Coords = append(last.Coords, Coord{Lat: rec.Lat, Lon: rec.Lon})
	})
	if err != nil {
		return nil, stats, err
	}
	return frags, stats, nil
}
