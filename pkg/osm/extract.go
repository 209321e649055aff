// Package osm extracts drivable road geometry from OpenStreetMap data and
// writes it as way_id,highway_type,name,ref,lat,lon records.
package osm

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"map_graph/pkg/record"
)

// Format is the encoding of the OSM input.
type Format int

const (
	FormatPBF Format = iota
	FormatXML
)

// FormatFromPath infers the input format from a file name.
func FormatFromPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(name, ".osm"), strings.HasSuffix(name, ".xml"):
		return FormatXML, nil
	}
	return 0, errors.Errorf("cannot infer OSM format of %q (want .pbf, .osm or .xml)", path)
}

// DefaultHighways lists the highway tag values kept by default.
var DefaultHighways = map[string]bool{
	"motorway":    true,
	"trunk":       true,
	"primary":     true,
	"secondary":   true,
	"tertiary":    true,
	"residential": true,
}

// Options configures Extract.
type Options struct {
	Format Format

	// Highways overrides DefaultHighways when non-nil.
	Highways map[string]bool

	// RespectAccess drops areas and ways closed to motor vehicles.
	RespectAccess bool

	// BBox keeps only coordinates inside the box when set. A way that leaves
	// the box is split into runs named "<id>", "<id>:1", "<id>:2" ...
	BBox *orb.Bound

	Logger *zap.Logger
}

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Ways            int
	ReferencedNodes int
	NodesFound      int
	Rows            int
	MissingNodes    int // way node references without a coordinate
	OutsideBBox     int
	SplitRuns       int // extra runs created by the bbox filter
}

// wayInfo holds the way data collected during pass 1.
type wayInfo struct {
	ID      osm.WayID
	Highway string
	Name    string
	Ref     string
	NodeIDs []osm.NodeID
}

// keepWay reports whether the way belongs in the road network.
func (o Options) keepWay(tags osm.Tags) bool {
	highways := o.Highways
	if highways == nil {
		highways = DefaultHighways
	}
	if !highways[tags.Find("highway")] {
		return false
	}
	if !o.RespectAccess {
		return true
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	return tags.Find("motor_vehicle") != "no"
}

func (o Options) scanner(ctx context.Context, r io.Reader, ways bool) osm.Scanner {
	if o.Format == FormatXML {
		return osmxml.New(ctx, r)
	}
	s := osmpbf.New(ctx, r, runtime.GOMAXPROCS(0))
	s.SkipNodes = ways
	s.SkipWays = !ways
	s.SkipRelations = true
	return s
}

// Extract reads rs twice, first for the ways and then for the coordinates of
// the nodes they reference, and writes one record per located way node to w.
func Extract(ctx context.Context, rs io.ReadSeeker, w io.Writer, opts Options) (*ExtractStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := &ExtractStats{}

	// Pass 1: ways and the node ids they reference.
	referenced := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := opts.scanner(ctx, rs, true)
	for scanner.Scan() {
		way, ok := scanner.Object().(*osm.Way)
		if !ok || !opts.keepWay(way.Tags) || len(way.Nodes) == 0 {
			continue
		}
		nodeIDs := make([]osm.NodeID, len(way.Nodes))
		for i, wn := range way.Nodes {
			nodeIDs[i] = wn.ID
			referenced[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{
			ID:      way.ID,
			Highway: way.Tags.Find("highway"),
			Name:    way.Tags.Find("name"),
			Ref:     way.Tags.Find("ref"),
			NodeIDs: nodeIDs,
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, errors.Wrap(err, "pass 1 (ways)")
	}
	scanner.Close()

	stats.Ways = len(ways)
	stats.ReferencedNodes = len(referenced)
	logger.Info("pass 1 complete", zap.Int("ways", stats.Ways), zap.Int("referencedNodes", stats.ReferencedNodes))

	// Pass 2: coordinates of referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek for pass 2")
	}

	coords := make(map[osm.NodeID]orb.Point, len(referenced))
	scanner = opts.scanner(ctx, rs, false)
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referenced[n.ID]; !needed {
			continue
		}
		coords[n.ID] = n.Point()
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, errors.Wrap(err, "pass 2 (nodes)")
	}
	scanner.Close()

	stats.NodesFound = len(coords)
	logger.Info("pass 2 complete", zap.Int("nodes", stats.NodesFound))

	cw := csv.NewWriter(w)
	if err := cw.Write(record.Header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	row := make([]string, record.MinFields)
	for _, way := range ways {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := strconv.FormatInt(int64(way.ID), 10)
		run, runRows := 0, 0
		for _, id := range way.NodeIDs {
			p, ok := coords[id]
			if !ok {
				stats.MissingNodes++
				continue
			}
			if opts.BBox != nil && !opts.BBox.Contains(p) {
				stats.OutsideBBox++
				if runRows > 0 {
					run++
					runRows = 0
				}
				continue
			}

			row[record.FieldWayID] = base
			if run > 0 {
				row[record.FieldWayID] = base + ":" + strconv.Itoa(run)
				if runRows == 0 {
					stats.SplitRuns++
				}
			}
			row[record.FieldHighway] = way.Highway
			row[record.FieldName] = way.Name
			row[record.FieldRef] = way.Ref
			row[record.FieldLat] = strconv.FormatFloat(p.Lat(), 'f', -1, 64)
			row[record.FieldLon] = strconv.FormatFloat(p.Lon(), 'f', -1, 64)
			if err := cw.Write(row); err != nil {
				return nil, errors.Wrap(err, "write record")
			}
			runRows++
			stats.Rows++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, errors.Wrap(err, "flush records")
	}

	if stats.MissingNodes > 0 {
		logger.Warn("way nodes without coordinates skipped", zap.Int("count", stats.MissingNodes))
	}
	if stats.OutsideBBox > 0 {
		logger.Info("way nodes outside bounding box dropped", zap.Int("count", stats.OutsideBBox), zap.Int("extraRuns", stats.SplitRuns))
	}
	logger.Info("records written", zap.Int("rows", stats.Rows))
	return stats, nil
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.Errorf("bbox %q: want minLat,minLng,maxLat,maxLng", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.Wrapf(err, "bbox %q", s)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, errors.Errorf("bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[1], v[0]}, Max: orb.Point{v[3], v[2]}}, nil
}

// Named regions accepted by the extract command.
var (
	SingaporeBBox = orb.Bound{Min: orb.Point{103.6, 1.15}, Max: orb.Point{104.1, 1.48}}
	KLBBox        = orb.Bound{Min: orb.Point{101.2, 2.75}, Max: orb.Point{102.0, 3.5}}
)
