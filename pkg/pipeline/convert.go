package pipeline

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"map_graph/pkg/graph"
)

// ConvertListings rebuilds the binary stores in outDir from the nodes.txt
// and edges.txt listings in inDir. Each edge line becomes one arc; weights
// are recomputed from the node coordinates.
func ConvertListings(inDir, outDir string, logger *zap.Logger) (*graph.Manifest, error) {
	nf, err := os.Open(filepath.Join(inDir, graph.NodeListingFile))
	if err != nil {
		return nil, errors.Wrap(err, "open node listing")
	}
	defer nf.Close()
	lat, lon, err := graph.ReadNodeListing(nf)
	if err != nil {
		return nil, errors.Wrap(err, "read node listing")
	}

	ef, err := os.Open(filepath.Join(inDir, graph.EdgeListingFile))
	if err != nil {
		return nil, errors.Wrap(err, "open edge listing")
	}
	defer ef.Close()
	arcs, skipped, err := graph.ReadEdgeListing(ef, lat, lon)
	if err != nil {
		return nil, errors.Wrap(err, "read edge listing")
	}
	if skipped > 0 {
		logger.Warn("edges with unknown node ids skipped", zap.Int("skipped", skipped))
	}

	g := graph.Build(uint32(len(lat)), arcs)
	manifest, err := graph.WriteStores(outDir, lat, lon, g)
	if err != nil {
		return nil, errors.Wrap(err, "write stores")
	}
	logger.Info("listings converted",
		zap.Uint32("nodes", g.NumNodes),
		zap.Uint32("arcs", g.NumArcs),
		zap.String("dir", outDir))
	return manifest, nil
}
