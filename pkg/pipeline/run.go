package pipeline

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"map_graph/pkg/chunk"
	"map_graph/pkg/config"
	"map_graph/pkg/graph"
)

// Result summarizes a finished run.
type Result struct {
	Chunks    int
	Nodes     uint32
	Arcs      uint32
	NodeScan  ScanStats
	WayScan   ScanStats
	Stitch    *StitchResult
	Manifest  *graph.Manifest
	OutputDir string
}

type nodeChunk struct {
	set   NodeSet
	stats ScanStats
}

type wayChunk struct {
	frags []Fragment
	stats ScanStats
}

// Run executes the whole pipeline for cfg: plan chunks, collect and number
// nodes, collect and stitch ways, then build and write the stores. Nothing
// is written to cfg.OutputDir unless every phase succeeds. metrics may be nil.
func Run(ctx context.Context, cfg config.Build, logger *zap.Logger, metrics *Metrics) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("input", cfg.Input))
	runStart := time.Now()

	// Plan.
	start := time.Now()
	ranges, size, err := planInput(cfg)
	if err != nil {
		return nil, err
	}
	metrics.observePhase(PhasePlan, time.Since(start))
	logger.Info("chunking done",
		zap.Int("chunks", len(ranges)),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", time.Since(start)))

	// Phase 1: nodes.
	start = time.Now()
	nodeResults, err := MapOrdered(ctx, ranges, cfg.Workers, func(_ context.Context, r chunk.Range) (nodeChunk, error) {
		set, stats, err := CollectNodes(cfg.Input, r)
		return nodeChunk{set: set, stats: stats}, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect nodes")
	}
	res := &Result{Chunks: len(ranges), OutputDir: cfg.OutputDir}
	sets := make([]NodeSet, len(nodeResults))
	for i, nr := range nodeResults {
		sets[i] = nr.set
		res.NodeScan.add(nr.stats)
	}
	nodes := AggregateNodes(sets)
	if err := checkGraphSize(int64(nodes.Len()), 0); err != nil {
		return nil, err
	}
	metrics.observeScan(PhaseNodes, res.NodeScan)
	metrics.observePhase(PhaseNodes, time.Since(start))
	logger.Info("nodes aggregated",
		zap.Int("nodes", nodes.Len()),
		zap.Int64("records", res.NodeScan.Records),
		zap.Int64("skipped", res.NodeScan.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	// Phase 2: ways.
	start = time.Now()
	wayResults, err := MapOrdered(ctx, ranges, cfg.Workers, func(_ context.Context, r chunk.Range) (wayChunk, error) {
		frags, stats, err := CollectWays(cfg.Input, r)
		return wayChunk{frags: frags, stats: stats}, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect ways")
	}
	fragments := make([][]Fragment, len(wayResults))
	for i, wr := range wayResults {
		fragments[i] = wr.frags
		res.WayScan.add(wr.stats)
	}
	res.Stitch = Stitch(fragments, nodes)
	if err := checkGraphSize(int64(nodes.Len()), int64(len(res.Stitch.Arcs))); err != nil {
		return nil, err
	}
	metrics.observeScan(PhaseWays, res.WayScan)
	metrics.observeStitch(res.Stitch)
	metrics.observePhase(PhaseWays, time.Since(start))
	logger.Info("ways stitched",
		zap.Int("ways", res.Stitch.Ways),
		zap.Int("accepted", res.Stitch.Accepted),
		zap.Int("unresolved", res.Stitch.SkippedUnresolved),
		zap.Int("selfLoops", res.Stitch.SkippedSelfLoop),
		zap.Duration("elapsed", time.Since(start)))

	// Build and write.
	start = time.Now()
	g := graph.Build(uint32(nodes.Len()), res.Stitch.Arcs)
	metrics.observePhase(PhaseGraph, time.Since(start))

	start = time.Now()
	lat, lon := nodes.LatLon()
	res.Manifest, err = graph.WriteStores(cfg.OutputDir, lat, lon, g)
	if err != nil {
		return nil, errors.Wrap(err, "write stores")
	}
	if cfg.TextListings {
		if err := graph.WriteListings(cfg.OutputDir, lat, lon, g); err != nil {
			return nil, err
		}
	}
	res.Nodes, res.Arcs = g.NumNodes, g.NumArcs
	metrics.observePhase(PhaseWrite, time.Since(start))
	metrics.setGraph(g.NumNodes, g.NumArcs)
	logger.Info("edges written",
		zap.Uint32("nodes", g.NumNodes),
		zap.Uint32("arcs", g.NumArcs),
		zap.String("dir", cfg.OutputDir),
		zap.Duration("elapsed", time.Since(start)),
		zap.Duration("total", time.Since(runStart)))

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			// The stores are already complete; losing the metrics is not fatal.
			logger.Warn("write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}
	return res, nil
}

// checkGraphSize rejects graphs the stores cannot address: node ids are
// int32 targets and arc counts are uint32 offsets.
func checkGraphSize(nodes, arcs int64) error {
	if nodes > math.MaxInt32 {
		return errors.Errorf("%d nodes exceed the int32 id range", nodes)
	}
	if arcs > math.MaxUint32 {
		return errors.Errorf("%d arcs exceed the uint32 offset range", arcs)
	}
	return nil
}

// planInput splits the input file into cfg.Workers line-aligned ranges. An
// empty file yields empty ranges, a missing one an error.
func planInput(cfg config.Build) ([]chunk.Range, int64, error) {
	f, err := os.Open(cfg.Input)
	if err != nil {
		return nil, 0, errors.Wrap(err, "open input")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.Wrap(err, "stat input")
	}
	if !info.Mode().IsRegular() {
		return nil, 0, errors.Errorf("input %s is not a regular file", cfg.Input)
	}

	ranges, err := chunk.Plan(f, info.Size(), cfg.Workers, cfg.Header)
	if err != nil {
		return nil, 0, errors.Wrap(err, "plan chunks")
	}
	return ranges, info.Size(), nil
}
