package graph_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"map_graph/pkg/geo"
	"map_graph/pkg/graph"
)

// testGraph is a triangle plus one isolated node.
func testGraph(t *testing.T) (lat, lon []float64, g *graph.Graph) {
	t.Helper()
	lat = []float64{1.0, 1.1, 1.2, 1.3}
	lon = []float64{103.0, 103.1, 103.2, 103.3}
	w := func(u, v int) float64 { return geo.Haversine(lat[u], lon[u], lat[v], lon[v]) }
	arcs := []graph.Arc{
		{From: 0, To: 1, Weight: w(0, 1)},
		{From: 1, To: 0, Weight: w(1, 0)},
		{From: 1, To: 2, Weight: w(1, 2)},
		{From: 2, To: 1, Weight: w(2, 1)},
		{From: 2, To: 0, Weight: w(2, 0)},
		{From: 0, To: 2, Weight: w(0, 2)},
	}
	return lat, lon, graph.Build(4, arcs)
}

func TestStoresRoundTrip(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()

	manifest, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), manifest.Nodes)
	assert.Equal(t, uint32(6), manifest.Arcs)
	require.Len(t, manifest.Stores, 4)

	s, err := graph.Open(dir, graph.VerifyChecksums())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, g.NumNodes, s.NumNodes)
	assert.Equal(t, g.NumArcs, s.NumArcs)
	assert.Equal(t, g.Offsets, s.Offsets)
	assert.Equal(t, g.Targets, s.Targets)
	assert.Equal(t, g.Weights, s.Weights)
	for i := uint32(0); i < s.NumNodes; i++ {
		assert.Equal(t, lat[i], s.NodeLat(i))
		assert.Equal(t, lon[i], s.NodeLon(i))
	}
}

func TestStoreFileSizes(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	sizes := map[string]int64{
		graph.NodesFile:   16 * 4,
		graph.OffsetsFile: 4 * 5,
		graph.TargetsFile: 4 * 6,
		graph.WeightsFile: 8 * 6,
	}
	for file, want := range sizes {
		info, err := os.Stat(filepath.Join(dir, file))
		require.NoError(t, err)
		assert.Equal(t, want, info.Size(), file)
	}

	// No temp dir left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestNodesStoreLayout(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	buf, err := os.ReadFile(filepath.Join(dir, graph.NodesFile))
	require.NoError(t, err)
	for i := range lat {
		gotLat := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*i:]))
		gotLon := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*i+8:]))
		assert.Equal(t, lat[i], gotLat)
		assert.Equal(t, lon[i], gotLon)
	}

	offsets, err := os.ReadFile(filepath.Join(dir, graph.OffsetsFile))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(offsets[0:]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(offsets[16:]))
}

func TestEmptyGraphStores(t *testing.T) {
	dir := t.TempDir()
	g := graph.Build(0, nil)

	_, err := graph.WriteStores(dir, nil, nil, g)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, graph.OffsetsFile))
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
	for _, file := range []string{graph.NodesFile, graph.TargetsFile, graph.WeightsFile} {
		info, err := os.Stat(filepath.Join(dir, file))
		require.NoError(t, err)
		assert.Zero(t, info.Size(), file)
	}

	s, err := graph.Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Zero(t, s.NumNodes)
	assert.Zero(t, s.NumArcs)
}

func TestOpenMissingManifest(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, graph.ManifestFile)))

	_, err = graph.Open(dir)
	require.Error(t, err)
	assert.Equal(t, graph.ErrIncomplete, errors.Cause(err))

	s, err := graph.Open(dir, graph.AllowMissingManifest())
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.Manifest)
	assert.Equal(t, uint32(4), s.NumNodes)
}

func TestOpenDetectsCorruption(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	// Flip one byte in a weight, keeping the size.
	path := filepath.Join(dir, graph.WeightsFile)
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err = graph.Open(dir, graph.VerifyChecksums())
	assert.Error(t, err)
}

func TestOpenDetectsTruncation(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	path := filepath.Join(dir, graph.TargetsFile)
	require.NoError(t, os.Truncate(path, 8))

	_, err = graph.Open(dir)
	assert.Error(t, err)

	_, err = graph.Open(dir, graph.AllowMissingManifest())
	assert.Error(t, err)
}

func TestWriteStoresRejectsInvalidGraph(t *testing.T) {
	dir := t.TempDir()
	g := &graph.Graph{
		NumNodes: 2,
		NumArcs:  1,
		Offsets:  []uint32{0, 1, 1},
		Targets:  []int32{5},
		Weights:  []float64{1},
	}
	_, err := graph.WriteStores(dir, []float64{0, 0}, []float64{0, 0}, g)
	require.Error(t, err)
	assert.Equal(t, graph.ErrInvalidCSR, errors.Cause(err))

	_, err = graph.WriteStores(dir, []float64{0}, []float64{0, 0}, graph.Build(2, nil))
	assert.Error(t, err)
}

func TestWriteStoresRejectsNonFiniteWeights(t *testing.T) {
	dir := t.TempDir()
	g := graph.Build(2, []graph.Arc{
		{From: 0, To: 1, Weight: math.NaN()},
		{From: 1, To: 0, Weight: math.NaN()},
	})
	_, err := graph.WriteStores(dir, []float64{0, 0}, []float64{0, 1}, g)
	require.Error(t, err)
	assert.Equal(t, graph.ErrInvalidCSR, errors.Cause(err))
	assert.NoFileExists(t, filepath.Join(dir, graph.ManifestFile))
	assert.NoFileExists(t, filepath.Join(dir, graph.WeightsFile))
}

// assertNoTempDirs fails if a .stores-* staging directory was left in dir.
func assertNoTempDirs(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, ".stores-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteStoresIntoRegularFile(t *testing.T) {
	lat, lon, g := testGraph(t)
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := graph.WriteStores(path, lat, lon, g)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestWriteStoresRenameFailureLeavesNoManifest(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	// A non-empty directory in place of the targets store makes its rename
	// fail after the nodes and offsets stores have been moved.
	targets := filepath.Join(dir, graph.TargetsFile)
	require.NoError(t, os.Remove(targets))
	require.NoError(t, os.MkdirAll(filepath.Join(targets, "blocker"), 0o755))

	_, err = graph.WriteStores(dir, lat[:2], lon[:2], graph.Build(2, []graph.Arc{
		{From: 0, To: 1, Weight: 1},
		{From: 1, To: 0, Weight: 1},
	}))
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(dir, graph.ManifestFile))
	assert.NoFileExists(t, filepath.Join(dir, graph.NodesFile))
	assert.NoFileExists(t, filepath.Join(dir, graph.OffsetsFile))
	assertNoTempDirs(t, dir)

	_, err = graph.Open(dir)
	require.Error(t, err)
	assert.Equal(t, graph.ErrIncomplete, errors.Cause(err))
}

func TestWriteStoresReplacesPreviousSet(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	_, err := graph.WriteStores(dir, lat, lon, g)
	require.NoError(t, err)

	_, err = graph.WriteStores(dir, lat[:2], lon[:2], graph.Build(2, []graph.Arc{{From: 0, To: 1, Weight: 1}, {From: 1, To: 0, Weight: 1}}))
	require.NoError(t, err)

	s, err := graph.Open(dir, graph.VerifyChecksums())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint32(2), s.NumNodes)
	assert.Equal(t, uint32(2), s.NumArcs)
}

func TestListingsRoundTrip(t *testing.T) {
	lat, lon, g := testGraph(t)

	var nodes, edges bytes.Buffer
	require.NoError(t, graph.WriteNodeListing(&nodes, lat, lon))
	require.NoError(t, graph.WriteEdgeListing(&edges, g))

	assert.Equal(t, "id lat lon\n0 1 103\n1 1.1 103.1\n2 1.2 103.2\n3 1.3 103.3\n", nodes.String())
	assert.Equal(t, "from to\n0 1\n0 2\n1 0\n1 2\n2 1\n2 0\n", edges.String())

	gotLat, gotLon, err := graph.ReadNodeListing(&nodes)
	require.NoError(t, err)
	assert.Equal(t, lat, gotLat)
	assert.Equal(t, lon, gotLon)

	arcs, skipped, err := graph.ReadEdgeListing(&edges, gotLat, gotLon)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	rebuilt := graph.Build(uint32(len(gotLat)), arcs)
	assert.Equal(t, g.Offsets, rebuilt.Offsets)
	assert.Equal(t, g.Targets, rebuilt.Targets)
	assert.InDeltaSlice(t, g.Weights, rebuilt.Weights, 1e-12)
}

func TestReadEdgeListingSkipsOutOfRange(t *testing.T) {
	lat := []float64{1.0, 1.1}
	lon := []float64{103.0, 103.1}
	in := "from to\n0 1\n1 0\n1 7\n"

	arcs, skipped, err := graph.ReadEdgeListing(bytes.NewBufferString(in), lat, lon)
	require.NoError(t, err)
	assert.Len(t, arcs, 2)
	assert.Equal(t, 1, skipped)
}

func TestReadNodeListingRejectsGaps(t *testing.T) {
	_, _, err := graph.ReadNodeListing(bytes.NewBufferString("id lat lon\n0 1 2\n2 3 4\n"))
	assert.Error(t, err)
}

func TestWriteListingsFiles(t *testing.T) {
	lat, lon, g := testGraph(t)
	dir := t.TempDir()
	require.NoError(t, graph.WriteListings(dir, lat, lon, g))

	buf, err := os.ReadFile(filepath.Join(dir, graph.EdgeListingFile))
	require.NoError(t, err)
	// Header plus one line per arc.
	assert.Equal(t, 7, bytes.Count(buf, []byte("\n")))
	_, err = os.Stat(filepath.Join(dir, graph.NodeListingFile))
	assert.NoError(t, err)
}
