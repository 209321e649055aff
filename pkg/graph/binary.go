package graph

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Store file names inside an output directory. The routing engine opens the
// first four by these names.
const (
	NodesFile    = "nodes.bin"
	OffsetsFile  = "graph.offset"
	TargetsFile  = "graph.targets"
	WeightsFile  = "graph.weights"
	ManifestFile = "graph.manifest"
)

// StoreInfo describes one finalized store file.
type StoreInfo struct {
	File  string `json:"file"`
	Bytes int64  `json:"bytes"`
	CRC32 uint32 `json:"crc32"`
}

// Manifest is written after all four stores are in place. Its presence marks
// the set as complete and mutually consistent.
type Manifest struct {
	Nodes  uint32      `json:"nodes"`
	Arcs   uint32      `json:"arcs"`
	Stores []StoreInfo `json:"stores"`
}

// Store returns the entry for file, if present.
func (m *Manifest) Store(file string) (StoreInfo, bool) {
	for _, s := range m.Stores {
		if s.File == file {
			return s, true
		}
	}
	return StoreInfo{}, false
}

// WriteStores serializes node coordinates and g into dir. All stores are
// written into a temporary directory first and only renamed into place once
// every one of them has been written and synced. Any existing manifest is
// removed before the renames and rewritten last, so an interrupted run never
// leaves a manifest next to a mixed set of stores.
func WriteStores(dir string, lat, lon []float64, g *Graph) (*Manifest, error) {
	if err := checkByteOrder(binary.NativeEndian); err != nil {
		return nil, err
	}
	if len(lat) != len(lon) {
		return nil, errors.Errorf("lat/lon length mismatch: %d != %d", len(lat), len(lon))
	}
	if uint32(len(lat)) != g.NumNodes {
		return nil, errors.Errorf("node coordinates %d != NumNodes %d", len(lat), g.NumNodes)
	}
	if err := validateCSR(g.Offsets, g.Targets, g.NumNodes); err != nil {
		return nil, err
	}
	if len(g.Weights) != len(g.Targets) {
		return nil, errors.Wrapf(ErrInvalidCSR, "weights length %d != targets length %d", len(g.Weights), len(g.Targets))
	}
	if err := validateWeights(g.Weights); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}
	tmpDir, err := os.MkdirTemp(dir, ".stores-")
	if err != nil {
		return nil, errors.Wrap(err, "create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	writers := []struct {
		file  string
		write func(w io.Writer) error
	}{
		{NodesFile, func(w io.Writer) error { return writeNodeCoords(w, lat, lon) }},
		{OffsetsFile, func(w io.Writer) error { return writeUint32Slice(w, g.Offsets) }},
		{TargetsFile, func(w io.Writer) error { return writeInt32Slice(w, g.Targets) }},
		{WeightsFile, func(w io.Writer) error { return writeFloat64Slice(w, g.Weights) }},
	}

	manifest := &Manifest{Nodes: g.NumNodes, Arcs: g.NumArcs}
	for _, sw := range writers {
		info, err := writeStoreFile(filepath.Join(tmpDir, sw.file), sw.write)
		if err != nil {
			return nil, errors.Wrapf(err, "write %s", sw.file)
		}
		info.File = sw.file
		manifest.Stores = append(manifest.Stores, info)
	}

	manifestPath := filepath.Join(dir, ManifestFile)
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "remove stale manifest")
	}

	var renamed []string
	for _, sw := range writers {
		dst := filepath.Join(dir, sw.file)
		if err := os.Rename(filepath.Join(tmpDir, sw.file), dst); err != nil {
			result := multierror.Append(nil, errors.Wrapf(err, "rename %s", sw.file))
			for _, done := range renamed {
				if rmErr := os.Remove(done); rmErr != nil {
					result = multierror.Append(result, rmErr)
				}
			}
			return nil, result.ErrorOrNil()
		}
		renamed = append(renamed, dst)
	}

	if err := writeManifest(manifestPath, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// writeStoreFile streams one store through a CRC32 writer and syncs it.
func writeStoreFile(path string, write func(w io.Writer) error) (StoreInfo, error) {
	f, err := os.Create(path)
	if err != nil {
		return StoreInfo{}, err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	cw := &crc32Writer{w: bw, hash: crc32.NewIEEE()}
	if err := write(cw); err != nil {
		return StoreInfo{}, err
	}
	if err := bw.Flush(); err != nil {
		return StoreInfo{}, err
	}
	if err := f.Sync(); err != nil {
		return StoreInfo{}, err
	}
	if err := f.Close(); err != nil {
		return StoreInfo{}, err
	}
	return StoreInfo{Bytes: cw.n, CRC32: cw.hash.Sum32()}, nil
}

func writeManifest(path string, m *Manifest) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(buf, '\n'), 0o644); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "write manifest")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename manifest")
	}
	return nil
}

// ReadManifest loads the manifest from dir.
func ReadManifest(dir string) (*Manifest, error) {
	buf, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrIncomplete, "no %s in %s", ManifestFile, dir)
		}
		return nil, errors.Wrap(err, "read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	return &m, nil
}

// ErrInvalidCSR is returned when offsets, targets and weights disagree.
var ErrInvalidCSR = errors.New("invalid CSR")

// ErrIncomplete is returned when a store set has no manifest.
var ErrIncomplete = errors.New("incomplete store set")

// ErrByteOrder is returned on hosts that are not little-endian. The stores
// are written and mapped as raw host-order arrays.
var ErrByteOrder = errors.New("graph stores require a little-endian host")

func checkByteOrder(order binary.ByteOrder) error {
	if order.Uint16([]byte{1, 0}) != 1 {
		return errors.Wrapf(ErrByteOrder, "host byte order is %s", order)
	}
	return nil
}

// validateCSR checks CSR invariants.
func validateCSR(offsets []uint32, targets []int32, numNodes uint32) error {
	if uint32(len(offsets)) != numNodes+1 {
		return errors.Wrapf(ErrInvalidCSR, "offsets length %d != NumNodes+1 %d", len(offsets), numNodes+1)
	}
	if offsets[0] != 0 {
		return errors.Wrapf(ErrInvalidCSR, "offsets[0]=%d, want 0", offsets[0])
	}
	numArcs := offsets[numNodes]
	if uint32(len(targets)) != numArcs {
		return errors.Wrapf(ErrInvalidCSR, "targets length %d != offsets[NumNodes] %d", len(targets), numArcs)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if offsets[i] < offsets[i-1] {
			return errors.Wrapf(ErrInvalidCSR, "offsets not monotonic at %d: %d < %d", i, offsets[i], offsets[i-1])
		}
	}
	for i, t := range targets {
		if t < 0 || uint32(t) >= numNodes {
			return errors.Wrapf(ErrInvalidCSR, "targets[%d]=%d outside [0, %d)", i, t, numNodes)
		}
	}
	return nil
}

// validateWeights checks that every weight is finite and non-negative.
func validateWeights(weights []float64) error {
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return errors.Wrapf(ErrInvalidCSR, "weights[%d]=%v", i, w)
		}
	}
	return nil
}

// writeNodeCoords writes interleaved little-endian (lat, lon) records.
func writeNodeCoords(w io.Writer, lat, lon []float64) error {
	var rec [16]byte
	for i := range lat {
		binary.LittleEndian.PutUint64(rec[0:8], math.Float64bits(lat[i]))
		binary.LittleEndian.PutUint64(rec[8:16], math.Float64bits(lon[i]))
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice. They write host byte order;
// WriteStores refuses to run unless that is little-endian.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

// CRC32 wrapping writer.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
	n    int64
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
