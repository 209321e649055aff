package graph

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Stores is a read-only, memory-mapped view of a finished store set.
type Stores struct {
	NumNodes uint32
	NumArcs  uint32
	Offsets  []uint32
	Targets  []int32
	Weights  []float64
	Manifest *Manifest

	nodes []float64 // interleaved lat, lon
	maps  []mmap.MMap
}

type openOptions struct {
	allowMissingManifest bool
	verifyChecksums      bool
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// AllowMissingManifest accepts store sets written without a manifest, for
// example by older tooling.
func AllowMissingManifest() OpenOption {
	return func(o *openOptions) { o.allowMissingManifest = true }
}

// VerifyChecksums recomputes the CRC32 of every store against the manifest.
func VerifyChecksums() OpenOption {
	return func(o *openOptions) { o.verifyChecksums = true }
}

// Open maps the four stores in dir and validates them against each other and
// against the manifest.
func Open(dir string, opts ...OpenOption) (_ *Stores, err error) {
	if err := checkByteOrder(binary.NativeEndian); err != nil {
		return nil, err
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		if !o.allowMissingManifest || errors.Cause(err) != ErrIncomplete {
			return nil, err
		}
		manifest = nil
	}

	s := &Stores{Manifest: manifest}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	raw := make(map[string][]byte, 4)
	for _, file := range []string{NodesFile, OffsetsFile, TargetsFile, WeightsFile} {
		b, err := s.mapFile(filepath.Join(dir, file))
		if err != nil {
			return nil, errors.Wrapf(err, "map %s", file)
		}
		if manifest != nil {
			info, ok := manifest.Store(file)
			if !ok {
				return nil, errors.Wrapf(ErrIncomplete, "manifest has no entry for %s", file)
			}
			if info.Bytes != int64(len(b)) {
				return nil, errors.Errorf("%s is %d bytes, manifest says %d", file, len(b), info.Bytes)
			}
			if o.verifyChecksums && crc32.ChecksumIEEE(b) != info.CRC32 {
				return nil, errors.Errorf("%s CRC32 mismatch", file)
			}
		}
		raw[file] = b
	}

	if len(raw[NodesFile])%16 != 0 {
		return nil, errors.Errorf("%s size %d is not a multiple of 16", NodesFile, len(raw[NodesFile]))
	}
	for _, file := range []string{OffsetsFile, TargetsFile} {
		if len(raw[file])%4 != 0 {
			return nil, errors.Errorf("%s size %d is not a multiple of 4", file, len(raw[file]))
		}
	}
	if len(raw[WeightsFile])%8 != 0 {
		return nil, errors.Errorf("%s size %d is not a multiple of 8", WeightsFile, len(raw[WeightsFile]))
	}

	s.nodes = viewFloat64(raw[NodesFile])
	s.Offsets = viewUint32(raw[OffsetsFile])
	s.Targets = viewInt32(raw[TargetsFile])
	s.Weights = viewFloat64(raw[WeightsFile])
	s.NumNodes = uint32(len(s.nodes) / 2)
	s.NumArcs = uint32(len(s.Targets))

	if err := validateCSR(s.Offsets, s.Targets, s.NumNodes); err != nil {
		return nil, err
	}
	if len(s.Weights) != len(s.Targets) {
		return nil, errors.Wrapf(ErrInvalidCSR, "weights length %d != targets length %d", len(s.Weights), len(s.Targets))
	}
	if err := validateWeights(s.Weights); err != nil {
		return nil, err
	}
	if manifest != nil && (manifest.Nodes != s.NumNodes || manifest.Arcs != s.NumArcs) {
		return nil, errors.Errorf("manifest counts (%d nodes, %d arcs) disagree with stores (%d, %d)",
			manifest.Nodes, manifest.Arcs, s.NumNodes, s.NumArcs)
	}
	return s, nil
}

// NodeLat returns the latitude of node i.
func (s *Stores) NodeLat(i uint32) float64 { return s.nodes[2*i] }

// NodeLon returns the longitude of node i.
func (s *Stores) NodeLon(i uint32) float64 { return s.nodes[2*i+1] }

// ArcsFrom returns the range of arc indices for arcs originating from node u.
func (s *Stores) ArcsFrom(u uint32) (start, end uint32) {
	return s.Offsets[u], s.Offsets[u+1]
}

// Graph returns a Graph sharing the mapped arrays. It is invalid after Close.
func (s *Stores) Graph() *Graph {
	return &Graph{
		NumNodes: s.NumNodes,
		NumArcs:  s.NumArcs,
		Offsets:  s.Offsets,
		Targets:  s.Targets,
		Weights:  s.Weights,
	}
}

// Close unmaps every store.
func (s *Stores) Close() error {
	var result *multierror.Error
	for _, m := range s.maps {
		if err := m.Unmap(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.maps = nil
	s.nodes, s.Offsets, s.Targets, s.Weights = nil, nil, nil, nil
	return result.ErrorOrNil()
}

func (s *Stores) mapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Empty stores are legal (no nodes or no arcs) but cannot be mapped.
	if info.Size() == 0 {
		return nil, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	s.maps = append(s.maps, m)
	return m, nil
}

func viewUint32(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func viewInt32(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func viewFloat64(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}
