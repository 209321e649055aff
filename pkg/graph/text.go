package graph

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"map_graph/pkg/geo"
)

// Text interchange files written next to the binary stores.
const (
	NodeListingFile = "nodes.txt"
	EdgeListingFile = "edges.txt"

	nodeListingHeader = "id lat lon"
	edgeListingHeader = "from to"
)

// WriteNodeListing writes "id lat lon" lines in ascending id order.
func WriteNodeListing(w io.Writer, lat, lon []float64) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(nodeListingHeader)
	bw.WriteByte('\n')

	var buf []byte
	for i := range lat {
		buf = strconv.AppendInt(buf[:0], int64(i), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, lat[i], 'f', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, lon[i], 'f', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteEdgeListing writes one "from to" line per arc, in CSR order.
func WriteEdgeListing(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(edgeListingHeader)
	bw.WriteByte('\n')

	var buf []byte
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.ArcsFrom(u)
		for e := start; e < end; e++ {
			buf = strconv.AppendUint(buf[:0], uint64(u), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(g.Targets[e]), 10)
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteListings writes both listings into dir, each through a temp file and
// an atomic rename.
func WriteListings(dir string, lat, lon []float64, g *Graph) error {
	if err := writeFileAtomic(filepath.Join(dir, NodeListingFile), func(w io.Writer) error {
		return WriteNodeListing(w, lat, lon)
	}); err != nil {
		return errors.Wrap(err, "write node listing")
	}
	if err := writeFileAtomic(filepath.Join(dir, EdgeListingFile), func(w io.Writer) error {
		return WriteEdgeListing(w, g)
	}); err != nil {
		return errors.Wrap(err, "write edge listing")
	}
	return nil
}

// ReadNodeListing parses a node listing. Ids must be dense and ascending.
func ReadNodeListing(r io.Reader) (lat, lon []float64, err error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if lineNo == 1 {
			continue // header
		}
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			return nil, nil, errors.Errorf("line %d: expected 3 fields, got %d", lineNo, len(parts))
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d: id", lineNo)
		}
		if id != uint64(len(lat)) {
			return nil, nil, errors.Errorf("line %d: id %d out of order, want %d", lineNo, id, len(lat))
		}
		la, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d: lat", lineNo)
		}
		lo, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d: lon", lineNo)
		}
		lat = append(lat, la)
		lon = append(lon, lo)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "scan node listing")
	}
	return lat, lon, nil
}

// ReadEdgeListing parses an edge listing into weighted arcs, one arc per
// line, using the node coordinates for the weights. Lines naming an id
// outside the node range are skipped and counted.
func ReadEdgeListing(r io.Reader, lat, lon []float64) (arcs []Arc, skipped int, err error) {
	numNodes := uint64(len(lat))
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if lineNo == 1 || line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, 0, errors.Errorf("line %d: expected 2 fields, got %d", lineNo, len(parts))
		}
		u, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "line %d: from", lineNo)
		}
		v, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "line %d: to", lineNo)
		}
		if u >= numNodes || v >= numNodes {
			skipped++
			continue
		}
		arcs = append(arcs, Arc{
			From:   uint32(u),
			To:     uint32(v),
			Weight: geo.Haversine(lat[u], lon[u], lat[v], lon[v]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "scan edge listing")
	}
	return arcs, skipped, nil
}

func writeFileAtomic(path string, write func(w io.Writer) error) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
