// Package chunk splits a line-oriented input file into contiguous,
// line-aligned byte ranges that can be scanned independently.
package chunk

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Range is the half-open byte range [Start, End) assigned to one worker.
type Range struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

const probeSize = 64 * 1024

// Plan divides size bytes of r into exactly workers ranges of roughly equal
// length. Every internal boundary is moved forward to just past the next '\n'
// at or after its nominal position, so no range starts or ends mid-line. When
// skipHeader is set the first line is excluded from all ranges.
func Plan(r io.ReaderAt, size int64, workers int, skipHeader bool) ([]Range, error) {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		return nil, errors.Errorf("negative input size %d", size)
	}

	start := int64(0)
	if skipHeader && size > 0 {
		end, err := lineEnd(r, 0, size)
		if err != nil {
			return nil, errors.Wrap(err, "skip header")
		}
		start = end
	}

	step := (size - start) / int64(workers)
	bounds := make([]int64, workers+1)
	bounds[0] = start
	for i := 1; i < workers; i++ {
		nominal := start + int64(i)*step
		if nominal < bounds[i-1] {
			nominal = bounds[i-1]
		}
		end, err := lineEnd(r, nominal, size)
		if err != nil {
			return nil, errors.Wrapf(err, "align boundary %d", i)
		}
		bounds[i] = end
	}
	bounds[workers] = size

	ranges := make([]Range, workers)
	for i := range ranges {
		ranges[i] = Range{Index: i, Start: bounds[i], End: bounds[i+1]}
	}
	return ranges, nil
}

// lineEnd returns the offset just past the first '\n' at or after pos, or
// size when the rest of the input holds no line terminator.
func lineEnd(r io.ReaderAt, pos, size int64) (int64, error) {
	if pos >= size {
		return size, nil
	}
	buf := make([]byte, probeSize)
	for pos < size {
		n, err := r.ReadAt(buf[:min(int64(len(buf)), size-pos)], pos)
		if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
			return pos + int64(i) + 1, nil
		}
		pos += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return size, nil
}
