package chunk

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// maxLineBytes bounds a single record line.
const maxLineBytes = 1 << 20

// Scan opens path and calls fn for every line inside r, in file order. The
// line slice is only valid for the duration of the call. Scan never reads
// past r.End.
func Scan(path string, r Range, fn func(line []byte)) error {
	if r.Len() <= 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open chunk %d", r.Index)
	}
	defer f.Close()

	return ScanReader(io.NewSectionReader(f, r.Start, r.Len()), fn)
}

// ScanReader calls fn for every line of rd. A final line without a
// terminator is still delivered.
func ScanReader(rd io.Reader, fn func(line []byte)) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return errors.Wrap(sc.Err(), "scan lines")
}
