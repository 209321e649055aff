package places

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// RecordSize is the on-disk size of one place:
// [u8 name_len][64 name][16 type][f64 lat][f64 lon].
const RecordSize = 1 + MaxNameBytes + MaxTypeBytes + 8 + 8

const headerSize = 4

// ErrTruncated is returned when a store is shorter than its count says.
var ErrTruncated = errors.New("truncated place store")

// Write stores places at path, little-endian, through a temp file and an
// atomic rename.
func Write(path string, places []Place) error {
	if len(places) > math.MaxUint32 {
		return errors.Errorf("%d places exceed the store limit", len(places))
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "create place store")
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(places)))
	bw.Write(hdr[:])

	var rec [RecordSize]byte
	for _, p := range places {
		encode(rec[:], p)
		if _, err := bw.Write(rec[:]); err != nil {
			return errors.Wrap(err, "write place")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush place store")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "sync place store")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close place store")
	}
	return errors.Wrap(os.Rename(tmpPath, path), "rename place store")
}

// Read loads a place store written by Write.
func Read(path string) ([]Place, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read place store")
	}
	if len(buf) < headerSize {
		return nil, errors.Wrapf(ErrTruncated, "%d bytes", len(buf))
	}
	count := int(binary.LittleEndian.Uint32(buf))
	want := headerSize + count*RecordSize
	if len(buf) < want {
		return nil, errors.Wrapf(ErrTruncated, "%d places need %d bytes, have %d", count, want, len(buf))
	}
	if len(buf) > want {
		return nil, errors.Errorf("place store has %d trailing bytes", len(buf)-want)
	}

	places := make([]Place, count)
	for i := range places {
		off := headerSize + i*RecordSize
		places[i] = decode(buf[off : off+RecordSize])
	}
	return places, nil
}

func encode(rec []byte, p Place) {
	clear(rec)
	name := truncate(p.Name, MaxNameBytes)
	rec[0] = byte(len(name))
	copy(rec[1:1+MaxNameBytes], name)
	copy(rec[1+MaxNameBytes:1+MaxNameBytes+MaxTypeBytes], truncate(p.Type, MaxTypeBytes))
	off := 1 + MaxNameBytes + MaxTypeBytes
	binary.LittleEndian.PutUint64(rec[off:], math.Float64bits(p.Lat))
	binary.LittleEndian.PutUint64(rec[off+8:], math.Float64bits(p.Lon))
}

func decode(rec []byte) Place {
	nameLen := min(int(rec[0]), MaxNameBytes)
	typ := string(rec[1+MaxNameBytes : 1+MaxNameBytes+MaxTypeBytes])
	off := 1 + MaxNameBytes + MaxTypeBytes
	return Place{
		Name: string(rec[1 : 1+nameLen]),
		Type: strings.TrimRight(typ, "\x00"),
		Lat:  math.Float64frombits(binary.LittleEndian.Uint64(rec[off:])),
		Lon:  math.Float64frombits(binary.LittleEndian.Uint64(rec[off+8:])),
	}
}
