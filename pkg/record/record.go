// Package record parses the delimited road-segment records produced by the
// extractor: way_id,highway_type,name,ref,lat,lon.
package record

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
)

// Field positions in a record line.
const (
	FieldWayID = iota
	FieldHighway
	FieldName
	FieldRef
	FieldLat
	FieldLon

	// MinFields is the number of fields a record must carry to be usable.
	MinFields
)

// Header is the header line written by the extractor.
var Header = []string{"way_id", "highway_type", "name", "ref", "lat", "lon"}

// Record is one coordinate sample of a way.
type Record struct {
	WayID string
	Lat   float64
	Lon   float64
}

// Parse parses a single line. ok is false when the line has fewer than
// MinFields fields or a coordinate is not a finite number.
func Parse(line []byte) (rec Record, ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, false
	}

	var wayID, latField, lonField []byte
	if bytes.IndexByte(line, '"') >= 0 {
		fields, err := splitQuoted(line)
		if err != nil || len(fields) < MinFields {
			return Record{}, false
		}
		wayID = []byte(fields[FieldWayID])
		latField = []byte(fields[FieldLat])
		lonField = []byte(fields[FieldLon])
	} else {
		var fields [MinFields][]byte
		n := 0
		rest := line
		for n < MinFields {
			i := bytes.IndexByte(rest, ',')
			if i < 0 {
				fields[n] = rest
				n++
				break
			}
			fields[n] = rest[:i]
			rest = rest[i+1:]
			n++
		}
		if n < MinFields {
			return Record{}, false
		}
		wayID = fields[FieldWayID]
		latField = fields[FieldLat]
		lonField = fields[FieldLon]
	}

	lat, ok := parseCoord(latField)
	if !ok {
		return Record{}, false
	}
	lon, ok := parseCoord(lonField)
	if !ok {
		return Record{}, false
	}

	return Record{WayID: string(wayID), Lat: lat, Lon: lon}, true
}

func parseCoord(b []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	// Fold -0 into +0 so both zeros share one identity and one byte pattern.
	if v == 0 {
		v = 0
	}
	return v, true
}

func splitQuoted(line []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}
