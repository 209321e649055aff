// Package places converts road records into a fixed-size place store used
// for name search.
package places

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"map_graph/pkg/record"
)

// Field widths of a stored record.
const (
	MaxNameBytes = 64
	MaxTypeBytes = 16
)

// Place is one named location.
type Place struct {
	Name string
	Type string
	Lat  float64
	Lon  float64
}

// ConvertStats counts the rows Convert looked at.
type ConvertStats struct {
	Rows       int
	Short      int // fewer than six fields
	Unnamed    int
	BadCoords  int
	Duplicates int
}

// Convert reads record CSV (with header) and returns one place per distinct
// display name, case-insensitively, in first-seen order. The display name is
// the name column, falling back to ref.
func Convert(r io.Reader) ([]Place, *ConvertStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	stats := &ConvertStats{}
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, stats, nil
		}
		return nil, nil, errors.Wrap(err, "read header")
	}

	seen := make(map[string]struct{})
	var out []Place
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read row %d", stats.Rows+1)
		}
		stats.Rows++
		if len(row) < record.MinFields {
			stats.Short++
			continue
		}

		display := strings.TrimSpace(row[record.FieldName])
		if display == "" {
			display = strings.TrimSpace(row[record.FieldRef])
		}
		if display == "" {
			stats.Unnamed++
			continue
		}
		key := strings.ToLower(display)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}

		lat, err1 := strconv.ParseFloat(strings.TrimSpace(row[record.FieldLat]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(row[record.FieldLon]), 64)
		if err1 != nil || err2 != nil {
			stats.BadCoords++
			continue
		}

		seen[key] = struct{}{}
		out = append(out, Place{
			Name: truncate(display, MaxNameBytes),
			Type: truncate(row[record.FieldHighway], MaxTypeBytes),
			Lat:  lat,
			Lon:  lon,
		})
	}
	return out, stats, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
