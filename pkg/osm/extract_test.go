package osm

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
 <node id="1" lat="1.30" lon="103.80"/>
 <node id="2" lat="1.31" lon="103.81"/>
 <node id="3" lat="5.00" lon="110.00"/>
 <node id="4" lat="1.32" lon="103.82"/>
 <node id="5" lat="1.33" lon="103.83"/>
 <node id="9" lat="1.40" lon="103.90"/>
 <way id="10">
  <nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="4"/><nd ref="5"/>
  <tag k="highway" v="residential"/>
  <tag k="name" v="Jalan Satu, Blok 2"/>
 </way>
 <way id="11">
  <nd ref="1"/><nd ref="9"/>
  <tag k="highway" v="footway"/>
 </way>
 <way id="12">
  <nd ref="5"/><nd ref="6"/><nd ref="1"/>
  <tag k="highway" v="primary"/>
  <tag k="ref" v="PIE"/>
 </way>
</osm>`

func extract(t *testing.T, opts Options) ([][]string, *ExtractStats) {
	t.Helper()
	opts.Format = FormatXML
	var out bytes.Buffer
	stats, err := Extract(context.Background(), strings.NewReader(testXML), &out, opts)
	require.NoError(t, err)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	return rows, stats
}

func TestExtractXML(t *testing.T) {
	rows, stats := extract(t, Options{})

	require.Len(t, rows, 1+5+2)
	assert.Equal(t, []string{"way_id", "highway_type", "name", "ref", "lat", "lon"}, rows[0])
	assert.Equal(t, []string{"10", "residential", "Jalan Satu, Blok 2", "", "1.3", "103.8"}, rows[1])
	assert.Equal(t, []string{"10", "residential", "Jalan Satu, Blok 2", "", "5", "110"}, rows[3])
	assert.Equal(t, []string{"12", "primary", "", "PIE", "1.33", "103.83"}, rows[6])
	assert.Equal(t, []string{"12", "primary", "", "PIE", "1.3", "103.8"}, rows[7])

	assert.Equal(t, 2, stats.Ways)
	assert.Equal(t, 6, stats.ReferencedNodes)
	assert.Equal(t, 5, stats.NodesFound)
	assert.Equal(t, 1, stats.MissingNodes)
	assert.Equal(t, 7, stats.Rows)
}

func TestExtractBBoxSplitsRuns(t *testing.T) {
	box := orb.Bound{Min: orb.Point{103.0, 1.0}, Max: orb.Point{104.0, 2.0}}
	rows, stats := extract(t, Options{BBox: &box})

	var ids []string
	for _, r := range rows[1:] {
		ids = append(ids, r[0])
	}
	assert.Equal(t, []string{"10", "10", "10:1", "10:1", "12", "12"}, ids)
	assert.Equal(t, 1, stats.OutsideBBox)
	assert.Equal(t, 1, stats.SplitRuns)
}

func TestExtractHighwayOverride(t *testing.T) {
	rows, stats := extract(t, Options{Highways: map[string]bool{"footway": true}})

	assert.Equal(t, 1, stats.Ways)
	require.Len(t, rows, 3)
	assert.Equal(t, "11", rows[1][0])
	assert.Equal(t, "1.4", rows[2][4])
}

func TestKeepWay(t *testing.T) {
	tests := []struct {
		name   string
		tags   osm.Tags
		access bool
		want   bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "motorway",
			tags: osm.Tags{{Key: "highway", Value: "motorway"}},
			want: true,
		},
		{
			name: "motorway_link (not in default set)",
			tags: osm.Tags{{Key: "highway", Value: "motorway_link"}},
			want: false,
		},
		{
			name: "footway",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: false,
		},
		{
			name: "private access ignored by default",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			want: true,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			access: true,
			want:   false,
		},
		{
			name: "motor_vehicle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "tertiary"},
				{Key: "motor_vehicle", Value: "no"},
			},
			access: true,
			want:   false,
		},
		{
			name: "area=yes",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "area", Value: "yes"},
			},
			access: true,
			want:   false,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Some Street"}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Options{RespectAccess: tt.access}.keepWay(tt.tags)
			if got != tt.want {
				t.Errorf("keepWay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("/data/malaysia-singapore-brunei-latest.osm.pbf")
	require.NoError(t, err)
	assert.Equal(t, FormatPBF, f)

	f, err = FormatFromPath("map.OSM")
	require.NoError(t, err)
	assert.Equal(t, FormatXML, f)

	_, err = FormatFromPath("roads.csv")
	assert.Error(t, err)
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("1.15, 103.6,1.48,104.1")
	require.NoError(t, err)
	assert.Equal(t, SingaporeBBox, b)

	_, err = ParseBBox("1,2,3")
	assert.Error(t, err)
	_, err = ParseBBox("2,2,1,3")
	assert.Error(t, err)
	_, err = ParseBBox("a,b,c,d")
	assert.Error(t, err)
}
