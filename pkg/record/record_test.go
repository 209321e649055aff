package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Record
		wantOK bool
	}{
		{
			name:   "plain record",
			line:   "123,residential,Main Street,R1,1.2830,103.8513",
			want:   Record{WayID: "123", Lat: 1.2830, Lon: 103.8513},
			wantOK: true,
		},
		{
			name:   "empty name and ref",
			line:   "7,primary,,,1.5,2.5",
			want:   Record{WayID: "7", Lat: 1.5, Lon: 2.5},
			wantOK: true,
		},
		{
			name:   "CRLF terminated",
			line:   "7,primary,,,1.5,2.5\r\n",
			want:   Record{WayID: "7", Lat: 1.5, Lon: 2.5},
			wantOK: true,
		},
		{
			name:   "quoted name with comma",
			line:   `9,tertiary,"Jalan Besar, North",,1.31,103.86`,
			want:   Record{WayID: "9", Lat: 1.31, Lon: 103.86},
			wantOK: true,
		},
		{
			name:   "extra trailing columns ignored",
			line:   "9,tertiary,a,b,1.31,103.86,extra",
			want:   Record{WayID: "9", Lat: 1.31, Lon: 103.86},
			wantOK: true,
		},
		{
			name:   "padded coordinates",
			line:   "9,tertiary,a,b, 1.31 , 103.86 ",
			want:   Record{WayID: "9", Lat: 1.31, Lon: 103.86},
			wantOK: true,
		},
		{
			name: "only four fields",
			line: "A,residential,1.0,1.0",
		},
		{
			name: "five fields",
			line: "A,residential,x,1.0,1.0",
		},
		{
			name: "empty line",
			line: "   ",
		},
		{
			name: "unparseable latitude",
			line: "A,residential,x,y,abc,1.0",
		},
		{
			name: "unparseable longitude",
			line: "A,residential,x,y,1.0,",
		},
		{
			name: "NaN rejected",
			line: "A,residential,x,y,NaN,1.0",
		},
		{
			name: "Inf rejected",
			line: "A,residential,x,y,1.0,+Inf",
		},
		{
			name: "header line",
			line: "way_id,highway_type,name,ref,lat,lon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse([]byte(tt.line))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseNormalisesNegativeZero(t *testing.T) {
	got, ok := Parse([]byte("A,residential,,,-0.0,-0"))
	assert.True(t, ok)
	assert.False(t, math.Signbit(got.Lat))
	assert.False(t, math.Signbit(got.Lon))
}
