package chunk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput(lines int) []byte {
	var b strings.Builder
	b.WriteString("way_id,highway_type,name,ref,lat,lon\n")
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "%d,residential,Street %d,,1.%04d,103.%04d\n", i/3, i, i, i)
	}
	return []byte(b.String())
}

// checkRanges asserts the structural guarantees every plan must satisfy.
func checkRanges(t *testing.T, data []byte, ranges []Range, workers int, headerEnd int64) {
	t.Helper()
	require.Len(t, ranges, workers)
	assert.Equal(t, headerEnd, ranges[0].Start, "first range must start after the header")
	assert.Equal(t, int64(len(data)), ranges[len(ranges)-1].End, "last range must end at EOF")
	for i, r := range ranges {
		assert.Equal(t, i, r.Index)
		assert.LessOrEqual(t, r.Start, r.End)
		if i > 0 {
			assert.Equal(t, ranges[i-1].End, r.Start, "ranges must be contiguous")
		}
		if r.Start > 0 && r.Start < int64(len(data)) {
			assert.Equal(t, byte('\n'), data[r.Start-1], "range %d starts mid-line", i)
		}
	}
}

func TestPlan(t *testing.T) {
	data := sampleInput(100)
	headerEnd := int64(bytes.IndexByte(data, '\n') + 1)

	for _, workers := range []int{1, 2, 3, 7, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ranges, err := Plan(bytes.NewReader(data), int64(len(data)), workers, true)
			require.NoError(t, err)
			checkRanges(t, data, ranges, workers, headerEnd)
		})
	}
}

func TestPlanWithoutHeader(t *testing.T) {
	data := []byte("a,b,c,d,1,1\na,b,c,d,2,2\na,b,c,d,3,3\n")
	ranges, err := Plan(bytes.NewReader(data), int64(len(data)), 2, false)
	require.NoError(t, err)
	checkRanges(t, data, ranges, 2, 0)
}

func TestPlanMoreWorkersThanLines(t *testing.T) {
	data := []byte("header\nx,1\ny,2\n")
	ranges, err := Plan(bytes.NewReader(data), int64(len(data)), 10, true)
	require.NoError(t, err)
	checkRanges(t, data, ranges, 10, 7)

	var total int64
	for _, r := range ranges {
		total += r.Len()
	}
	assert.Equal(t, int64(len(data))-7, total)
}

func TestPlanNoTrailingNewline(t *testing.T) {
	data := []byte("header\nA,r,,,1,1\nA,r,,,2,2\nB,r,,,3,3")
	ranges, err := Plan(bytes.NewReader(data), int64(len(data)), 3, true)
	require.NoError(t, err)
	checkRanges(t, data, ranges, 3, 7)
}

func TestPlanEmpty(t *testing.T) {
	ranges, err := Plan(bytes.NewReader(nil), 0, 4, true)
	require.NoError(t, err)
	require.Len(t, ranges, 4)
	for _, r := range ranges {
		assert.Zero(t, r.Len())
	}
}

func TestPlanHeaderOnly(t *testing.T) {
	data := []byte("way_id,highway_type,name,ref,lat,lon\n")
	ranges, err := Plan(bytes.NewReader(data), int64(len(data)), 3, true)
	require.NoError(t, err)
	for _, r := range ranges {
		assert.Zero(t, r.Len())
	}
}

func TestPlanZeroWorkers(t *testing.T) {
	data := sampleInput(5)
	ranges, err := Plan(bytes.NewReader(data), int64(len(data)), 0, true)
	require.NoError(t, err)
	assert.Len(t, ranges, 1)
}

func TestScanCoversEveryLineOnce(t *testing.T) {
	data := sampleInput(250)
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	want := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")[1:]

	for _, workers := range []int{1, 4, 9} {
		ranges, err := Plan(bytes.NewReader(data), int64(len(data)), workers, true)
		require.NoError(t, err)

		var got []string
		for _, r := range ranges {
			require.NoError(t, Scan(path, r, func(line []byte) {
				got = append(got, string(line))
			}))
		}
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestScanMissingFile(t *testing.T) {
	err := Scan(filepath.Join(t.TempDir(), "missing.csv"), Range{Start: 0, End: 10}, func([]byte) {})
	assert.Error(t, err)
}
