package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeBytesUniform(t *testing.T) {
	data := make([]byte, 0, 256*40)
	for r := 0; r < 40; r++ {
		for b := 0; b < 256; b++ {
			data = append(data, byte(b))
		}
	}

	s := AnalyzeBytes(data, 16)
	assert.Equal(t, len(data), s.Count)
	assert.InDelta(t, 127.5, s.Mean, 1e-9)
	assert.InDelta(t, 127.5, s.Median, 1e-9)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 255.0, s.Max)
	assert.InDelta(t, math.Sqrt((256*256-1)/12.0), s.StdDev, 0.01)
	assert.True(t, s.Uniform)
	assert.Equal(t, "UNIFORM", s.Verdict())

	require.Len(t, s.Histogram, 16)
	for _, bin := range s.Histogram {
		assert.Equal(t, 16*40, bin.Count)
		assert.InDelta(t, 6.25, bin.Percent, 1e-9)
	}
	assert.Equal(t, 0.0, s.Histogram[0].Low)
	assert.Equal(t, 16.0, s.Histogram[0].High)
}

func TestAnalyzeBytesSkewed(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(192 + i%10)
	}
	s := AnalyzeBytes(data, 16)
	assert.False(t, s.Uniform)
	assert.Equal(t, "NON-UNIFORM", s.Verdict())
	assert.Equal(t, 1000, s.Histogram[12].Count)
}

func TestAnalyzeUnit(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = (float64(i) + 0.5) / 1000
	}
	s := AnalyzeUnit(values, 10)
	assert.InDelta(t, 0.5, s.Mean, 1e-9)
	assert.InDelta(t, 0.5, s.Median, 1e-9)
	assert.InDelta(t, 1/math.Sqrt(12), s.StdDev, 0.01)
	assert.True(t, s.Uniform)

	for _, b := range s.Histogram {
		assert.Equal(t, 100, b.Count)
	}

	// the upper bound belongs to the last bin
	edge := AnalyzeUnit([]float64{1.0}, 4)
	assert.Equal(t, 1, edge.Histogram[3].Count)
}

func TestAnalyzeEmptyAndSingle(t *testing.T) {
	s := AnalyzeUnit(nil, 0)
	assert.Zero(t, s.Count)
	assert.Len(t, s.Histogram, DefaultBins)
	assert.Equal(t, "NOT ENOUGH DATA", s.Verdict())

	s = AnalyzeUnit([]float64{0.3}, 4)
	assert.Equal(t, 0.3, s.Median)
	assert.Zero(t, s.StdDev)
	assert.False(t, s.Uniform)
}

func TestRender(t *testing.T) {
	s := AnalyzeBytes([]byte{0, 64, 128, 255}, 4)
	out := Render(s, "Raw Byte Value Statistics")
	assert.Contains(t, strings.ToUpper(out), "RAW BYTE VALUE STATISTICS")
	assert.Contains(t, out, "Total Samples")
	assert.Contains(t, out, "0- 63")
	assert.Contains(t, out, "█")
	assert.Contains(t, out, "Verdict:")

	u := Render(AnalyzeUnit([]float64{0.1, 0.9}, 2), "Values")
	assert.Contains(t, u, "0.000-0.500")
}
