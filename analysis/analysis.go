// Package analysis checks how uniform a sample of random values is.
package analysis

import (
	"math"
	"sort"
)

// UniformTolerance is the largest relative deviation of mean or standard
// deviation still accepted as uniform.
const UniformTolerance = 0.05

// DefaultBins is the histogram resolution used by the tools.
const DefaultBins = 16

// Bin is one histogram bucket covering [Low, High).
type Bin struct {
	Low     float64
	High    float64
	Count   int
	Percent float64
}

// Summary describes a sample against its theoretical uniform distribution.
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64

	TheoreticalMean   float64
	TheoreticalStdDev float64
	MeanDeviation     float64
	StdDevDeviation   float64
	Uniform           bool

	Histogram []Bin
	// Integer renders bin bounds without decimals (raw bytes).
	Integer bool
}

// AnalyzeBytes summarises raw bytes against a discrete uniform distribution
// over 0..255.
func AnalyzeBytes(data []byte, bins int) Summary {
	values := make([]float64, len(data))
	for i, b := range data {
		values[i] = float64(b)
	}
	s := summarize(values, 0, 256, bins)
	s.TheoreticalMean = 255.0 / 2
	s.TheoreticalStdDev = math.Sqrt((256*256 - 1) / 12.0)
	s.Integer = true
	s.judge()
	return s
}

// AnalyzeUnit summarises values in [0,1] against a continuous uniform
// distribution.
func AnalyzeUnit(values []float64, bins int) Summary {
	s := summarize(values, 0, 1, bins)
	s.TheoreticalMean = 0.5
	s.TheoreticalStdDev = 1 / math.Sqrt(12)
	s.judge()
	return s
}

func summarize(values []float64, lo, hi float64, bins int) Summary {
	if bins <= 0 {
		bins = DefaultBins
	}
	s := Summary{Count: len(values), Histogram: make([]Bin, bins)}
	width := (hi - lo) / float64(bins)
	for i := range s.Histogram {
		s.Histogram[i].Low = lo + float64(i)*width
		s.Histogram[i].High = lo + float64(i+1)*width
	}
	if len(values) == 0 {
		return s
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	if n := len(sorted); n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	var sum float64
	for _, v := range values {
		sum += v
		idx := int((v - lo) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= bins {
			idx = bins - 1
		}
		s.Histogram[idx].Count++
	}
	s.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(values)-1))
	}

	for i := range s.Histogram {
		s.Histogram[i].Percent = float64(s.Histogram[i].Count) / float64(len(values)) * 100
	}
	return s
}

func (s *Summary) judge() {
	if s.Count < 2 {
		return
	}
	s.MeanDeviation = math.Abs(s.Mean-s.TheoreticalMean) / s.TheoreticalMean
	s.StdDevDeviation = math.Abs(s.StdDev-s.TheoreticalStdDev) / s.TheoreticalStdDev
	s.Uniform = s.MeanDeviation <= UniformTolerance && s.StdDevDeviation <= UniformTolerance
}

// Verdict returns a one-line judgement.
func (s Summary) Verdict() string {
	switch {
	case s.Count < 2:
		return "NOT ENOUGH DATA"
	case s.Uniform:
		return "UNIFORM"
	default:
		return "NON-UNIFORM"
	}
}
