package scoring

import (
	"math"
	"sort"
)

// Quantile returns the q-th quantile using linear interpolation between the
// closest ranks. An empty slice yields 0.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// PercentileBoost maps each value to 0, 1 or 2 points depending on whether it
// reaches the batch's 80th and 90th percentiles. Zero values never earn points.
func PercentileBoost(values []float64) []int {
	out := make([]int, len(values))
	if len(values) == 0 {
		return out
	}
	q80 := Quantile(values, 0.8)
	q90 := Quantile(values, 0.9)
	for i, v := range values {
		if v <= 0 {
			continue
		}
		if v >= q80 {
			out[i]++
		}
		if v >= q90 {
			out[i]++
		}
	}
	return out
}
