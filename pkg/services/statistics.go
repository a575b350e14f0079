package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// populationStdDev divides by n, not n-1.
func populationStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return std
}

// quantile uses linear interpolation between closest ranks (Hyndman-Fan type 7),
// so the median of an even count is the midpoint of the two middle values.
// stat.Quantile's LinInterp is type 4 and would return the lower middle value.
// sorted must be ascending.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// pearson returns the correlation of paired samples and false when it is undefined
// (fewer than two pairs or zero variance on either side).
func pearson(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	if populationStdDev(xs) == 0 || populationStdDev(ys) == 0 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	// Clamp rounding drift.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

