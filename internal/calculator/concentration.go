package calculator

import (
	"math"
	"sort"
)

// Stats holds the concentration statistics derived from one value vector.
// Valid is false when the vector total is not positive: in that case no
// derived field carries meaning and callers must emit nulls, not zeros.
type Stats struct {
	Valid       bool
	Total       float64
	ActiveCount int
	Shares      []float64
	HHI         float64
	Entropy     float64
	EntropyNorm float64
	Top1Share   float64
	Top10Share  float64
	Top1Index   int
}

// Concentration computes shares, HHI, Shannon entropy (natural log),
// normalized entropy, and top-1/top-10 shares for a vector of non-negative
// values. A total <= 0 yields Valid=false and zeroed fields.
func Concentration(values []float64) Stats {
	total := 0.0
	active := 0
	for _, v := range values {
		total += v
		if v > 0 {
			active++
		}
	}
	if total <= 0 {
		return Stats{ActiveCount: active}
	}

	shares := make([]float64, len(values))
	hhi := 0.0
	entropy := 0.0
	top1 := 0.0
	top1Idx := 0
	for i, v := range values {
		s := v / total
		shares[i] = s
		hhi += s * s
		if s > 0 {
			// zero-share terms contribute 0 by convention, never NaN
			entropy -= s * math.Log(s)
		}
		if s > top1 {
			top1 = s
			top1Idx = i
		}
	}

	// Single active participant has zero dispersion by definition.
	entropyNorm := 0.0
	if active > 1 {
		entropyNorm = entropy / math.Log(float64(active))
	}

	return Stats{
		Valid:       true,
		Total:       total,
		ActiveCount: active,
		Shares:      shares,
		HHI:         hhi,
		Entropy:     entropy,
		EntropyNorm: entropyNorm,
		Top1Share:   top1,
		Top10Share:  topNShare(shares, 10),
		Top1Index:   top1Idx,
	}
}

// NormalizedEntropy divides entropy by ln(n), the maximum entropy of an
// n-way split. Returns nil semantics via ok=false when n <= 1.
func NormalizedEntropy(entropy float64, n int) (float64, bool) {
	if n <= 1 {
		return 0, false
	}
	return entropy / math.Log(float64(n)), true
}

func topNShare(shares []float64, n int) float64 {
	if len(shares) <= n {
		sum := 0.0
		for _, s := range shares {
			sum += s
		}
		return sum
	}
	sorted := make([]float64, len(shares))
	copy(sorted, shares)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	sum := 0.0
	for _, s := range sorted[:n] {
		sum += s
	}
	return sum
}
