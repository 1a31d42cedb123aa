package core

import (
	"math"
	"sort"
)

// allocate splits total into integer parts proportional to weights using
// largest-remainder rounding. Parts always sum to total. Remainder units go
// to the largest fractional parts first, and ties keep weight order, so the
// result never depends on an RNG. Non-positive or non-finite weights count
// as zero; when every weight is zero the split is uniform.
func allocate(total int, weights []float64) []int {
	out := make([]int, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}

	clean := make([]float64, len(weights))
	sum := 0.0
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			clean[i] = w
			sum += w
		}
	}
	if sum <= 0 {
		for i := range clean {
			clean[i] = 1
		}
		sum = float64(len(clean))
	}

	type part struct {
		index int
		frac  float64
	}
	parts := make([]part, len(clean))
	assigned := 0
	for i, w := range clean {
		quota := float64(total) * w / sum
		whole := math.Floor(quota)
		out[i] = int(whole)
		assigned += out[i]
		parts[i] = part{index: i, frac: quota - whole}
	}

	// Floating error can push the floors one past total.
	for assigned > total {
		for i := len(out) - 1; i >= 0 && assigned > total; i-- {
			if out[i] > 0 {
				out[i]--
				assigned--
			}
		}
	}

	sort.SliceStable(parts, func(a, b int) bool { return parts[a].frac > parts[b].frac })
	for k := 0; assigned < total; k++ {
		p := parts[k%len(parts)]
		if clean[p.index] == 0 {
			continue
		}
		out[p.index]++
		assigned++
	}
	return out
}
