package core

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateLargestRemainder(t *testing.T) {
	cases := []struct {
		name    string
		total   int
		weights []float64
		want    []int
	}{
		{"even split with tie", 10, []float64{1, 1, 1}, []int{4, 3, 3}},
		{"largest fractions first", 7, []float64{0.5, 0.25, 0.25}, []int{3, 2, 2}},
		{"zero weights split uniformly", 5, []float64{0, 0}, []int{3, 2}},
		{"zero weight never receives remainder", 3, []float64{0, 1, 0}, []int{0, 3, 0}},
		{"zero total", 0, []float64{1, 2}, []int{0, 0}},
		{"percentages", 24, []float64{70, 30}, []int{17, 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, allocate(tc.total, tc.weights))
		})
	}
}

func TestAllocateAlwaysSumsToTotal(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for trial := 0; trial < 500; trial++ {
		n := 1 + rng.IntN(12)
		weights := make([]float64, n)
		for i := range weights {
			if rng.IntN(5) == 0 {
				continue
			}
			weights[i] = rng.Float64() * 100
		}
		total := rng.IntN(100000)

		parts := allocate(total, weights)
		sum := 0
		for i, p := range parts {
			assert.GreaterOrEqual(t, p, 0, "trial %d part %d negative", trial, i)
			sum += p
		}
		assert.Equal(t, total, sum, "trial %d weights %v", trial, weights)
	}
}

func TestAllocateIsDeterministic(t *testing.T) {
	weights := []float64{0.1, 0.2, 0.3, 0.4}
	first := allocate(997, weights)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, allocate(997, weights))
	}
}
