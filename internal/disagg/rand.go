package disagg

import (
	"math/rand/v2"
)

// Rand is the randomness the draws consume. *rand.Rand from math/rand/v2
// satisfies it; tests substitute scripted sources.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// RowRand returns the PCG stream for one row. The stream depends only on
// seed and row index, so a seeded run is identical for any worker count.
func RowRand(seed uint64, row int) Rand {
	return rand.New(rand.NewPCG(seed, uint64(row)))
}

// Binomial draws the number of successes in n Bernoulli(p) trials.
// p <= 0 always yields 0 and p >= 1 always yields n.
func Binomial(r Rand, n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	k := 0
	for range n {
		if r.Float64() < p {
			k++
		}
	}
	return k
}

// Multinomial distributes n trials over len(probs) categories using
// sequential conditional binomials. The counts always sum to n, and a
// category with zero probability always gets zero. probs must be
// non-negative with a positive sum.
func Multinomial(r Rand, n int, probs []float64) []int {
	counts := make([]int, len(probs))
	if n <= 0 || len(probs) == 0 {
		return counts
	}

	last := -1
	for i, p := range probs {
		if p > 0 {
			last = i
		}
	}
	if last < 0 {
		return counts
	}

	// suffix[i] is the probability mass of categories i..end.
	suffix := make([]float64, len(probs)+1)
	for i := len(probs) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + max(probs[i], 0)
	}

	remaining := n
	for i := 0; i < last && remaining > 0; i++ {
		if probs[i] <= 0 {
			continue
		}
		c := Binomial(r, remaining, probs[i]/suffix[i])
		counts[i] = c
		remaining -= c
	}
	counts[last] += remaining
	return counts
}

// ArgmaxFirst returns the index of the highest count. Ties go to the lowest
// index. An empty slice returns -1.
func ArgmaxFirst(counts []int) int {
	best := -1
	for i, c := range counts {
		if best < 0 || c > counts[best] {
			best = i
		}
	}
	return best
}

// OneHot returns a length-k vector with a 1 at index i. An out-of-range i
// yields all zeros.
func OneHot(k, i int) []int {
	v := make([]int, k)
	if i >= 0 && i < k {
		v[i] = 1
	}
	return v
}
