package clustering

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Silhouette is the mean silhouette coefficient of labels over a precomputed
// distance matrix. Every distinct label, -1 included, counts as a cluster.
// Members of singleton clusters score 0.
func Silhouette(dist *mat.Dense, labels []int) (float64, error) {
	n, m := dist.Dims()
	if n != m || n != len(labels) {
		return 0, fmt.Errorf("%w: %dx%d distances for %d labels", ErrDimensionMismatch, n, m, len(labels))
	}

	index := make(map[int]int)
	for _, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = len(index)
		}
	}
	k := len(index)
	if k < 2 || k > n-1 {
		return 0, fmt.Errorf("%w: silhouette needs 2..%d clusters, got %d", ErrDegenerate, n-1, k)
	}

	sizes := make([]int, k)
	compact := make([]int, n)
	for i, l := range labels {
		compact[i] = index[l]
		sizes[compact[i]]++
	}

	sums := make([]float64, k)
	total := 0.0
	for i := 0; i < n; i++ {
		own := compact[i]
		if sizes[own] == 1 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		row := dist.RawRowView(i)
		for j, d := range row {
			sums[compact[j]] += d
		}

		a := sums[own] / float64(sizes[own]-1)
		b := -1.0
		for c, s := range sums {
			if c == own {
				continue
			}
			if mean := s / float64(sizes[c]); b < 0 || mean < b {
				b = mean
			}
		}
		den := a
		if b > den {
			den = b
		}
		if den > 0 {
			total += (b - a) / den
		}
	}
	return total / float64(n), nil
}
