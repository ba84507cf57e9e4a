package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxIter = 300
	defaultTol     = 1e-4
)

// KMeans is Lloyd's algorithm with k-means++ seeding. On L2-normalised rows
// squared Euclidean distance is a monotone proxy for cosine distance.
type KMeans struct {
	K       int
	Seed    uint64
	MaxIter int
	Tol     float64
}

func (km KMeans) Fit(ctx context.Context, x *mat.Dense) ([]int, error) {
	n, dim := x.Dims()
	if km.K < 1 || km.K > n {
		return nil, fmt.Errorf("%w: k=%d with %d samples", ErrInvalidK, km.K, n)
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	tol := km.Tol
	if tol <= 0 {
		tol = defaultTol
	}
	tol *= meanVariance(x)

	rng := newRand(km.Seed)
	centers := seedPlusPlus(x, km.K, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	next := make([][]float64, km.K)
	for c := range next {
		next[c] = make([]float64, dim)
	}
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := assignNearest(x, centers, labels)
		shift := recomputeCenters(x, centers, next, labels)
		if !changed || shift <= tol {
			break
		}
	}
	assignNearest(x, centers, labels)
	return labels, nil
}

// seedPlusPlus picks k initial centres, each new one sampled with probability
// proportional to its squared distance from the closest centre chosen so far.
func seedPlusPlus(x *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	n, _ := x.Dims()
	centers := make([][]float64, 0, k)
	first := rng.IntN(n)
	centers = append(centers, clone(x.RawRowView(first)))

	closest := make([]float64, n)
	for i := range closest {
		closest[i] = sqDist(x.RawRowView(i), centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(closest)
		pick := -1
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range closest {
				acc += d
				if acc >= target && d > 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			pick = rng.IntN(n)
		}
		center := clone(x.RawRowView(pick))
		centers = append(centers, center)
		for i := range closest {
			if d := sqDist(x.RawRowView(i), center); d < closest[i] {
				closest[i] = d
			}
		}
	}
	return centers
}

func assignNearest(x *mat.Dense, centers [][]float64, labels []int) bool {
	changed := false
	for i := range labels {
		row := x.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(row, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// recomputeCenters moves every centre to the mean of its members and returns
// the total squared shift. An empty cluster is re-seeded with the point that
// lies farthest from its own centre.
func recomputeCenters(x *mat.Dense, centers, next [][]float64, labels []int) float64 {
	counts := make([]int, len(centers))
	for c := range next {
		for j := range next[c] {
			next[c][j] = 0
		}
	}
	for i, l := range labels {
		floats.Add(next[l], x.RawRowView(i))
		counts[l]++
	}

	for c := range next {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), next[c])
		}
	}

	taken := make(map[int]bool)
	for c := range next {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, l := range labels {
			if taken[i] || counts[l] <= 1 {
				continue
			}
			if d := sqDist(x.RawRowView(i), centers[l]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			copy(next[c], centers[c])
			continue
		}
		taken[far] = true
		counts[labels[far]]--
		copy(next[c], x.RawRowView(far))
	}

	shift := 0.0
	for c := range centers {
		shift += sqDist(centers[c], next[c])
		copy(centers[c], next[c])
	}
	return shift
}

func meanVariance(x *mat.Dense) float64 {
	n, dim := x.Dims()
	if n == 0 {
		return 0
	}
	total := 0.0
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, x)
		mean := floats.Sum(col) / float64(n)
		for _, v := range col {
			total += (v - mean) * (v - mean)
		}
	}
	return total / float64(n*dim)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
