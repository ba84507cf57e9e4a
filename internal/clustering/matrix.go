// Package clustering groups L2-normalised document embeddings into topical
// clusters and picks representative members for each cluster.
package clustering

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FromRows copies equally sized rows into an n x d matrix.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyInput
	}
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), dim, data), nil
}

// CosineDistances returns the symmetric n x n matrix of 1 - cos(a, b).
// Pairs involving a zero vector are at distance 1; the diagonal is 0.
func CosineDistances(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = floats.Norm(x.RawRowView(i), 2)
	}

	var gram mat.Dense
	gram.Mul(x, x.T())
	for i := 0; i < n; i++ {
		row := gram.RawRowView(i)
		for j := range row {
			if i == j {
				row[j] = 0
				continue
			}
			den := norms[i] * norms[j]
			if den == 0 {
				row[j] = 1
				continue
			}
			d := 1 - row[j]/den
			if d < 0 {
				d = 0
			}
			row[j] = d
		}
	}
	return &gram
}

// Centroid is the arithmetic mean of the given rows.
func Centroid(x *mat.Dense, members []int) []float64 {
	_, dim := x.Dims()
	c := make([]float64, dim)
	if len(members) == 0 {
		return c
	}
	for _, idx := range members {
		floats.Add(c, x.RawRowView(idx))
	}
	floats.Scale(1/float64(len(members)), c)
	return c
}

func cosineDistance(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// MeanSquaredError averages, over non-noise clusters, the mean squared
// Euclidean distance from members to their centroid. ok is false when there
// is no cluster at all.
func MeanSquaredError(x *mat.Dense, labels []int) (mse float64, ok bool) {
	ids := DistinctLabels(labels)
	if len(ids) == 0 {
		return 0, false
	}
	total := 0.0
	for _, cid := range ids {
		members := Members(labels, cid)
		centroid := Centroid(x, members)
		sum := 0.0
		for _, idx := range members {
			sum += sqDist(x.RawRowView(idx), centroid)
		}
		total += sum / float64(len(members))
	}
	return total / float64(len(ids)), true
}
