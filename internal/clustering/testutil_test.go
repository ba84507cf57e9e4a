package clustering

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// blobs returns perBlob noisy unit vectors around each axis e0..e(centers-1)
// in dim dimensions, plus the blob index of every row.
func blobs(t *testing.T, centers, perBlob, dim int, noise float64) (*mat.Dense, []int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	var rows [][]float64
	var truth []int
	for c := 0; c < centers; c++ {
		for i := 0; i < perBlob; i++ {
			row := make([]float64, dim)
			row[c] = 1
			for j := range row {
				row[j] += rng.NormFloat64() * noise
			}
			floats.Scale(1/floats.Norm(row, 2), row)
			rows = append(rows, row)
			truth = append(truth, c)
		}
	}
	x, err := FromRows(rows)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return x, truth
}

// samePartition reports whether two labelings group rows identically up to
// a renaming of labels.
func samePartition(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	ab := make(map[int]int)
	ba := make(map[int]int)
	for i := range a {
		if v, ok := ab[a[i]]; ok && v != b[i] {
			return false
		}
		if v, ok := ba[b[i]]; ok && v != a[i] {
			return false
		}
		ab[a[i]] = b[i]
		ba[b[i]] = a[i]
	}
	return true
}
