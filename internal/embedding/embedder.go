// Package embedding turns article text into L2-normalised vectors.
package embedding

import (
	"context"
	"errors"
	"regexp"

	"gonum.org/v1/gonum/floats"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder maps texts to vectors, one per input in input order. Every
// returned vector has unit length, or is all zeros for text with nothing
// left to embed.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Name identifies the model; vectors from different names are not comparable.
	Name() string
}

var digits = regexp.MustCompile(`\p{Nd}+`)

// Preprocess strips digit runs. It is the only normalisation applied
// before embedding.
func Preprocess(text string) string {
	return digits.ReplaceAllString(text, "")
}

// Normalize scales v to unit length in place. Zero vectors stay zero.
func Normalize(v []float64) []float64 {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// batches calls fn over consecutive [start, end) windows of size at most size.
func batches(n, size int, fn func(start, end int) error) error {
	if size <= 0 {
		size = n
	}
	for start := 0; start < n; start += size {
		if err := fn(start, min(start+size, n)); err != nil {
			return err
		}
	}
	return nil
}
