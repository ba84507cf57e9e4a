package clustering

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Strategy assigns one label per row. Labels are 0..k-1; only the density
// strategy emits -1 for noise.
type Strategy interface {
	Fit(ctx context.Context, x *mat.Dense) ([]int, error)
}

type Kind string

const (
	Partitional  Kind = "partitional"
	Density      Kind = "density"
	Hierarchical Kind = "hierarchical"
)

// ParseStrategy accepts the canonical names and the algorithm names
// kmeans, hdbscan and agglomerative.
func ParseStrategy(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "partitional", "kmeans", "k-means":
		return Partitional, nil
	case "density", "hdbscan":
		return Density, nil
	case "hierarchical", "agglomerative", "ward":
		return Hierarchical, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

type Options struct {
	// K is the cluster count for partitional and hierarchical fits.
	K              int
	Seed           uint64
	MinClusterSize int
}

func NewStrategy(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case Partitional:
		return KMeans{K: opts.K, Seed: opts.Seed}, nil
	case Density:
		return HDBSCAN{MinClusterSize: opts.MinClusterSize}, nil
	case Hierarchical:
		return Ward{K: opts.K}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

// Fit runs one strategy over x and checks that every row got a label.
func Fit(ctx context.Context, x *mat.Dense, kind Kind, opts Options) ([]int, error) {
	strategy, err := NewStrategy(kind, opts)
	if err != nil {
		return nil, err
	}
	labels, err := strategy.Fit(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("%s fit failed: %w", kind, err)
	}
	if n, _ := x.Dims(); len(labels) != n {
		return nil, fmt.Errorf("%w: %s produced %d labels for %d rows", ErrDimensionMismatch, kind, len(labels), n)
	}
	return labels, nil
}
