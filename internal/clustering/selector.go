package clustering

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// CandidateScore is the silhouette obtained by k-means with K clusters.
type CandidateScore struct {
	K     int     `json:"k"`
	Score float64 `json:"score"`
}

// Selection is the outcome of a k scan. Scores are ordered by ascending K.
type Selection struct {
	BestK  int              `json:"best_k"`
	Scores []CandidateScore `json:"scores"`
}

// SelectK fits seeded k-means for every candidate and returns the k with the
// highest cosine silhouette. Candidates are scanned concurrently; ties resolve
// to the smallest k. Every candidate must satisfy 2 <= k < n.
func SelectK(ctx context.Context, x *mat.Dense, candidates []int, seed uint64) (Selection, error) {
	n, _ := x.Dims()
	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("%w: no candidates", ErrInvalidK)
	}
	ks := slices.Clone(candidates)
	slices.Sort(ks)
	ks = slices.Compact(ks)
	for _, k := range ks {
		if k < 2 || k >= n {
			return Selection{}, fmt.Errorf("%w: candidate k=%d with %d samples", ErrInvalidK, k, n)
		}
	}

	dist := CosineDistances(x)
	scores := make([]CandidateScore, len(ks))
	errs := make([]error, len(ks))

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i, k := range ks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			labels, err := KMeans{K: k, Seed: seed}.Fit(ctx, x)
			if err != nil {
				errs[i] = fmt.Errorf("kmeans k=%d failed: %w", k, err)
				return
			}
			score, err := Silhouette(dist, labels)
			if err != nil {
				errs[i] = fmt.Errorf("silhouette k=%d failed: %w", k, err)
				return
			}
			scores[i] = CandidateScore{K: k, Score: score}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Selection{}, err
		}
	}
	return Selection{BestK: bestCandidate(scores), Scores: scores}, nil
}

// bestCandidate returns the first maximum in slice order.
func bestCandidate(scores []CandidateScore) int {
	best := 0
	for i := range scores {
		if scores[i].Score > scores[best].Score {
			best = i
		}
	}
	return scores[best].K
}
