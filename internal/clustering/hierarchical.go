package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Ward is agglomerative clustering with Ward linkage on Euclidean distance,
// cut so exactly K clusters remain.
type Ward struct {
	K int
}

type wardMerge struct {
	a, b   int
	height float64
}

func (w Ward) Fit(ctx context.Context, x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	if w.K < 1 || w.K > n {
		return nil, fmt.Errorf("%w: k=%d with %d samples", ErrInvalidK, w.K, n)
	}

	merges, err := wardMerges(ctx, x)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(merges, func(i, j int) bool { return merges[i].height < merges[j].height })

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(v int) int {
		for parent[v] != v {
			parent[v] = parent[parent[v]]
			v = parent[v]
		}
		return v
	}
	for _, m := range merges[:n-w.K] {
		parent[find(m.b)] = find(m.a)
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := range labels {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, nil
}

// wardMerges builds the full dendrogram with the nearest-neighbour chain
// algorithm. Distances are squared Euclidean and updated with the
// Lance-Williams recurrence; slot i always holds the cluster containing
// point i until it is merged away.
func wardMerges(ctx context.Context, x *mat.Dense) ([]wardMerge, error) {
	n, _ := x.Dims()
	d := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := sqDist(x.RawRowView(i), x.RawRowView(j))
			d[i*n+j] = v
			d[j*n+i] = v
		}
	}

	size := make([]float64, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		active[i] = true
	}

	merges := make([]wardMerge, 0, n-1)
	chain := make([]int, 0, n)
	for remaining := n; remaining > 1; remaining-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(chain) == 0 {
			for i := range active {
				if active[i] {
					chain = append(chain, i)
					break
				}
			}
		}
		for {
			a := chain[len(chain)-1]
			prev, best := -1, math.Inf(1)
			if len(chain) >= 2 {
				prev = chain[len(chain)-2]
				best = d[a*n+prev]
			}
			nearest := prev
			for j := 0; j < n; j++ {
				if !active[j] || j == a {
					continue
				}
				if d[a*n+j] < best {
					nearest, best = j, d[a*n+j]
				}
			}
			if nearest == prev {
				break
			}
			chain = append(chain, nearest)
		}

		a, b := chain[len(chain)-1], chain[len(chain)-2]
		chain = chain[:len(chain)-2]
		if a > b {
			a, b = b, a
		}
		merges = append(merges, wardMerge{a: a, b: b, height: d[a*n+b]})

		na, nb := size[a], size[b]
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			nk := size[k]
			v := ((na+nk)*d[a*n+k] + (nb+nk)*d[b*n+k] - nk*d[a*n+b]) / (na + nb + nk)
			d[a*n+k] = v
			d[k*n+a] = v
		}
		size[a] = na + nb
		active[b] = false
	}
	return merges, nil
}
