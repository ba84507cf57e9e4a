package clustering

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DefaultMinClusterSize is the smallest group the density strategy reports
// as a cluster.
const DefaultMinClusterSize = 5

// HDBSCAN finds density-connected groups over cosine distances. Points that
// never belong to a stable group are labelled -1.
type HDBSCAN struct {
	MinClusterSize int
	// MinSamples sets the neighbourhood used for core distances. Zero means
	// MinClusterSize.
	MinSamples int
}

func (h HDBSCAN) Fit(ctx context.Context, x *mat.Dense) ([]int, error) {
	return h.FitDistances(ctx, CosineDistances(x))
}

// FitDistances clusters a precomputed symmetric distance matrix.
func (h HDBSCAN) FitDistances(ctx context.Context, dist *mat.Dense) ([]int, error) {
	n, m := dist.Dims()
	if n != m {
		return nil, fmt.Errorf("%w: distance matrix is %dx%d", ErrDimensionMismatch, n, m)
	}
	minSize := h.MinClusterSize
	if minSize <= 0 {
		minSize = DefaultMinClusterSize
	}
	if minSize < 2 {
		minSize = 2
	}
	minSamples := h.MinSamples
	if minSamples <= 0 {
		minSamples = minSize
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n < 2 || n < minSize {
		return labels, nil
	}

	core := coreDistances(dist, minSamples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	edges := reachabilityMST(dist, core)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })

	tree := condense(singleLinkage(edges, n), n, minSize)
	owner := tree.selectClusters()

	next := 0
	remap := make(map[int]int)
	for c, o := range owner {
		if o == c {
			remap[c] = next
			next++
		}
	}
	for p, parent := range tree.pointParent {
		if o := owner[parent-n]; o >= 0 {
			labels[p] = remap[o]
		}
	}
	return labels, nil
}

type mstEdge struct {
	a, b   int
	weight float64
}

type linkNode struct {
	left, right int
	dist        float64
	size        int
}

// coreDistances is the distance from each point to its minSamples-th nearest
// neighbour, the point itself counted first.
func coreDistances(dist *mat.Dense, minSamples int) []float64 {
	n, _ := dist.Dims()
	pos := minSamples - 1
	if pos > n-1 {
		pos = n - 1
	}
	core := make([]float64, n)
	row := make([]float64, n)
	for i := range core {
		copy(row, dist.RawRowView(i))
		slices.Sort(row)
		core[i] = row[pos]
	}
	return core
}

// reachabilityMST runs Prim's algorithm over the dense mutual reachability
// graph max(core_a, core_b, d(a, b)).
func reachabilityMST(dist *mat.Dense, core []float64) []mstEdge {
	n := len(core)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	cur := 0
	inTree[cur] = true
	for len(edges) < n-1 {
		row := dist.RawRowView(cur)
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			w := max(row[j], core[cur], core[j])
			if w < best[j] {
				best[j] = w
				from[j] = cur
			}
			if best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		edges = append(edges, mstEdge{a: from[next], b: next, weight: nextW})
		inTree[next] = true
		cur = next
	}
	return edges
}

// singleLinkage turns sorted MST edges into a dendrogram. Node n+i is the
// i-th merge; ids below n are points.
func singleLinkage(edges []mstEdge, n int) []linkNode {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	nodes := make([]linkNode, 0, n-1)
	size := func(id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		id := n + len(nodes)
		nodes = append(nodes, linkNode{left: ra, right: rb, dist: e.weight, size: size(ra) + size(rb)})
		parent[ra] = id
		parent[rb] = id
	}
	return nodes
}

// condensedTree keeps only splits that produce two groups of at least
// minSize points. Cluster labels start at n, the root being n itself, and a
// child cluster always has a larger label than its parent.
type condensedTree struct {
	n           int
	birth       []float64
	stability   []float64
	parent      []int
	children    [][]int
	pointParent []int
}

func condense(nodes []linkNode, n, minSize int) *condensedTree {
	t := &condensedTree{
		n:           n,
		birth:       []float64{0},
		stability:   []float64{0},
		parent:      []int{-1},
		children:    [][]int{nil},
		pointParent: make([]int, n),
	}
	size := func(id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}
	leaves := func(id int) []int {
		var out []int
		stack := []int{id}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top < n {
				out = append(out, top)
				continue
			}
			stack = append(stack, nodes[top-n].right, nodes[top-n].left)
		}
		return out
	}
	fallOut := func(cluster, id int, lambda float64) {
		for _, p := range leaves(id) {
			t.pointParent[p] = cluster
			t.stability[cluster-n] += lambda - t.birth[cluster-n]
		}
	}
	newCluster := func(parentCluster, id int, lambda float64) int {
		label := n + len(t.birth)
		t.birth = append(t.birth, lambda)
		t.stability = append(t.stability, 0)
		t.parent = append(t.parent, parentCluster)
		t.children = append(t.children, nil)
		t.children[parentCluster-n] = append(t.children[parentCluster-n], label)
		t.stability[parentCluster-n] += (lambda - t.birth[parentCluster-n]) * float64(size(id))
		return label
	}

	type frame struct{ node, cluster int }
	stack := []frame{{node: 2*n - 2, cluster: n}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := nodes[f.node-n]
		lambda := lambdaOf(node.dist)
		bigLeft, bigRight := size(node.left) >= minSize, size(node.right) >= minSize
		switch {
		case bigLeft && bigRight:
			left := newCluster(f.cluster, node.left, lambda)
			right := newCluster(f.cluster, node.right, lambda)
			stack = append(stack, frame{node.right, right}, frame{node.left, left})
		case bigLeft:
			fallOut(f.cluster, node.right, lambda)
			stack = append(stack, frame{node.left, f.cluster})
		case bigRight:
			fallOut(f.cluster, node.left, lambda)
			stack = append(stack, frame{node.right, f.cluster})
		default:
			fallOut(f.cluster, node.left, lambda)
			fallOut(f.cluster, node.right, lambda)
		}
	}
	return t
}

// selectClusters applies excess-of-mass selection and returns, for every
// condensed cluster (indexed by label-n), the selected cluster that owns it
// or -1. The root is never selected.
func (t *condensedTree) selectClusters() []int {
	count := len(t.birth)
	selected := make([]bool, count)
	stability := slices.Clone(t.stability)
	for c := count - 1; c >= 1; c-- {
		sub := 0.0
		for _, child := range t.children[c] {
			sub += stability[child-t.n]
		}
		if len(t.children[c]) > 0 && sub > stability[c] {
			stability[c] = sub
			continue
		}
		selected[c] = true
		stack := slices.Clone(t.children[c])
		for len(stack) > 0 {
			d := stack[len(stack)-1] - t.n
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, t.children[d]...)
		}
	}

	owner := make([]int, count)
	owner[0] = -1
	for c := 1; c < count; c++ {
		switch {
		case selected[c]:
			owner[c] = c
		default:
			owner[c] = owner[t.parent[c]-t.n]
		}
	}
	return owner
}

// lambdaOf caps the density of duplicate points so stabilities stay finite.
func lambdaOf(d float64) float64 {
	return 1 / max(d, 1e-12)
}
