package clustering

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Assignment is a copy of a document tagged with its cluster.
type Assignment[D any] struct {
	Document  D
	ClusterID int
}

// Sample picks min(nClusters, available) clusters at random without
// replacement and returns up to kNearest members of each, closest to the
// cluster centroid first. Noise (-1) is never sampled. The same seed over the
// same inputs yields the same result.
func Sample[D any](x *mat.Dense, labels []int, docs []D, nClusters, kNearest int, seed uint64) []Assignment[D] {
	ids := DistinctLabels(labels)
	if len(ids) == 0 || nClusters <= 0 || kNearest <= 0 {
		return nil
	}
	count := min(nClusters, len(ids))

	order := newRand(seed).Perm(len(ids))[:count]
	out := make([]Assignment[D], 0, count*kNearest)
	for _, pick := range order {
		cid := ids[pick]
		for _, idx := range Nearest(x, labels, cid, kNearest) {
			out = append(out, Assignment[D]{Document: docs[idx], ClusterID: cid})
		}
	}
	return out
}

// DistinctLabels returns the non-noise labels in ascending order.
func DistinctLabels(labels []int) []int {
	var ids []int
	seen := make(map[int]bool)
	for _, l := range labels {
		if l < 0 || seen[l] {
			continue
		}
		seen[l] = true
		ids = append(ids, l)
	}
	slices.Sort(ids)
	return ids
}

// Members lists the row indices carrying label cid, in row order.
func Members(labels []int, cid int) []int {
	var out []int
	for i, l := range labels {
		if l == cid {
			out = append(out, i)
		}
	}
	return out
}

// Nearest returns up to k members of cluster cid ordered by cosine distance
// to the cluster centroid. Equal distances keep row order.
func Nearest(x *mat.Dense, labels []int, cid, k int) []int {
	members := Members(labels, cid)
	if len(members) == 0 || k <= 0 {
		return nil
	}
	centroid := Centroid(x, members)
	dist := make(map[int]float64, len(members))
	for _, idx := range members {
		dist[idx] = cosineDistance(x.RawRowView(idx), centroid)
	}
	sort.SliceStable(members, func(i, j int) bool { return dist[members[i]] < dist[members[j]] })
	return members[:min(k, len(members))]
}
