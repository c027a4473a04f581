// Package cluster implements the single-pass greedy similarity clustering
// shared by the notable and hook synthesizers.
//
// The pass is deliberately not transitive: item j joins the cluster rooted at
// i only when sim(i, j) meets the threshold, so a chain i~j~k with k not
// similar to i leaves k in its own cluster. Earlier indices absorb later ones
// first, which makes the partition depend on input order.
package cluster

import (
	"context"
	"fmt"

	"stepweave/internal/services/embedding"
	"stepweave/internal/vecmath"
)

// Labels runs the greedy pass over a square similarity matrix and returns,
// for each index, the index of the cluster root that absorbed it.
func Labels(sim [][]float64, threshold float64) []int {
	n := len(sim)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}
	if n <= 1 {
		return labels
	}
	visited := make([]bool, n)
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		for j := i + 1; j < n; j++ {
			if visited[j] {
				continue
			}
			if sim[i][j] >= threshold {
				visited[j] = true
				labels[j] = labels[i]
			}
		}
	}
	return labels
}

// Group converts labels into clusters of member indices. Clusters appear in
// order of their root index; members are ascending.
func Group(labels []int) [][]int {
	order := make([]int, 0, len(labels))
	members := make(map[int][]int, len(labels))
	for idx, label := range labels {
		if _, ok := members[label]; !ok {
			order = append(order, label)
		}
		members[label] = append(members[label], idx)
	}
	out := make([][]int, 0, len(order))
	for _, label := range order {
		out = append(out, members[label])
	}
	return out
}

// Clusterer embeds representative texts and groups them with Labels.
type Clusterer struct {
	Embedder embedding.Embedder
}

// New returns a clusterer backed by embedder.
func New(embedder embedding.Embedder) *Clusterer {
	return &Clusterer{Embedder: embedder}
}

// Cluster partitions texts by similarity. Zero texts yield no clusters and a
// single text yields one singleton without calling the embedder.
func (c *Clusterer) Cluster(ctx context.Context, texts []string, threshold float64) ([][]int, error) {
	switch len(texts) {
	case 0:
		return [][]int{}, nil
	case 1:
		return [][]int{{0}}, nil
	}
	if c == nil || c.Embedder == nil {
		return nil, fmt.Errorf("cluster: embedder unavailable")
	}
	vectors, err := c.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("cluster: embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("cluster: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return Group(Labels(vecmath.SimilarityMatrix(vectors), threshold)), nil
}
