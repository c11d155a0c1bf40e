package rag

import (
	"math"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// CosineSimilarity returns the cosine similarity of two equal-length
// embeddings, or 0 if either is empty/mismatched.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// MMRSelect greedily selects up to k chunks maximising
// λ·relevance(c) − (1−λ)·max sim(c, selected). Without embeddings on
// every candidate it falls back to a plain top-k by relevance, since
// similarity can't be computed.
func MMRSelect(candidates []model.RetrievedChunk, k int, lambda float64) []model.RetrievedChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if !allHaveEmbeddings(candidates) {
		return topKByRelevance(candidates, k)
	}

	remaining := append([]model.RetrievedChunk(nil), candidates...)
	selected := make([]model.RetrievedChunk, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := negInf()
		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := CosineSimilarity(cand.Embedding, s.Embedding); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*cand.Relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func allHaveEmbeddings(chunks []model.RetrievedChunk) bool {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return false
		}
	}
	return len(chunks) > 0
}

func topKByRelevance(chunks []model.RetrievedChunk, k int) []model.RetrievedChunk {
	sorted := append([]model.RetrievedChunk(nil), chunks...)
	insertionSortDesc(sorted, func(a, b model.RetrievedChunk) bool { return a.Relevance > b.Relevance })
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func insertionSortDesc[T any](s []T, greater func(a, b T) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && greater(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func negInf() float64 { return -1e18 }
