package rag

import "github.com/hyperionlabs/mergebot/internal/model"

// DefaultDedupSimilarityThreshold is the cosine-similarity cutoff above
// which two embedded chunks are considered duplicates when no explicit
// threshold is configured.
const DefaultDedupSimilarityThreshold = 0.92

// Dedup collapses duplicate chunks out of candidates: an exact ID match is
// always a duplicate; beyond that, if both chunks carry embeddings and
// their cosine similarity is >= threshold, the lower-scored of the pair is
// dropped in favor of the higher-scored one.
func Dedup(candidates []model.RetrievedChunk, threshold float64) []model.RetrievedChunk {
	if threshold <= 0 {
		threshold = DefaultDedupSimilarityThreshold
	}

	byID := make(map[string]int, len(candidates))
	kept := make([]model.RetrievedChunk, 0, len(candidates))

	for _, c := range candidates {
		if idx, ok := byID[c.ID]; ok {
			if c.Relevance > kept[idx].Relevance {
				kept[idx] = c
			}
			continue
		}
		byID[c.ID] = len(kept)
		kept = append(kept, c)
	}

	dropped := make([]bool, len(kept))
	for i := 0; i < len(kept); i++ {
		if dropped[i] || len(kept[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(kept); j++ {
			if dropped[j] || len(kept[j].Embedding) == 0 {
				continue
			}
			if CosineSimilarity(kept[i].Embedding, kept[j].Embedding) < threshold {
				continue
			}
			if kept[i].Relevance >= kept[j].Relevance {
				dropped[j] = true
			} else {
				dropped[i] = true
				break
			}
		}
	}

	out := make([]model.RetrievedChunk, 0, len(kept))
	for i, c := range kept {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out
}
