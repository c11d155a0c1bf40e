package rag

import (
	"sort"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// sourcePriorityOrder breaks ties between chunks that land on identical
// fused scores. Earlier entries outrank later ones; a source absent from
// this list sorts after every listed source. This, together with the
// chunk id as the final tiebreaker, makes Rank's output a total order —
// resolving the otherwise-ambiguous "what wins a rank-1 tie" case
// deterministically instead of leaving it to map iteration order.
var sourcePriorityOrder = []model.ContextSourceKind{
	model.SourceVector,
	model.SourceRAG,
	model.SourceMCP,
	model.SourceKeyword,
}

func sourceRank(kind model.ContextSourceKind) int {
	for i, k := range sourcePriorityOrder {
		if k == kind {
			return i
		}
	}
	return len(sourcePriorityOrder)
}

// RankerConfig tunes the fusion/dedup/diversity stages.
type RankerConfig struct {
	RRFK int
	RecencyBoostWeight float64
	RecencyDecayDays float64
	DedupSimilarityThresh float64
	MMRLambda float64
}

// Ranker fuses per-source ranked lists into one deduplicated, diversified
// ranking: RRF fusion, optional recency boost, similarity-based
// dedup, then MMR selection for the final top-k.
type Ranker struct {
	cfg RankerConfig
	now func() time.Time
}

func NewRanker(cfg RankerConfig) *Ranker {
	return &Ranker{cfg: cfg, now: time.Now}
}

// Rank fuses lists (one ranked list per source, best chunk first), applies
// recency boost and dedup, then returns the top k via MMR for diversity.
func (r *Ranker) Rank(lists []RankedList, k int) []model.RetrievedChunk {
	fused := FuseRRF(lists, r.cfg.RRFK)

	byID := make(map[string]model.RetrievedChunk)
	for _, list := range lists {
		for _, chunk := range list {
			existing, ok := byID[chunk.ID]
			if ok && existing.Relevance >= chunk.Relevance {
				continue
			}
			byID[chunk.ID] = chunk
		}
	}

	now := r.now()
	candidates := make([]model.RetrievedChunk, 0, len(byID))
	for id, chunk := range byID {
		score := fused[id]
		if r.cfg.RecencyBoostWeight > 0 {
			score += RecencyBoost(chunk.Metadata.Date, r.cfg.RecencyBoostWeight, r.cfg.RecencyDecayDays, now)
		}
		chunk.SetFusedScore(score)
		// the ranker re-scores Relevance with the fused+boosted value so
		// downstream dedup/MMR compare on the same scale as Rank's own sort.
		chunk.Relevance = score
		candidates = append(candidates, chunk)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if sourceRank(a.Source) != sourceRank(b.Source) {
			return sourceRank(a.Source) < sourceRank(b.Source)
		}
		return a.ID < b.ID
	})

	deduped := Dedup(candidates, r.cfg.DedupSimilarityThresh)

	lambda := r.cfg.MMRLambda
	if lambda <= 0 {
		lambda = 0.7
	}
	return MMRSelect(deduped, k, lambda)
}
