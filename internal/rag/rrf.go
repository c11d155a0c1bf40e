package rag

import (
	"math"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// DefaultRRFK is the reciprocal-rank-fusion constant used when the config
// does not specify one.
const DefaultRRFK = 60

// RankedList is one source's ordered output, best first.
type RankedList = []model.RetrievedChunk

// FuseRRF combines N ranked lists into fused scores keyed by chunk id:
// fused(id) = Σ_over_lists 1/(k + rank), rank 1-based.
func FuseRRF(lists []RankedList, k int) map[string]float64 {
	if k <= 0 {
		k = DefaultRRFK
	}
	fused := make(map[string]float64)
	for _, list := range lists {
		for rank, chunk := range list {
			fused[chunk.ID] += 1.0 / float64(k+rank+1)
		}
	}
	return fused
}

// RecencyBoost adds recencyBoost × exp(-ageDays/decayDays) on top of a
// base score, given an RFC3339 date string. A missing/unparseable
// date contributes no boost.
func RecencyBoost(dateRFC3339 string, boostWeight, decayDays float64, now time.Time) float64 {
	if dateRFC3339 == "" || decayDays <= 0 {
		return 0
	}
	t, err := time.Parse(time.RFC3339, dateRFC3339)
	if err != nil {
		return 0
	}
	ageDays := now.Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return boostWeight * math.Exp(-ageDays/decayDays)
}
