package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func chunk(id string, relevance float64) model.RetrievedChunk {
	return model.RetrievedChunk{ContextChunk: model.ContextChunk{ID: id, Relevance: relevance}}
}

func TestFuseRRF_ScoresBoundedByNumberOfLists(t *testing.T) {
	lists := []RankedList{
		{chunk("a", 0.9), chunk("b", 0.5)},
		{chunk("b", 0.8), chunk("a", 0.4)},
		{chunk("c", 0.7)},
	}
	fused := FuseRRF(lists, DefaultRRFK)

	for id, score := range fused {
		assert.Greaterf(t, score, 0.0, "chunk %s", id)
		assert.LessOrEqualf(t, score, float64(len(lists)), "chunk %s", id)
	}
	assert.Greater(t, fused["a"], fused["c"], "a appears earlier in more lists than c")
}

func TestFuseRRF_EmptyListsYieldEmptyFusion(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, DefaultRRFK))
}

func TestRecencyBoost_DecaysWithAge(t *testing.T) {
	now, err := time.Parse(time.RFC3339, "2026-07-31T00:00:00Z")
	assert.NoError(t, err)

	recent := RecencyBoost("2026-07-30T00:00:00Z", 1.0, 30, now)
	old := RecencyBoost("2025-01-01T00:00:00Z", 1.0, 30, now)
	assert.Greater(t, recent, old)
	assert.Zero(t, RecencyBoost("", 1.0, 30, now))
}
