package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func embedded(id string, relevance float64, emb []float32) model.RetrievedChunk {
	c := chunk(id, relevance)
	c.Embedding = emb
	return c
}

func TestDedup_IDMatchKeepsHigherScored(t *testing.T) {
	in := []model.RetrievedChunk{
		chunk("x", 0.4),
		chunk("x", 0.9),
	}
	out := Dedup(in, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].Relevance)
}

func TestDedup_SimilarEmbeddingsCollapseToHigherScored(t *testing.T) {
	in := []model.RetrievedChunk{
		embedded("a", 0.6, []float32{1, 0, 0}),
		embedded("b", 0.9, []float32{1, 0, 0.001}),
	}
	out := Dedup(in, 0.9)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestDedup_NeverRaisesSurvivingScoreAboveInput(t *testing.T) {
	in := []model.RetrievedChunk{
		embedded("a", 0.6, []float32{1, 0, 0}),
		embedded("b", 0.55, []float32{1, 0, 0.001}),
	}
	out := Dedup(in, 0.9)
	assert.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].Relevance, 0.6)
}

func TestDedup_DissimilarEmbeddingsBothSurvive(t *testing.T) {
	in := []model.RetrievedChunk{
		embedded("a", 0.6, []float32{1, 0, 0}),
		embedded("b", 0.6, []float32{0, 1, 0}),
	}
	out := Dedup(in, 0.9)
	assert.Len(t, out, 2)
}
