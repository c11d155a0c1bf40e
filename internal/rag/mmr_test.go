package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalIsZero(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{0, 1}))
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestMMRSelect_FallsBackToTopKWithoutEmbeddings(t *testing.T) {
	candidates := []model.RetrievedChunk{chunk("a", 0.9), chunk("b", 0.5), chunk("c", 0.7)}
	out := MMRSelect(candidates, 2, 0.7)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestMMRSelect_PenalizesRedundantEmbeddings(t *testing.T) {
	candidates := []model.RetrievedChunk{
		embedded("a", 0.9, []float32{1, 0, 0}),
		embedded("b", 0.85, []float32{1, 0, 0.001}), // near-duplicate of a
		embedded("c", 0.6, []float32{0, 1, 0}), // distinct direction
	}
	out := MMRSelect(candidates, 2, 0.5)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID, "diverse but lower-relevance c should beat near-duplicate b")
}

func TestMMRSelect_ZeroKReturnsNil(t *testing.T) {
	assert.Nil(t, MMRSelect([]model.RetrievedChunk{chunk("a", 1)}, 0, 0.5))
}
