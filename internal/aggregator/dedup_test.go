package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func TestDedupe_CollapsesIdenticalContent(t *testing.T) {
	chunks := []model.ContextChunk{
		{ID: "a", Content: "same body", Relevance: 0.5},
		{ID: "b", Content: "same body", Relevance: 0.9},
	}
	out, stats := dedupe(chunks, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].Relevance)
	assert.Equal(t, 0.5, stats.rate())
}

func TestDedupe_MergesOverlappingLineRanges(t *testing.T) {
	chunks := []model.ContextChunk{
		{ID: "a", Content: "part one", Relevance: 0.5, Metadata: model.ChunkMetadata{FilePath: "f.go", StartLine: 1, EndLine: 10}},
		{ID: "b", Content: "part two", Relevance: 0.7, Metadata: model.ChunkMetadata{FilePath: "f.go", StartLine: 8, EndLine: 20}},
	}
	out, _ := dedupe(chunks, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, 20, out[0].Metadata.EndLine)
}

func TestDedupe_DistinctFilesNeverMerge(t *testing.T) {
	chunks := []model.ContextChunk{
		{ID: "a", Content: "part one", Metadata: model.ChunkMetadata{FilePath: "f.go", StartLine: 1, EndLine: 10}},
		{ID: "b", Content: "part two", Metadata: model.ChunkMetadata{FilePath: "g.go", StartLine: 1, EndLine: 10}},
	}
	out, _ := dedupe(chunks, 0)
	assert.Len(t, out, 2)
}

func TestDedupStats_RateZeroWhenNothingDropped(t *testing.T) {
	chunks := []model.ContextChunk{
		{ID: "a", Content: "one"},
		{ID: "b", Content: "two"},
	}
	_, stats := dedupe(chunks, 0)
	assert.Zero(t, stats.rate())
}
