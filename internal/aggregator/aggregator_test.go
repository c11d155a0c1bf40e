package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/sources"
)

type stubSource struct {
	kind model.ContextSourceKind
	chunks []model.ContextChunk
}

func (s *stubSource) Name() string { return string(s.kind) }
func (s *stubSource) Initialize(ctx context.Context) error { return nil }
func (s *stubSource) IsAvailable(ctx context.Context) bool { return true }
func (s *stubSource) Dispose(ctx context.Context) error { return nil }
func (s *stubSource) Retrieve(ctx context.Context, q sources.Query) sources.Result {
	return sources.Result{Chunks: s.chunks}
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	srcs := []sources.Source{
		&stubSource{kind: model.SourceVector, chunks: []model.ContextChunk{
			{ID: "v1", Content: "vector result one", Relevance: 0.9},
			{ID: "v2", Content: "vector result two", Relevance: 0.6},
		}},
		&stubSource{kind: model.SourceKeyword, chunks: []model.ContextChunk{
			{ID: "k1", Content: "keyword result one", Relevance: 0.8},
		}},
	}
	a, err := New(Config{PerSourceTimeout: time.Second, DedupSimilarityThresh: 0.9}, srcs, nil)
	require.NoError(t, err)
	return a
}

func TestAggregator_RetrieveAssemblesAndCaches(t *testing.T) {
	a := newTestAggregator(t)
	req := model.ContextRequest{
		Query: "find auth bug",
		TaskType: model.TaskDebugging,
		MaxTokens: 500,
		Sources: []model.ContextSourceKind{model.SourceVector, model.SourceKeyword},
		Format: model.FormatPlain,
	}

	resp, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.NotEmpty(t, resp.Chunks)
	assert.Equal(t, 2, resp.SourcesQueried)
	assert.Equal(t, 2, resp.SourcesSucceeded)
	assert.NotEmpty(t, resp.Assembled)

	second, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
}

func TestAggregator_SkipCacheBypassesCacheLookup(t *testing.T) {
	a := newTestAggregator(t)
	req := model.ContextRequest{Query: "q", TaskType: model.TaskGeneral, MaxTokens: 200, SkipCache: true,
		Sources: []model.ContextSourceKind{model.SourceVector}}

	first, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.CacheHit)
	assert.False(t, second.CacheHit)
}

func TestAggregator_BudgetNeverExceedsEffectiveBudget(t *testing.T) {
	a := newTestAggregator(t)
	req := model.ContextRequest{
		Query: "q", TaskType: model.TaskGeneral, MaxTokens: 5, SkipCache: true,
		Sources: []model.ContextSourceKind{model.SourceVector, model.SourceKeyword},
	}
	resp, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.TokensUsed, req.EffectiveBudget())
}

func TestAggregator_MetricsTrackRequestsAndSourceOutcomes(t *testing.T) {
	a := newTestAggregator(t)
	req := model.ContextRequest{Query: "q", TaskType: model.TaskGeneral, MaxTokens: 200, SkipCache: true,
		Sources: []model.ContextSourceKind{model.SourceVector, model.SourceKeyword}}

	_, err := a.Retrieve(context.Background(), req)
	require.NoError(t, err)

	snap := a.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Requests)
	assert.Equal(t, int64(1), snap.SourceSuccess[model.SourceVector])
	assert.Equal(t, int64(1), snap.SourceSuccess[model.SourceKeyword])
}
