package sources

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// VectorSource adapts an external IVectorStore/IEmbeddingService pair to
// the ContextSource contract: it embeds the query if no embedding
// is already attached, then calls the store's topK similarity search.
type VectorSource struct {
	Collection string
	ScoreThreshold float64
	DefaultTopK int

	store ports.VectorStore
	embedder ports.EmbeddingService
}

// NewVectorSource wires a concrete store/embedder pair.
func NewVectorSource(collection string, store ports.VectorStore, embedder ports.EmbeddingService) *VectorSource {
	return &VectorSource{Collection: collection, DefaultTopK: 10, store: store, embedder: embedder}
}

func (s *VectorSource) Name() string { return string(model.SourceVector) }

func (s *VectorSource) Initialize(ctx context.Context) error { return nil }

func (s *VectorSource) IsAvailable(ctx context.Context) bool {
	return s.store != nil && s.embedder != nil
}

func (s *VectorSource) Retrieve(ctx context.Context, q Query) Result {
	return Timed(func() ([]model.ContextChunk, bool, error) {
		embedding := q.Embedding
		if len(embedding) == 0 {
			if s.embedder == nil {
				return nil, false, fmt.Errorf("vector source: query has no embedding and no embedder configured")
			}
			e, err := s.embedder.Embed(ctx, q.Text)
			if err != nil {
				return nil, false, fmt.Errorf("vector source: embed query: %w", err)
			}
			embedding = e
		}

		topK := q.TopK
		if topK <= 0 {
			topK = s.DefaultTopK
		}

		filter := map[string]any{}
		if q.FilePathFilter != "" {
			filter["filePath"] = q.FilePathFilter
		}
		if q.LanguageFilter != "" {
			filter["language"] = q.LanguageFilter
		}

		matches, err := s.store.Search(ctx, s.Collection, ports.VectorSearchParams{
			Embedding: embedding,
			TopK: topK,
			ScoreThreshold: s.ScoreThreshold,
			Filter: filter,
		})
		if err != nil {
			return nil, false, fmt.Errorf("vector source: search: %w", err)
		}

		chunks := make([]model.ContextChunk, 0, len(matches))
		for _, m := range matches {
			chunks = append(chunks, model.ContextChunk{
				ID: chunkID(m.ID),
				Content: m.Content,
				Source: model.SourceVector,
				Relevance: m.Score,
				Metadata: metadataFromMap(m.Metadata),
			})
		}
		return chunks, false, nil
	})
}

func (s *VectorSource) Dispose(ctx context.Context) error { return nil }

func chunkID(seed string) string {
	if seed != "" {
		return seed
	}
	return uuid.NewString()
}

func metadataFromMap(m map[string]any) model.ChunkMetadata {
	meta := model.ChunkMetadata{}
	if m == nil {
		return meta
	}
	if v, ok := m["filePath"].(string); ok {
		meta.FilePath = v
	}
	if v, ok := m["language"].(string); ok {
		meta.Language = v
	}
	if v, ok := m["url"].(string); ok {
		meta.URL = v
	}
	if v, ok := m["date"].(string); ok {
		meta.Date = v
	}
	if v, ok := m["startLine"].(int); ok {
		meta.StartLine = v
	}
	if v, ok := m["endLine"].(int); ok {
		meta.EndLine = v
	}
	return meta
}
