package sources

import (
	"context"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// RAGSource is a thin adaptor delegating to the RAG pipeline. It
// depends only on a function value so this package never imports the rag
// package — the aggregator wires the closure to the real pipeline,
// avoiding an import cycle between sources and rag.
type RAGSource struct {
	RetrieveFunc func(ctx context.Context, q Query) Result
}

func (s *RAGSource) Name() string { return string(model.SourceRAG) }
func (s *RAGSource) Initialize(ctx context.Context) error { return nil }
func (s *RAGSource) IsAvailable(ctx context.Context) bool { return s.RetrieveFunc != nil }
func (s *RAGSource) Dispose(ctx context.Context) error { return nil }

func (s *RAGSource) Retrieve(ctx context.Context, q Query) Result {
	if s.RetrieveFunc == nil {
		return Result{Err: errNoRetriever}
	}
	return s.RetrieveFunc(ctx, q)
}

var errNoRetriever = &noRetrieverError{}

type noRetrieverError struct{}

func (e *noRetrieverError) Error() string { return "rag source: no retriever wired" }
