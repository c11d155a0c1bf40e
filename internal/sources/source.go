// Package sources implements the uniform ContextSource contract
// and its concrete adaptors: vector search, keyword/BM25, RAG, and MCP
// resource fetch.
package sources

import (
	"context"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// Query is the per-source retrieval request; the aggregator builds one per
// fan-out leg from the incoming ContextRequest.
type Query struct {
	Text string
	TopK int
	MaxChunks int
	Embedding []float32
	ExpansionTerms []string
	FilePathFilter string
	LanguageFilter string
	Since time.Time
}

// Result is what Retrieve returns: {chunks, latencyMs, cacheHit, error?}.
type Result struct {
	Chunks []model.ContextChunk
	LatencyMs int64
	CacheHit bool
	Err error
}

// Source is the uniform contract every retrieval adaptor satisfies.
type Source interface {
	Name() string
	Initialize(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
	Retrieve(ctx context.Context, q Query) Result
	Dispose(ctx context.Context) error
}

// Timed factors out the timing/error-capture behaviour common to every
// context source — composed as a free function rather than an embedded
// base struct, favoring composition over inheritance.
func Timed(fn func() ([]model.ContextChunk, bool, error)) Result {
	start := time.Now()
	chunks, cacheHit, err := fn()
	return Result{
		Chunks: chunks,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit: cacheHit,
		Err: err,
	}
}
