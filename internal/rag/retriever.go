package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/sources"
)

// SourceOutcome is one source's settled contribution to a fan-out round,
// kept alongside its RankedList so callers can still report per-source
// latency/errors even though Retriever itself only returns lists to Rank.
type SourceOutcome struct {
	Source model.ContextSourceKind
	List RankedList
	LatencyMs int64
	CacheHit bool
	Err error
}

// Retriever fans a query out to every configured source concurrently,
// each bounded by its own timeout, and settles all of them before
// returning — a single source erroring or timing out never aborts the
// others.
type Retriever struct {
	srcs []sources.Source
	perSourceTimeout time.Duration
}

func NewRetriever(srcs []sources.Source, perSourceTimeout time.Duration) *Retriever {
	if perSourceTimeout <= 0 {
		perSourceTimeout = 5 * time.Second
	}
	return &Retriever{srcs: srcs, perSourceTimeout: perSourceTimeout}
}

// Retrieve runs q against every source in parallel and returns one
// outcome per source, in the same order as the configured source list.
func (r *Retriever) Retrieve(ctx context.Context, q sources.Query) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(r.srcs))
	var wg sync.WaitGroup
	wg.Add(len(r.srcs))

	for i, src := range r.srcs {
		go func(i int, src sources.Source) {
			defer wg.Done()
			outcomes[i] = r.retrieveOne(ctx, src, q)
		}(i, src)
	}
	wg.Wait()
	return outcomes
}

func (r *Retriever) retrieveOne(ctx context.Context, src sources.Source, q sources.Query) SourceOutcome {
	kind := model.ContextSourceKind(src.Name())

	if !src.IsAvailable(ctx) {
		return SourceOutcome{Source: kind}
	}

	sctx, cancel := context.WithTimeout(ctx, r.perSourceTimeout)
	defer cancel()

	resultCh := make(chan sources.Result, 1)
	go func() { resultCh <- src.Retrieve(sctx, q) }()

	select {
	case res := <-resultCh:
		return SourceOutcome{
			Source: kind,
			List: toRankedList(res.Chunks),
			LatencyMs: res.LatencyMs,
			CacheHit: res.CacheHit,
			Err: res.Err,
		}
	case <-sctx.Done():
		return SourceOutcome{Source: kind, LatencyMs: r.perSourceTimeout.Milliseconds(), Err: sctx.Err()}
	}
}

// toRankedList sorts a source's raw chunks into the best-first RankedList
// shape FuseRRF expects.
func toRankedList(chunks []model.ContextChunk) RankedList {
	out := make(RankedList, len(chunks))
	for i, c := range chunks {
		out[i] = model.RetrievedChunk{ContextChunk: c}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	return out
}
