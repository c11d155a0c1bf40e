package rag

import (
	"context"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/sources"
)

// PipelineConfig bundles the tunables every stage needs.
type PipelineConfig struct {
	Ranker RankerConfig
	MinChunkTokens int
	MaxChunkTokens int
	PerSourceTimeout time.Duration
	TopK int
	MaxQueryVariants int
}

// Pipeline wires query processing, parallel retrieval, RRF+MMR+dedup
// ranking and token counting into the single RAG component the
// aggregator's RAG source delegates to.
type Pipeline struct {
	cfg PipelineConfig
	query *QueryProcessor
	retriever *Retriever
	ranker *Ranker
	assembler *Assembler
	feedback *FeedbackTracker
}

func NewPipeline(cfg PipelineConfig, srcs []sources.Source, synonyms map[string][]string) (*Pipeline, error) {
	assembler, err := NewAssembler(cfg.MinChunkTokens, cfg.MaxChunkTokens)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		query: NewQueryProcessor(synonyms),
		retriever: NewRetriever(srcs, cfg.PerSourceTimeout),
		ranker: NewRanker(cfg.Ranker),
		assembler: assembler,
		feedback: NewFeedbackTracker(),
	}, nil
}

// Feedback exposes the tracker so callers (e.g. the supervisor's learning
// capture step) can record usefulness signals after the fact.
func (p *Pipeline) Feedback() *FeedbackTracker { return p.feedback }

// Retrieve runs the full query->fan-out->rank pipeline and annotates each
// ranked chunk with its token count (no token-budget packing happens
// here), returning it in the sources.Result shape so it can be called
// directly from sources.RAGSource's closure.
func (p *Pipeline) Retrieve(ctx context.Context, q sources.Query) sources.Result {
	return sources.Timed(func() ([]model.ContextChunk, bool, error) {
		variants := p.query.Expand(q.Text, p.cfg.MaxQueryVariants)
		q.ExpansionTerms = dedupStrings(append(append([]string{}, q.ExpansionTerms...), variants[1:]...))

		outcomes := p.retriever.Retrieve(ctx, q)

		lists := make([]RankedList, 0, len(outcomes))
		var lastErr error
		succeeded := 0
		for _, o := range outcomes {
			if o.Err != nil {
				lastErr = o.Err
				continue
			}
			succeeded++
			if len(o.List) > 0 {
				lists = append(lists, o.List)
			}
		}

		topK := p.cfg.TopK
		if topK <= 0 {
			topK = q.TopK
		}
		if q.MaxChunks > 0 && q.MaxChunks < topK {
			topK = q.MaxChunks
		}
		ranked := p.ranker.Rank(lists, topK)

		// token counts are annotated here (real tokenizer, not a byte/word
		// estimate) so the aggregator's own budget packing downstream has
		// accurate numbers to work with; this pipeline doesn't itself own
		// the token budget, since Query carries a chunk count, not tokens.
		packed := make([]model.ContextChunk, 0, len(ranked))
		for _, c := range ranked {
			c.ContextChunk.TokenCount = p.assembler.CountTokens(c.Content)
			packed = append(packed, c.ContextChunk)
		}

		if succeeded == 0 {
			return nil, false, lastErr
		}
		return packed, false, nil
	})
}
