// Package aggregator implements the Context Aggregator: it fans a
// request out across every configured retrieval source, settles all of
// them, deduplicates and ranks what comes back, packs the result into a
// token budget, and caches the assembled response.
package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/cache"
	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/rag"
	"github.com/hyperionlabs/mergebot/internal/sources"
)

// avgTokensPerChunk is a rough sizing guess used only to translate a
// source's token budget share into a chunk-count cap before retrieval;
// the real token accounting happens later, in Assembler.Pack.
const avgTokensPerChunk = 200

// Config tunes the aggregator's dedup/ranking/cache behaviour.
type Config struct {
	Ranker rag.RankerConfig
	MinChunkTokens int
	MaxChunkTokens int
	DedupSimilarityThresh float64
	PerSourceTimeout time.Duration
	TotalTimeout time.Duration
	CacheEntries int
	CacheTTL time.Duration
}

// Aggregator is the component; construct one per process and reuse
// it across requests so its cache and metrics accumulate.
type Aggregator struct {
	cfg Config
	sourcesBy map[model.ContextSourceKind]sources.Source
	ranker *rag.Ranker
	assembler *rag.Assembler
	cache *cache.TTLCache[uint32, model.ContextResponse]
	metrics *Metrics
	log *zap.Logger
}

func New(cfg Config, srcs []sources.Source, log *zap.Logger) (*Aggregator, error) {
	assembler, err := rag.NewAssembler(cfg.MinChunkTokens, cfg.MaxChunkTokens)
	if err != nil {
		return nil, err
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 256
	}
	if log == nil {
		log = zap.NewNop()
	}

	byKind := make(map[model.ContextSourceKind]sources.Source, len(srcs))
	for _, s := range srcs {
		byKind[model.ContextSourceKind(s.Name())] = s
	}

	return &Aggregator{
		cfg: cfg,
		sourcesBy: byKind,
		ranker: rag.NewRanker(cfg.Ranker),
		assembler: assembler,
		cache: cache.New[uint32, model.ContextResponse](cfg.CacheEntries, cfg.CacheTTL),
		metrics: NewMetrics(),
		log: log,
	}, nil
}

// Metrics exposes the running counters for an ops endpoint to read.
func (a *Aggregator) Metrics() *Metrics { return a.metrics }

// Retrieve is the single entry point: cache lookup, budget
// allocation, parallel fan-out with settle-all semantics, dedup, ranking,
// packing, and assembly.
func (a *Aggregator) Retrieve(ctx context.Context, req model.ContextRequest) (model.ContextResponse, error) {
	start := time.Now()
	hash := requestHash(req)

	if !req.SkipCache {
		if cached, ok := a.cache.Get(hash); ok {
			cached.CacheHit = true
			a.metrics.recordCacheHit()
			return cached, nil
		}
	}

	if a.cfg.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.TotalTimeout)
		defer cancel()
	}

	sourceList := req.Sources
	if len(sourceList) == 0 {
		sourceList = a.defaultSourcesFor(req.TaskType)
	}

	budgets := allocateBudget(req, sourceList)

	srcs := make([]sources.Source, 0, len(sourceList))
	for _, kind := range sourceList {
		if s, ok := a.sourcesBy[kind]; ok {
			srcs = append(srcs, s)
		}
	}

	retriever := rag.NewRetriever(srcs, a.cfg.PerSourceTimeout)
	outcomes := retriever.Retrieve(ctx, toSourceQuery(req))

	contributions := make([]model.SourceContribution, 0, len(outcomes))
	var allChunks []model.ContextChunk
	succeeded := 0
	for i, o := range outcomes {
		contrib := model.SourceContribution{Source: o.Source, LatencyMs: o.LatencyMs, CacheHit: o.CacheHit}
		if o.Err != nil {
			contrib.Error = o.Err.Error()
			a.metrics.recordSourceFailure(o.Source)
		} else {
			succeeded++
			a.metrics.recordSourceSuccess(o.Source)
		}

		// cap this source's contribution to its allocated budget share
		// before it ever reaches dedup/ranking, so a source with a large
		// result set can't starve the others out of the fused candidate
		// pool.
		chunkCap := budgets[o.Source] / avgTokensPerChunk
		if chunkCap < 1 {
			chunkCap = 1
		}
		capped := o.List
		if len(capped) > chunkCap {
			capped = capped[:chunkCap]
		}
		outcomes[i].List = capped

		for _, c := range capped {
			allChunks = append(allChunks, c.ContextChunk)
			contrib.Chunks = append(contrib.Chunks, c.ContextChunk)
		}
		contributions = append(contributions, contrib)
	}

	deduped, stats := dedupe(allChunks, a.cfg.DedupSimilarityThresh)
	survivors := make(map[string]bool, len(deduped))
	for _, c := range deduped {
		survivors[c.ID] = true
	}

	lists := make([]rag.RankedList, 0, len(outcomes))
	for _, o := range outcomes {
		var filtered rag.RankedList
		for _, c := range o.List {
			if survivors[c.ID] {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			lists = append(lists, filtered)
		}
	}

	topK := req.EffectiveBudget() / avgTokensPerChunk
	if topK < 1 {
		topK = 1
	}
	ranked := a.ranker.Rank(lists, topK)
	packed := a.assembler.Pack(ranked, req.EffectiveBudget())
	assembled := rag.Render(packed, req.Format)

	tokensUsed := 0
	for _, c := range packed {
		tokensUsed += c.TokenCount
	}

	resp := model.ContextResponse{
		Chunks: packed,
		Assembled: assembled,
		Contributions: contributions,
		SourcesQueried: len(outcomes),
		SourcesSucceeded: succeeded,
		TotalLatencyMs: time.Since(start).Milliseconds(),
		TokensUsed: tokensUsed,
		BudgetUtilization: utilization(tokensUsed, req.EffectiveBudget()),
		DeduplicationRate: stats.rate(),
	}

	if !req.SkipCache {
		a.cache.Set(hash, resp)
	}
	a.metrics.recordRequest(resp.TotalLatencyMs, resp.TokensUsed)

	return resp, nil
}

func utilization(used, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	return float64(used) / float64(budget)
}

func toSourceQuery(req model.ContextRequest) sources.Query {
	return sources.Query{Text: req.Query, TopK: 50}
}

var defaultSourcesByTask = map[model.TaskType][]model.ContextSourceKind{
	model.TaskCodeSearch: {model.SourceVector, model.SourceKeyword, model.SourceMCP},
	model.TaskDebugging: {model.SourceVector, model.SourceKeyword, model.SourceRAG, model.SourceMCP},
	model.TaskImplementation: {model.SourceVector, model.SourceRAG, model.SourceKeyword, model.SourceMCP},
	model.TaskExplanation: {model.SourceRAG, model.SourceVector, model.SourceKeyword},
	model.TaskDocumentation: {model.SourceRAG, model.SourceMCP, model.SourceKeyword},
	model.TaskRefactoring: {model.SourceVector, model.SourceKeyword, model.SourceMCP},
	model.TaskGeneral: {model.SourceVector, model.SourceKeyword, model.SourceRAG, model.SourceMCP},
}

func (a *Aggregator) defaultSourcesFor(t model.TaskType) []model.ContextSourceKind {
	if list, ok := defaultSourcesByTask[t]; ok {
		return list
	}
	return defaultSourcesByTask[model.TaskGeneral]
}
