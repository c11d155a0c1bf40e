package aggregator

import (
	"sync"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// Metrics accumulates the aggregator-level counters an ops endpoint would
// surface: request volume, latency, token usage, cache hits, and
// per-source success/failure tallies.
type Metrics struct {
	mu sync.Mutex

	requests int64
	cacheHits int64
	totalTokens int64
	latencySum int64

	sourceSuccess map[model.ContextSourceKind]int64
	sourceFailure map[model.ContextSourceKind]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		sourceSuccess: map[model.ContextSourceKind]int64{},
		sourceFailure: map[model.ContextSourceKind]int64{},
	}
}

func (m *Metrics) recordRequest(latencyMs int64, tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.latencySum += latencyMs
	m.totalTokens += int64(tokens)
}

func (m *Metrics) recordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
	m.requests++
}

func (m *Metrics) recordSourceSuccess(kind model.ContextSourceKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourceSuccess[kind]++
}

func (m *Metrics) recordSourceFailure(kind model.ContextSourceKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourceFailure[kind]++
}

// Snapshot is a point-in-time copy safe to serialize for an ops endpoint.
type Snapshot struct {
	Requests int64
	CacheHits int64
	AvgLatencyMs float64
	TotalTokensUsed int64
	SourceSuccess map[model.ContextSourceKind]int64
	SourceFailure map[model.ContextSourceKind]int64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := 0.0
	if m.requests > 0 {
		avg = float64(m.latencySum) / float64(m.requests)
	}

	success := make(map[model.ContextSourceKind]int64, len(m.sourceSuccess))
	for k, v := range m.sourceSuccess {
		success[k] = v
	}
	failure := make(map[model.ContextSourceKind]int64, len(m.sourceFailure))
	for k, v := range m.sourceFailure {
		failure[k] = v
	}

	return Snapshot{
		Requests: m.requests,
		CacheHits: m.cacheHits,
		AvgLatencyMs: avg,
		TotalTokensUsed: m.totalTokens,
		SourceSuccess: success,
		SourceFailure: failure,
	}
}
