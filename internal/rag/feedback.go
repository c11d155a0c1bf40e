package rag

import "sync"

// FeedbackSignal is a caller's judgement on whether a retrieved chunk was
// actually useful, reported after the fact.
type FeedbackSignal struct {
	ChunkID string
	Useful bool
}

// FeedbackTracker accumulates per-chunk usefulness counts so future
// ranking passes can nudge chunks that have historically paid off. It
// does not itself alter scores, and the Ranker does not read it; Score is
// exposed for callers, keeping the tracker a pure bookkeeping concern.
type FeedbackTracker struct {
	mu sync.Mutex
	useful map[string]int
	total map[string]int
}

func NewFeedbackTracker() *FeedbackTracker {
	return &FeedbackTracker{useful: map[string]int{}, total: map[string]int{}}
}

// Record stores one feedback signal.
func (t *FeedbackTracker) Record(sig FeedbackSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total[sig.ChunkID]++
	if sig.Useful {
		t.useful[sig.ChunkID]++
	}
}

// Score returns the observed usefulness ratio for a chunk id in [0,1],
// defaulting to 0.5 (neutral) when no feedback has been recorded.
func (t *FeedbackTracker) Score(chunkID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.total[chunkID]
	if total == 0 {
		return 0.5
	}
	return float64(t.useful[chunkID]) / float64(total)
}
