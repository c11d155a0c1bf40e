package aggregator

import (
	"hash/fnv"
	"strings"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/rag"
)

// dedupStats reports how much of the incoming chunk set the dedupe step
// collapsed as a whole (not per phase), feeding
// ContextResponse.DeduplicationRate.
type dedupStats struct {
	in int
	out int
}

func (s dedupStats) rate() float64 {
	if s.in == 0 {
		return 0
	}
	return 1 - float64(s.out)/float64(s.in)
}

// dedupe runs the three-phase collapse step 5: exact
// content-hash match, then near-duplicate overlap merge (shared line
// prefix/suffix within the same file), then embedding-similarity
// collapse via the RAG ranker's own dedup pass.
func dedupe(chunks []model.ContextChunk, simThreshold float64) ([]model.ContextChunk, dedupStats) {
	stats := dedupStats{in: len(chunks)}

	byHash := dedupByContentHash(chunks)
	merged := mergeOverlapping(byHash)

	retrieved := make([]model.RetrievedChunk, len(merged))
	for i, c := range merged {
		retrieved[i] = model.RetrievedChunk{ContextChunk: c}
	}
	semantic := rag.Dedup(retrieved, simThreshold)

	out := make([]model.ContextChunk, len(semantic))
	for i, c := range semantic {
		out[i] = c.ContextChunk
	}
	stats.out = len(out)
	return out, stats
}

func contentHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.TrimSpace(s)))
	return h.Sum64()
}

func dedupByContentHash(chunks []model.ContextChunk) []model.ContextChunk {
	seen := make(map[uint64]int, len(chunks))
	out := make([]model.ContextChunk, 0, len(chunks))
	for _, c := range chunks {
		h := contentHash(c.Content)
		if idx, ok := seen[h]; ok {
			if c.Relevance > out[idx].Relevance {
				out[idx] = c
			}
			continue
		}
		seen[h] = len(out)
		out = append(out, c)
	}
	return out
}

// mergeOverlapping collapses chunks from the same file whose line ranges
// overlap or touch into a single chunk spanning the union, keeping the
// higher-relevance chunk's score.
func mergeOverlapping(chunks []model.ContextChunk) []model.ContextChunk {
	byFile := make(map[string][]int)
	for i, c := range chunks {
		if c.Metadata.FilePath == "" {
			continue
		}
		byFile[c.Metadata.FilePath] = append(byFile[c.Metadata.FilePath], i)
	}

	merged := make(map[int]bool)
	out := append([]model.ContextChunk(nil), chunks...)

	for _, idxs := range byFile {
		for a := 0; a < len(idxs); a++ {
			if merged[idxs[a]] {
				continue
			}
			for b := a + 1; b < len(idxs); b++ {
				i, j := idxs[a], idxs[b]
				if merged[j] {
					continue
				}
				if !overlaps(out[i].Metadata, out[j].Metadata) {
					continue
				}
				out[i] = unionChunk(out[i], out[j])
				merged[j] = true
			}
		}
	}

	final := make([]model.ContextChunk, 0, len(out))
	for i, c := range out {
		if !merged[i] {
			final = append(final, c)
		}
	}
	return final
}

func overlaps(a, b model.ChunkMetadata) bool {
	if a.EndLine == 0 || b.EndLine == 0 {
		return false
	}
	return a.StartLine <= b.EndLine+1 && b.StartLine <= a.EndLine+1
}

func unionChunk(a, b model.ContextChunk) model.ContextChunk {
	if b.Relevance > a.Relevance {
		a.Relevance = b.Relevance
	}
	if b.Metadata.StartLine < a.Metadata.StartLine || a.Metadata.StartLine == 0 {
		a.Metadata.StartLine = b.Metadata.StartLine
	}
	if b.Metadata.EndLine > a.Metadata.EndLine {
		a.Metadata.EndLine = b.Metadata.EndLine
	}
	return a
}
