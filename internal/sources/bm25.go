package sources

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
)

const (
	bm25K1 = 1.5
	bm25B = 0.75
)

// Document is one entry of the in-memory BM25 index.
type Document struct {
	ID string
	Content string
	Metadata model.ChunkMetadata
}

// KeywordSource is an in-memory inverted-index Okapi BM25 retriever.
type KeywordSource struct {
	docs []Document
	postings map[string]map[int]int // term -> docIndex -> term frequency
	docLen []int
	avgDocLen float64
	docFreq map[string]int
}

// NewKeywordSource builds an empty index; call Index to add documents.
func NewKeywordSource() *KeywordSource {
	return &KeywordSource{
		postings: make(map[string]map[int]int),
		docFreq: make(map[string]int),
	}
}

func (s *KeywordSource) Name() string { return string(model.SourceKeyword) }
func (s *KeywordSource) Initialize(ctx context.Context) error { return nil }
func (s *KeywordSource) IsAvailable(ctx context.Context) bool { return len(s.docs) > 0 }
func (s *KeywordSource) Dispose(ctx context.Context) error { return nil }

// Index adds documents to the corpus, rebuilding the postings list. It is
// not safe for concurrent use with Retrieve; callers index up front.
func (s *KeywordSource) Index(docs...Document) {
	for _, d := range docs {
		idx := len(s.docs)
		s.docs = append(s.docs, d)
		terms := tokenize(d.Content)
		s.docLen = append(s.docLen, len(terms))

		freq := map[string]int{}
		for _, t := range terms {
			freq[t]++
		}
		for term, f := range freq {
			if s.postings[term] == nil {
				s.postings[term] = map[int]int{}
			}
			s.postings[term][idx] = f
			s.docFreq[term]++
		}
	}
	s.recomputeAvgLen()
}

func (s *KeywordSource) recomputeAvgLen() {
	if len(s.docLen) == 0 {
		s.avgDocLen = 0
		return
	}
	total := 0
	for _, l := range s.docLen {
		total += l
	}
	s.avgDocLen = float64(total) / float64(len(s.docLen))
}

// camelBoundary splits "fooBarBAZQux" into "foo Bar BAZ Qux" style runs so
// tokenize can lowercase them into separate terms.
var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])|([A-Z]+)([A-Z][a-z])`)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize implements 's BM25 tokenization: split camelCase
// boundaries, lowercase, strip non-word chars, drop tokens shorter than
// two characters.
func tokenize(text string) []string {
	spaced := camelBoundary.ReplaceAllString(text, "$1$3 $2$4")
	lower := strings.ToLower(spaced)
	fields := nonWord.Split(lower, -1)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// Retrieve scores the corpus with Okapi BM25 (k1≈1.5, b=0.75), OR-joining
// any query expansion terms into the term set, and applies file-path,
// language, and date filters before returning the ranked chunks. The date
// filter drops documents whose RFC 3339 Date is before q.Since; documents
// without a parseable Date are kept.
func (s *KeywordSource) Retrieve(ctx context.Context, q Query) Result {
	return Timed(func() ([]model.ContextChunk, bool, error) {
		terms := tokenize(q.Text)
		for _, t := range q.ExpansionTerms {
			terms = append(terms, tokenize(t)...)
		}
		terms = dedupStrings(terms)

		n := float64(len(s.docs))
		scores := make(map[int]float64)
		for _, term := range terms {
			postings, ok := s.postings[term]
			if !ok {
				continue
			}
			df := float64(s.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			for docIdx, tf := range postings {
				dl := float64(s.docLen[docIdx])
				denom := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/nonZero(s.avgDocLen))
				scores[docIdx] += idf * (float64(tf) * (bm25K1 + 1)) / denom
			}
		}

		topK := q.TopK
		if topK <= 0 {
			topK = 20
		}

		type scored struct {
			idx int
			score float64
		}
		ranked := make([]scored, 0, len(scores))
		for idx, sc := range scores {
			doc := s.docs[idx]
			if q.FilePathFilter != "" && doc.Metadata.FilePath != q.FilePathFilter {
				continue
			}
			if q.LanguageFilter != "" && doc.Metadata.Language != q.LanguageFilter {
				continue
			}
			if !q.Since.IsZero() {
				if d, err := time.Parse(time.RFC3339, doc.Metadata.Date); err == nil && d.Before(q.Since) {
					continue
				}
			}
			ranked = append(ranked, scored{idx: idx, score: sc})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

		if len(ranked) > topK {
			ranked = ranked[:topK]
		}

		maxScore := 0.0
		for _, r := range ranked {
			if r.score > maxScore {
				maxScore = r.score
			}
		}

		chunks := make([]model.ContextChunk, 0, len(ranked))
		for _, r := range ranked {
			doc := s.docs[r.idx]
			relevance := 0.0
			if maxScore > 0 {
				relevance = r.score / maxScore
			}
			chunks = append(chunks, model.ContextChunk{
				ID: doc.ID,
				Content: doc.Content,
				Source: model.SourceKeyword,
				Relevance: relevance,
				Metadata: doc.Metadata,
			})
		}
		return chunks, false, nil
	})
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
