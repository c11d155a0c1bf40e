// Package knowledge implements the pre-task knowledge checker and
// the learning duplicate detector. Both run entirely in-process
// against whatever a ports.KnowledgeStore returns — neither owns
// persistence.
package knowledge

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperionlabs/mergebot/internal/ports"
)

// extensionLanguage maps a file extension to the language keyword used to
// widen a knowledge query.
var extensionLanguage = map[string]string{
	".go": "go",
	".ts": "typescript",
	".tsx": "typescript",
	".js": "javascript",
	".jsx": "javascript",
	".py": "python",
	".rb": "ruby",
	".java": "java",
	".rs": "rust",
	".sql": "sql",
	".yaml": "yaml",
	".yml": "yaml",
}

// MaxRecommendations caps how many recommendations/learnings are surfaced
// per check, keeping the approval prompt readable.
const MaxRecommendations = 10

// Checker runs the pre-task knowledge check against a ports.KnowledgeStore.
type Checker struct {
	store ports.KnowledgeStore
}

func NewChecker(store ports.KnowledgeStore) *Checker {
	return &Checker{store: store}
}

// Check builds a KnowledgeQuery from the issue description and touched
// file paths, fetches prohibitions/recommendations/learnings, scores and
// sorts them, and decides whether a critical-priority prohibition blocks
// the task outright.
func (c *Checker) Check(ctx context.Context, q ports.KnowledgeQuery) (ports.KnowledgeCheckResult, error) {
	q = enrichQuery(q)

	prohibitions, err := c.store.FetchProhibitions(ctx, q)
	if err != nil {
		return ports.KnowledgeCheckResult{}, err
	}
	recommendations, err := c.store.FetchRecommendations(ctx, q)
	if err != nil {
		return ports.KnowledgeCheckResult{}, err
	}
	learnings, err := c.store.FetchLearnings(ctx, q)
	if err != nil {
		return ports.KnowledgeCheckResult{}, err
	}

	var blockers, warnings []ports.KnowledgeEntry
	for _, p := range prohibitions {
		if matches(p, q) {
			if p.Priority == ports.PriorityCritical {
				blockers = append(blockers, p)
			} else {
				warnings = append(warnings, p)
			}
		}
	}

	scored := scoreAndFilter(recommendations, q)
	scoredLearnings := scoreAndFilter(learnings, q)

	return ports.KnowledgeCheckResult{
		CanProceed: len(blockers) == 0,
		Recommendations: capEntries(scored, MaxRecommendations),
		Warnings: warnings,
		Blockers: blockers,
		Learnings: capEntries(scoredLearnings, MaxRecommendations),
	}, nil
}

// enrichQuery widens the query's keywords with language names derived
// from the touched file extensions.
func enrichQuery(q ports.KnowledgeQuery) ports.KnowledgeQuery {
	seen := make(map[string]bool, len(q.Keywords))
	for _, k := range q.Keywords {
		seen[strings.ToLower(k)] = true
	}
	for _, path := range q.FilePaths {
		lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(path))]
		if !ok || seen[lang] {
			continue
		}
		seen[lang] = true
		q.Keywords = append(q.Keywords, lang)
	}
	return q
}

// matches reports whether a prohibition's keywords or glob patterns hit
// the query's description, keywords, or touched file paths.
func matches(e ports.KnowledgeEntry, q ports.KnowledgeQuery) bool {
	if jaccard(keywordSet(e.Keywords), keywordSet(queryTerms(q))) > 0 {
		return true
	}
	for _, pattern := range e.Patterns {
		for _, path := range q.FilePaths {
			if ok, _ := filepath.Match(pattern, path); ok {
				return true
			}
		}
	}
	return false
}

func queryTerms(q ports.KnowledgeQuery) []string {
	terms := append([]string{}, q.Keywords...)
	terms = append(terms, strings.Fields(strings.ToLower(q.Description))...)
	return terms
}

// scoreAndFilter keeps entries with nonzero keyword overlap or a glob
// pattern matching a touched file path, sorted highest-overlap first;
// ties keep priority as the secondary key.
func scoreAndFilter(entries []ports.KnowledgeEntry, q ports.KnowledgeQuery) []ports.KnowledgeEntry {
	type scored struct {
		entry ports.KnowledgeEntry
		score float64
	}
	terms := keywordSet(queryTerms(q))

	var out []scored
	for _, e := range entries {
		s := jaccard(keywordSet(e.Keywords), terms)
		hit := s > 0
		for _, pattern := range e.Patterns {
			for _, path := range q.FilePaths {
				if ok, _ := filepath.Match(pattern, path); ok {
					hit = true
				}
			}
		}
		if !hit {
			continue
		}
		out = append(out, scored{entry: e, score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return priorityRank(out[i].entry.Priority) < priorityRank(out[j].entry.Priority)
	})

	result := make([]ports.KnowledgeEntry, len(out))
	for i, s := range out {
		result[i] = s.entry
	}
	return result
}

func priorityRank(p ports.KnowledgePriority) int {
	switch p {
	case ports.PriorityCritical:
		return 0
	case ports.PriorityHigh:
		return 1
	case ports.PriorityMedium:
		return 2
	default:
		return 3
	}
}

func capEntries(entries []ports.KnowledgeEntry, max int) []ports.KnowledgeEntry {
	if len(entries) > max {
		return entries[:max]
	}
	return entries
}

func keywordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// jaccard is |A∩B| / |A∪B|, the set-similarity measure used throughout
// / for keyword overlap.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
