// Package rag implements the retrieval-augmented-generation ranking core
//: query processing, parallel retrieval, RRF+MMR+dedup ranking,
// token-budget assembly, and a feedback tracker.
package rag

import (
	"regexp"
	"strings"
)

// Intent is the query-processor's classification of the caller's goal.
type Intent string

const (
	IntentCodeSearch Intent = "code_search"
	IntentExplanation Intent = "explanation"
	IntentImplementation Intent = "implementation"
	IntentDebugging Intent = "debugging"
	IntentDocumentation Intent = "documentation"
	IntentRefactoring Intent = "refactoring"
	IntentGeneral Intent = "general"
)

// EntityKind enumerates what an extracted entity looks like.
type EntityKind string

const (
	EntityFilePath EntityKind = "file_path"
	EntityClass EntityKind = "class"
	EntityFunction EntityKind = "function"
	EntityPackage EntityKind = "package"
)

// Entity is one heuristically extracted mention, with a confidence score.
type Entity struct {
	Text string
	Kind EntityKind
	Confidence float64
}

// QueryProcessor expands, extracts entities from, and classifies intent
// for an incoming query.
type QueryProcessor struct {
	synonyms map[string][]string
}

// NewQueryProcessor builds a processor with the given per-token synonym
// table; a nil map falls back to a small built-in table.
func NewQueryProcessor(synonyms map[string][]string) *QueryProcessor {
	if synonyms == nil {
		synonyms = defaultSynonyms
	}
	return &QueryProcessor{synonyms: synonyms}
}

var defaultSynonyms = map[string][]string{
	"bug": {"defect", "issue", "error"},
	"fix": {"resolve", "patch", "repair"},
	"function": {"method", "routine"},
	"class": {"type", "struct"},
	"test": {"spec", "check"},
	"delete": {"remove", "drop"},
	"create": {"add", "new"},
	"update": {"modify", "change"},
	"auth": {"authentication", "authorization"},
	"config": {"configuration", "settings"},
}

// Expand returns the original query plus up to maxVariants additional
// synonym-substituted variants; the original is always first.
func (p *QueryProcessor) Expand(query string, maxVariants int) []string {
	variants := []string{query}
	tokens := strings.Fields(strings.ToLower(query))
	for _, tok := range tokens {
		syns, ok := p.synonyms[tok]
		if !ok {
			continue
		}
		for _, syn := range syns {
			if len(variants) > maxVariants {
				return variants
			}
			variants = append(variants, strings.Replace(query, tok, syn, 1))
		}
	}
	return variants
}

var (
	filePathPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_\-/]*\.[a-z]{1,5}\b`)
	pascalCasePattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*[a-z][A-Z][a-zA-Z0-9]*\b`)
	camelCasePattern = regexp.MustCompile(`\b[a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*\b`)
	scopedPkgPattern = regexp.MustCompile(`@[a-zA-Z0-9_-]+/[a-zA-Z0-9_-]+`)
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "in": {}, "of": {}, "to": {}, "and": {}, "for": {}, "on": {},
}

// ExtractEntities applies the regex heuristics: file paths,
// PascalCase class names, camelCase function names, and @scope/name
// packages, discarding common stopwords.
func (p *QueryProcessor) ExtractEntities(query string) []Entity {
	var out []Entity
	seen := map[string]bool{}

	add := func(text string, kind EntityKind, confidence float64) {
		if _, stop := stopwords[strings.ToLower(text)]; stop {
			return
		}
		key := string(kind) + ":" + text
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Entity{Text: text, Kind: kind, Confidence: confidence})
	}

	for _, m := range scopedPkgPattern.FindAllString(query, -1) {
		add(m, EntityPackage, 0.9)
	}
	for _, m := range filePathPattern.FindAllString(query, -1) {
		add(m, EntityFilePath, 0.85)
	}
	for _, m := range pascalCasePattern.FindAllString(query, -1) {
		add(m, EntityClass, 0.7)
	}
	for _, m := range camelCasePattern.FindAllString(query, -1) {
		add(m, EntityFunction, 0.65)
	}
	return out
}

var intentKeywords = map[Intent][]string{
	IntentDebugging: {"bug", "error", "crash", "fails", "failing", "broken", "exception", "panic"},
	IntentImplementation: {"implement", "add", "build", "create", "feature"},
	IntentRefactoring: {"refactor", "rename", "restructure", "cleanup", "simplify"},
	IntentDocumentation: {"document", "docs", "readme", "comment", "explain how"},
	IntentExplanation: {"explain", "why", "how does", "understand", "what is"},
	IntentCodeSearch: {"find", "search", "where is", "locate"},
}

// ClassifyIntent runs a keyword hit-map classifier; ties fall back
// to the first intent listed (a deterministic, documented choice) and no
// hits at all classify as general.
func (p *QueryProcessor) ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	best := IntentGeneral
	bestHits := 0
	for _, intent := range intentOrder {
		hits := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = intent
		}
	}
	return best
}

// intentOrder fixes iteration order so ClassifyIntent's tie-break is
// deterministic across runs.
var intentOrder = []Intent{
	IntentDebugging, IntentImplementation, IntentRefactoring,
	IntentDocumentation, IntentExplanation, IntentCodeSearch,
}
