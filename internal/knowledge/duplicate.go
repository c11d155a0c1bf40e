package knowledge

import "strings"

// Thresholds for the three-way duplicate verdict: below
// lowThreshold the candidate is clearly distinct, above highThreshold it
// is clearly a duplicate, and the mid-band is reported as ambiguous,
// leaving the decision to the caller.
const (
	dupLowThreshold = 0.35
	dupHighThreshold = 0.75
)

// DuplicateVerdict is the three-way outcome of DetectDuplicate.
type DuplicateVerdict string

const (
	VerdictDistinct DuplicateVerdict = "distinct"
	VerdictAmbiguous DuplicateVerdict = "ambiguous"
	VerdictDuplicate DuplicateVerdict = "duplicate"
)

// DuplicateCandidate is one existing learning being compared against a
// newly captured one.
type DuplicateCandidate struct {
	ID string
	Title string
	Keywords []string
}

// DuplicateCheckResult is DetectDuplicate's verdict for one candidate.
type DuplicateCheckResult struct {
	CandidateID string
	Verdict DuplicateVerdict
	Score float64
}

// DetectDuplicate scores a new learning against every existing candidate
// by combining title similarity (Dice coefficient over character
// bigrams) with keyword similarity (Jaccard), weighted 60/40 toward
// title — titles are short and specific enough to dominate the verdict,
// while keyword overlap alone is too permissive for generic terms.
func DetectDuplicate(newTitle string, newKeywords []string, candidates []DuplicateCandidate) []DuplicateCheckResult {
	newKwSet := keywordSet(newKeywords)
	out := make([]DuplicateCheckResult, len(candidates))

	for i, c := range candidates {
		titleScore := diceBigram(newTitle, c.Title)
		keywordScore := jaccard(newKwSet, keywordSet(c.Keywords))
		combined := 0.6*titleScore + 0.4*keywordScore

		out[i] = DuplicateCheckResult{
			CandidateID: c.ID,
			Score: combined,
			Verdict: classify(combined),
		}
	}
	return out
}

func classify(score float64) DuplicateVerdict {
	switch {
	case score >= dupHighThreshold:
		return VerdictDuplicate
	case score <= dupLowThreshold:
		return VerdictDistinct
	default:
		return VerdictAmbiguous
	}
}

// diceBigram is the Sørensen-Dice coefficient over each string's
// character-bigram multiset: 2|X∩Y| / (|X|+|Y|). It tolerates minor
// wording differences ("fix flaky tests" vs "fixed flaky test") far better
// than whole-word Jaccard does.
func diceBigram(a, b string) float64 {
	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0
	}

	counts := make(map[string]int, len(bigramsB))
	for _, bg := range bigramsB {
		counts[bg]++
	}

	matches := 0
	for _, bg := range bigramsA {
		if counts[bg] > 0 {
			matches++
			counts[bg]--
		}
	}

	return 2 * float64(matches) / float64(len(bigramsA)+len(bigramsB))
}

func bigrams(s string) []string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
