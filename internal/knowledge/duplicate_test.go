package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDuplicate_NearIdenticalTitleIsDuplicate(t *testing.T) {
	candidates := []DuplicateCandidate{
		{ID: "a", Title: "flaky test in auth suite", Keywords: []string{"auth", "flaky"}},
	}
	results := DetectDuplicate("flaky test in auth suite", []string{"auth", "flaky"}, candidates)
	assert.Equal(t, VerdictDuplicate, results[0].Verdict)
}

func TestDetectDuplicate_UnrelatedTitleIsDistinct(t *testing.T) {
	candidates := []DuplicateCandidate{
		{ID: "a", Title: "database connection pool exhaustion", Keywords: []string{"db", "pool"}},
	}
	results := DetectDuplicate("update the onboarding docs", []string{"docs"}, candidates)
	assert.Equal(t, VerdictDistinct, results[0].Verdict)
}

func TestDetectDuplicate_PartialOverlapIsAmbiguous(t *testing.T) {
	candidates := []DuplicateCandidate{
		{ID: "a", Title: "retry logic for flaky network calls", Keywords: []string{"retry", "network"}},
	}
	results := DetectDuplicate("flaky network call handling", []string{"network"}, candidates)
	assert.Equal(t, VerdictAmbiguous, results[0].Verdict)
}

func TestDiceBigram_IdenticalStringsScoreOne(t *testing.T) {
	assert.InDelta(t, 1.0, diceBigram("same string", "same string"), 1e-9)
}

func TestDiceBigram_EmptyStringScoresZero(t *testing.T) {
	assert.Zero(t, diceBigram("", "anything"))
}
