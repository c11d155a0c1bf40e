package platform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v74/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func TestGetIssue_MapsRawIssueAndComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&github.Issue{
			Number: github.Ptr(7),
			Title: github.Ptr("fix flaky test"),
			Body: github.Ptr("the retry test flakes under load"),
			Labels: []*github.Label{{Name: github.Ptr("bug")}},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*github.IssueComment{
			{Body: github.Ptr("looking into it"), User: &github.User{Login: github.Ptr("alice")}},
		})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", DefaultRetryPolicy)
	issue, err := g.GetIssue(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "fix flaky test", issue.Title)
	_, hasBug := issue.Labels["bug"]
	assert.True(t, hasBug)
	require.Len(t, issue.Comments, 1)
	assert.Equal(t, "alice", issue.Comments[0].Author)
}

func TestGetBranch_404MeansNotExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/branches/feature-x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(&github.ErrorResponse{Message: "not found"})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", DefaultRetryPolicy)
	exists, err := g.GetBranch(t.Context(), "feature-x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithRateLimit_RetriesOn503ThenSucceeds(t *testing.T) {
	mux := http.NewServeMux()
	attempts := 0
	mux.HandleFunc("/repos/acme/widgets/branches/main", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(&github.ErrorResponse{Message: "unavailable"})
			return
		}
		json.NewEncoder(w).Encode(&github.Branch{Name: github.Ptr("main")})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	exists, err := g.GetBranch(t.Context(), "main")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, attempts)
}

func TestWithRateLimit_GivesUpAfterMaxAttempts(t *testing.T) {
	mux := http.NewServeMux()
	attempts := 0
	mux.HandleFunc("/repos/acme/widgets/branches/main", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(&github.ErrorResponse{Message: "unavailable"})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	_, err := g.GetBranch(t.Context(), "main")
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRateLimit_DoesNotRetryOnNonRetryableStatus(t *testing.T) {
	mux := http.NewServeMux()
	attempts := 0
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(&github.ErrorResponse{Message: "invalid"})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	_, err := g.GetIssue(t.Context(), 7)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestGetCIStatus_CombinesStatusesAndChecks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&github.CombinedStatus{
			Statuses: []*github.RepoStatus{{State: github.Ptr("success")}},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123/check-runs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&github.ListCheckRunsResults{
			CheckRuns: []*github.CheckRun{
				{Status: github.Ptr("completed"), Conclusion: github.Ptr("failure")},
			},
		})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", DefaultRetryPolicy)
	status, err := g.GetCIStatus(t.Context(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.CIStateFailure, status.State)
	assert.Equal(t, 1, status.Success)
	assert.Equal(t, 1, status.Failure)
}

func TestCreateBranch_ResolvesBaseRefThenCreatesNewRef(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&github.Reference{
			Ref: github.Ptr("refs/heads/main"),
			Object: &github.GitObject{SHA: github.Ptr("deadbeef")},
		})
	})
	var created *github.Reference
	mux.HandleFunc("/repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", DefaultRetryPolicy)
	err := g.CreateBranch(t.Context(), "issue-42-fix-retry", "main")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "refs/heads/issue-42-fix-retry", created.GetRef())
	assert.Equal(t, "deadbeef", created.Object.GetSHA())
}

func TestListIssues_SkipsPullRequestsAndExcludedLabels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*github.Issue{
			{Number: github.Ptr(1), Title: github.Ptr("a real issue")},
			{Number: github.Ptr(2), Title: github.Ptr("a PR"), PullRequestLinks: &github.PullRequestLinks{URL: github.Ptr("x")}},
			{Number: github.Ptr(3), Title: github.Ptr("blocked"), Labels: []*github.Label{{Name: github.Ptr("wontfix")}}},
		})
	})

	g := NewGitHub(newTestClient(t, mux), "acme", "widgets", DefaultRetryPolicy)
	issues, err := g.ListIssues(t.Context(), nil, []string{"wontfix"})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Number)
}
