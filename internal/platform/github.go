// Package platform implements ports.GitPlatform against a real code-hosting
// API: github.go talks to the GitHub REST API via google/go-github,
// mapper.go translates its response DTOs into the core model, and
// ratelimit.go wraps every call with the retry/backoff policy
// requires for rate-limited and transiently-failing responses.
package platform

import (
	"context"
	"fmt"

	"github.com/google/go-github/v74/github"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// GitHub implements ports.GitPlatform against the GitHub REST API.
type GitHub struct {
	client *github.Client
	owner string
	repo string
	retry RetryPolicy
}

func NewGitHub(client *github.Client, owner, repo string, retry RetryPolicy) *GitHub {
	return &GitHub{client: client, owner: owner, repo: repo, retry: retry}
}

func (g *GitHub) GetRepository(ctx context.Context) (string, string, error) {
	err := withRateLimit(ctx, g.retry, func() error {
		_, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return g.owner, g.repo, nil
}

func (g *GitHub) GetBranch(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := withRateLimit(ctx, g.retry, func() error {
		_, resp, err := g.client.Repositories.GetBranch(ctx, g.owner, g.repo, name, 0)
		if err != nil {
			if resp != nil && resp.StatusCode == 404 {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (g *GitHub) CreateBranch(ctx context.Context, name, from string) error {
	return withRateLimit(ctx, g.retry, func() error {
		ref, _, err := g.client.Git.GetRef(ctx, g.owner, g.repo, "refs/heads/"+from)
		if err != nil {
			return fmt.Errorf("resolve base ref %q: %w", from, err)
		}
		newRef := &github.Reference{
			Ref: github.Ptr("refs/heads/" + name),
			Object: &github.GitObject{SHA: ref.Object.SHA},
		}
		_, _, err = g.client.Git.CreateRef(ctx, g.owner, g.repo, newRef)
		return err
	})
}

func (g *GitHub) DeleteBranch(ctx context.Context, name string) error {
	return withRateLimit(ctx, g.retry, func() error {
		_, err := g.client.Git.DeleteRef(ctx, g.owner, g.repo, "refs/heads/"+name)
		return err
	})
}

func (g *GitHub) GetIssue(ctx context.Context, number int) (*model.Issue, error) {
	var issue *model.Issue
	err := withRateLimit(ctx, g.retry, func() error {
		raw, _, err := g.client.Issues.Get(ctx, g.owner, g.repo, number)
		if err != nil {
			return err
		}
		comments, _, err := g.client.Issues.ListComments(ctx, g.owner, g.repo, number, nil)
		if err != nil {
			return err
		}
		issue = mapIssue(raw, comments)
		return nil
	})
	return issue, err
}

func (g *GitHub) ListIssues(ctx context.Context, includeLabels, excludeLabels []string) ([]model.Issue, error) {
	var out []model.Issue
	err := withRateLimit(ctx, g.retry, func() error {
		opts := &github.IssueListByRepoOptions{
			State: "open",
			Labels: includeLabels,
			ListOptions: github.ListOptions{PerPage: 100},
		}
		raw, _, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return err
		}
		excluded := toSet(excludeLabels)
		for _, r := range raw {
			if r.IsPullRequest() {
				continue
			}
			mapped := mapIssue(r, nil)
			if hasAny(mapped, excluded) {
				continue
			}
			out = append(out, *mapped)
		}
		return nil
	})
	return out, err
}

func (g *GitHub) UpdateIssue(ctx context.Context, number int, patch ports.IssuePatch) error {
	return withRateLimit(ctx, g.retry, func() error {
		req := &github.IssueRequest{}
		if patch.State != nil {
			req.State = github.Ptr(string(*patch.State))
		}
		if patch.Labels != nil {
			req.Labels = &patch.Labels
		}
		_, _, err := g.client.Issues.Edit(ctx, g.owner, g.repo, number, req)
		return err
	})
}

func (g *GitHub) AddIssueComment(ctx context.Context, number int, body string) error {
	return withRateLimit(ctx, g.retry, func() error {
		_, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &github.IssueComment{Body: &body})
		return err
	})
}

func (g *GitHub) AssignIssue(ctx context.Context, number int, assignee string) error {
	return withRateLimit(ctx, g.retry, func() error {
		_, _, err := g.client.Issues.AddAssignees(ctx, g.owner, g.repo, number, []string{assignee})
		return err
	})
}

func (g *GitHub) CreatePR(ctx context.Context, in ports.CreatePRInput) (*model.PullRequest, error) {
	var pr *model.PullRequest
	err := withRateLimit(ctx, g.retry, func() error {
		raw, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
			Title: github.Ptr(in.Title),
			Body: github.Ptr(in.Body),
			Head: github.Ptr(in.Head),
			Base: github.Ptr(in.Base),
		})
		if err != nil {
			return err
		}
		if len(in.Labels) > 0 {
			if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.owner, g.repo, raw.GetNumber(), in.Labels); err != nil {
				return err
			}
		}
		pr = mapPullRequest(raw)
		return nil
	})
	return pr, err
}

func (g *GitHub) GetPR(ctx context.Context, number int) (*model.PullRequest, error) {
	var pr *model.PullRequest
	err := withRateLimit(ctx, g.retry, func() error {
		raw, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
		if err != nil {
			return err
		}
		pr = mapPullRequest(raw)
		return nil
	})
	return pr, err
}

func (g *GitHub) UpdatePR(ctx context.Context, number int, patch ports.PRPatch) error {
	return withRateLimit(ctx, g.retry, func() error {
		req := &github.PullRequest{}
		if patch.State != nil {
			req.State = github.Ptr(string(*patch.State))
		}
		_, _, err := g.client.PullRequests.Edit(ctx, g.owner, g.repo, number, req)
		if err != nil {
			return err
		}
		if patch.Labels != nil {
			_, _, err = g.client.Issues.ReplaceLabelsForIssue(ctx, g.owner, g.repo, number, *patch.Labels)
		}
		return err
	})
}

func (g *GitHub) MergePR(ctx context.Context, number int, method model.MergeMethod) error {
	return withRateLimit(ctx, g.retry, func() error {
		_, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, "", &github.PullRequestOptions{
			MergeMethod: string(method),
		})
		return err
	})
}

func (g *GitHub) AddPRComment(ctx context.Context, number int, body string) error {
	return g.AddIssueComment(ctx, number, body)
}

func (g *GitHub) GetCIStatus(ctx context.Context, sha string) (model.CIStatus, error) {
	var status model.CIStatus
	err := withRateLimit(ctx, g.retry, func() error {
		combined, _, err := g.client.Repositories.GetCombinedStatus(ctx, g.owner, g.repo, sha, nil)
		if err != nil {
			return err
		}
		checks, _, err := g.client.Checks.ListCheckRunsForRef(ctx, g.owner, g.repo, sha, nil)
		if err != nil {
			return err
		}
		status = deriveCIStatus(combined, checks)
		return nil
	})
	return status, err
}

func (g *GitHub) ListCommits(ctx context.Context, branch string) ([]string, error) {
	var shas []string
	err := withRateLimit(ctx, g.retry, func() error {
		commits, _, err := g.client.Repositories.ListCommits(ctx, g.owner, g.repo, &github.CommitsListOptions{
			SHA: branch,
			ListOptions: github.ListOptions{PerPage: 100},
		})
		if err != nil {
			return err
		}
		for _, c := range commits {
			shas = append(shas, c.GetSHA())
		}
		return nil
	})
	return shas, err
}

func toSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}

func hasAny(issue *model.Issue, set map[string]bool) bool {
	for label := range issue.Labels {
		if set[label] {
			return true
		}
	}
	return false
}

var _ ports.GitPlatform = (*GitHub)(nil)
