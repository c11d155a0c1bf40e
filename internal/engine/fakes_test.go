package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// fakePlatform is a minimal in-memory ports.GitPlatform double used to
// drive the state machine through each scenario without a network call.
type fakePlatform struct {
	mu sync.Mutex

	issues []model.Issue
	branches map[string]bool
	prs map[int]*model.PullRequest
	nextPR int
	ciStatus model.CIStatus
	comments []string
	merged []int
	closedIssues []int
	commits map[string][]string

	createBranchErr error
	mergeErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		branches: map[string]bool{"main": true},
		prs: map[int]*model.PullRequest{},
		commits: map[string][]string{},
		ciStatus: model.CIStatus{State: model.CIStateSuccess, Success: 1},
	}
}

func (f *fakePlatform) GetRepository(ctx context.Context) (string, string, error) { return "acme", "widgets", nil }

func (f *fakePlatform) GetBranch(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name], nil
}

func (f *fakePlatform) CreateBranch(ctx context.Context, name, from string) error {
	if f.createBranchErr != nil {
		return f.createBranchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[name] = true
	f.commits[name] = []string{"sha-" + name}
	return nil
}

func (f *fakePlatform) DeleteBranch(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.branches, name)
	return nil
}

func (f *fakePlatform) GetIssue(ctx context.Context, number int) (*model.Issue, error) {
	for i := range f.issues {
		if f.issues[i].Number == number {
			return &f.issues[i], nil
		}
	}
	return nil, fmt.Errorf("issue %d not found", number)
}

func (f *fakePlatform) ListIssues(ctx context.Context, includeLabels, excludeLabels []string) ([]model.Issue, error) {
	return f.issues, nil
}

func (f *fakePlatform) UpdateIssue(ctx context.Context, number int, patch ports.IssuePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.State != nil && *patch.State == model.IssueStateClosed {
		f.closedIssues = append(f.closedIssues, number)
	}
	return nil
}

func (f *fakePlatform) AddIssueComment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakePlatform) AssignIssue(ctx context.Context, number int, assignee string) error { return nil }

func (f *fakePlatform) CreatePR(ctx context.Context, in ports.CreatePRInput) (*model.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPR++
	pr := &model.PullRequest{Number: f.nextPR, Head: in.Head, Base: in.Base, State: model.PRStateOpen}
	f.prs[pr.Number] = pr
	return pr, nil
}

func (f *fakePlatform) GetPR(ctx context.Context, number int) (*model.PullRequest, error) {
	return f.prs[number], nil
}

func (f *fakePlatform) UpdatePR(ctx context.Context, number int, patch ports.PRPatch) error { return nil }

func (f *fakePlatform) MergePR(ctx context.Context, number int, method model.MergeMethod) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, number)
	return nil
}

func (f *fakePlatform) AddPRComment(ctx context.Context, number int, body string) error {
	return f.AddIssueComment(ctx, number, body)
}

func (f *fakePlatform) GetCIStatus(ctx context.Context, sha string) (model.CIStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ciStatus, nil
}

func (f *fakePlatform) ListCommits(ctx context.Context, branch string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[branch], nil
}

var _ ports.GitPlatform = (*fakePlatform)(nil)

// fakeAgent is a scripted ports.AgentProvider double: it returns planResult
// for the planning prompt (detected by its JSONSchema) and implResult for
// everything else.
type fakeAgent struct {
	planResult ports.AgentResult
	implResult ports.AgentResult
	planErr error
	implErr error
}

func (f *fakeAgent) ExecuteTask(ctx context.Context, cfg ports.AgentTaskConfig, progress func(ports.AgentProgressEvent)) (ports.AgentResult, error) {
	if len(cfg.JSONSchema) > 0 {
		return f.planResult, f.planErr
	}
	return f.implResult, f.implErr
}

func (f *fakeAgent) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeAgent) Dispose(ctx context.Context) error { return nil }

var _ ports.AgentProvider = (*fakeAgent)(nil)

type autoApproveResolver struct{ approved bool }

func (a autoApproveResolver) Await(ctx context.Context, issueNumber int, plan *model.DevelopmentPlan) (bool, string, error) {
	return a.approved, "", nil
}
