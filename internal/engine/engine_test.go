package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionlabs/mergebot/internal/config"
	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

func agentSuccess(output string) ports.AgentResult {
	return ports.AgentResult{Success: true, Output: output}
}

const validPlanJSON = `{"summary":"fix the retry loop","approach":"add backoff","testingStrategy":"unit tests",` +
	`"files":[{"path":"internal/retry.go","action":"modify","description":"add backoff"}],` +
	`"estimatedComplexity":"low","risks":[]}`

func newTestEngine(platform *fakePlatform, agent *fakeAgent) *Engine {
	cfg := config.EngineConfig{
		ApprovalMode: config.ApprovalAuto,
		CIPollIntervalMs: 1,
		CIDeadlineMs: 50,
		MergeMethod: "squash",
	}
	return New(cfg, platform, agent, nil, nil)
}

func TestRunOnce_FullHappyPathMergesPR(t *testing.T) {
	platform := newFakePlatform()
	platform.issues = []model.Issue{
		{Number: 42, Title: "flaky retry logic", Body: "retries fail under load", CreatedAt: time.Now()},
	}
	agent := &fakeAgent{
		planResult: agentSuccess(validPlanJSON),
		implResult: agentSuccess("implemented"),
	}

	e := newTestEngine(platform, agent)
	err := e.RunOnce(t.Context(), nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, model.StateIdle, e.State())
	assert.Len(t, platform.merged, 1)
	assert.Contains(t, platform.closedIssues, 42)
	assert.Contains(t, platform.commits, "feature/42-flaky-retry-logic", "branch was created")
	assert.False(t, platform.branches["feature/42-flaky-retry-logic"], "branch is deleted after merge")
}

func TestRunOnce_NoQualifyingIssueReturnsToIdle(t *testing.T) {
	platform := newFakePlatform()
	agent := &fakeAgent{}

	e := newTestEngine(platform, agent)
	err := e.RunOnce(t.Context(), nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, e.State())
}

func TestRunOnce_BranchCollisionAppendsSuffix(t *testing.T) {
	platform := newFakePlatform()
	platform.branches["feature/42-flaky-retry-logic"] = true
	platform.issues = []model.Issue{
		{Number: 42, Title: "flaky retry logic", Body: "retries fail", CreatedAt: time.Now()},
	}
	agent := &fakeAgent{
		planResult: agentSuccess(validPlanJSON),
		implResult: agentSuccess("implemented"),
	}

	e := newTestEngine(platform, agent)
	require.NoError(t, e.RunOnce(t.Context(), nil, nil, ""))
	assert.Contains(t, platform.commits, "feature/42-flaky-retry-logic-1", "suffixed branch was created")
}

func TestRunOnce_CIFailureLeavesPROpenAndResetsToIdle(t *testing.T) {
	platform := newFakePlatform()
	platform.ciStatus = model.CIStatus{State: model.CIStateFailure, Failure: 1}
	platform.issues = []model.Issue{
		{Number: 7, Title: "add caching", Body: "cache results", CreatedAt: time.Now()},
	}
	agent := &fakeAgent{
		planResult: agentSuccess(validPlanJSON),
		implResult: agentSuccess("implemented"),
	}

	e := newTestEngine(platform, agent)
	err := e.RunOnce(t.Context(), nil, nil, "")
	require.Error(t, err)
	assert.Empty(t, platform.merged)
	assert.Equal(t, model.StateIdle, e.State())
}

func TestRunOnce_PlanGenerationFailureResetsToIdle(t *testing.T) {
	platform := newFakePlatform()
	platform.issues = []model.Issue{
		{Number: 7, Title: "add caching", Body: "cache results", CreatedAt: time.Now()},
	}
	agent := &fakeAgent{planResult: agentSuccess("not json")}

	e := newTestEngine(platform, agent)
	err := e.RunOnce(t.Context(), nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, model.StateIdle, e.State())
}

func TestRunOnce_ManualApprovalDeniedFails(t *testing.T) {
	platform := newFakePlatform()
	platform.issues = []model.Issue{
		{Number: 7, Title: "add caching", Body: "cache results", CreatedAt: time.Now()},
	}
	agent := &fakeAgent{planResult: agentSuccess(validPlanJSON)}

	cfg := config.EngineConfig{ApprovalMode: config.ApprovalManual, CIPollIntervalMs: 1, CIDeadlineMs: 50}
	e := New(cfg, platform, agent, autoApproveResolver{approved: false}, nil)
	err := e.RunOnce(t.Context(), nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, model.StateIdle, e.State())
}

func TestExtractIssueRefs_ParsesHashNumbers(t *testing.T) {
	refs := extractIssueRefs("see #12 and also #34, related to #12")
	assert.Equal(t, []int{12, 34, 12}, refs)
}
