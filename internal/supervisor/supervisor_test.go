package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

type fakePlanner struct {
	plan *model.DevelopmentPlan
	err error
}

func (f fakePlanner) GeneratePlan(ctx context.Context, title, body, contextText string) (*model.DevelopmentPlan, error) {
	return f.plan, f.err
}

type fakeImplementer struct {
	failUntilAttempt int
	attempts int
}

func (f *fakeImplementer) Implement(ctx context.Context, plan *model.DevelopmentPlan, feedback string) (ports.AgentResult, error) {
	f.attempts++
	if f.attempts <= f.failUntilAttempt {
		return ports.AgentResult{}, errors.New("transient implementation error")
	}
	return ports.AgentResult{Success: true, Output: "done"}, nil
}

type scriptedReviewer struct {
	scores []float64
	i int
}

func (r *scriptedReviewer) Review(ctx context.Context, plan *model.DevelopmentPlan, result ports.AgentResult) (ReviewResult, error) {
	s := r.scores[r.i]
	if r.i < len(r.scores)-1 {
		r.i++
	}
	return ReviewResult{Score: s, Feedback: "improve error handling"}, nil
}

type fakeUI struct {
	approved bool
	reason string
}

func (u fakeUI) RequestApproval(ctx context.Context, plan *model.DevelopmentPlan, risk ports.RiskLevel, knowledge ports.KnowledgeCheckResult) (bool, string, error) {
	return u.approved, u.reason, nil
}

type fakeLearning struct{ captured []ports.KnowledgeEntry }

func (f *fakeLearning) Capture(ctx context.Context, entry ports.KnowledgeEntry) error {
	f.captured = append(f.captured, entry)
	return nil
}

func lowRiskPlan() *model.DevelopmentPlan {
	return &model.DevelopmentPlan{
		Summary: "fix flaky retry test",
		Approach: "add jitter",
		FileChanges: []model.FileChange{{Path: "internal/retry.go", Action: model.FileActionModify}},
	}
}

func TestRun_AutoApprovesLowRiskAndCompletes(t *testing.T) {
	learning := &fakeLearning{}
	sup := New(Config{MaxRetries: 2, ReviewThreshold: 0.7, AutoApproveLowRisk: true},
		fakePlanner{plan: lowRiskPlan()}, &fakeImplementer{}, &scriptedReviewer{scores: []float64{0.9}},
		nil, fakeUI{approved: false}, learning, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "fix flaky retry test"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sc.CurrentState)
	assert.Len(t, learning.captured, 1)
}

func TestRun_HighRiskRequiresApprovalAndFailsWhenDenied(t *testing.T) {
	plan := &model.DevelopmentPlan{
		Summary: "rework migrations",
		FileChanges: []model.FileChange{{Path: "db/migrations/0002.sql", Action: model.FileActionCreate}},
	}
	sup := New(Config{MaxRetries: 1, ReviewThreshold: 0.7, AutoApproveLowRisk: true},
		fakePlanner{plan: plan}, &fakeImplementer{}, &scriptedReviewer{scores: []float64{0.9}},
		nil, fakeUI{approved: false, reason: "too risky"}, nil, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "rework migrations"})
	require.Error(t, err)
	assert.Equal(t, StateFailed, sc.CurrentState)
}

func TestRun_RetriesImplementationUntilSuccess(t *testing.T) {
	impl := &fakeImplementer{failUntilAttempt: 1}
	sup := New(Config{MaxRetries: 2, ReviewThreshold: 0.5, AutoApproveLowRisk: true},
		fakePlanner{plan: lowRiskPlan()}, impl, &scriptedReviewer{scores: []float64{0.9}},
		nil, fakeUI{approved: true}, nil, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sc.CurrentState)
	assert.Equal(t, 2, impl.attempts)
	assert.Equal(t, 1, sc.RetryCount)
}

func TestRun_ExhaustsRetryBudgetAndFails(t *testing.T) {
	impl := &fakeImplementer{failUntilAttempt: 99}
	sup := New(Config{MaxRetries: 1, ReviewThreshold: 0.5, AutoApproveLowRisk: true},
		fakePlanner{plan: lowRiskPlan()}, impl, &scriptedReviewer{scores: []float64{0.9}},
		nil, fakeUI{approved: true}, nil, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, StateFailed, sc.CurrentState)
}

func TestRun_LowReviewScoreTriggersRetryThenPasses(t *testing.T) {
	impl := &fakeImplementer{}
	sup := New(Config{MaxRetries: 2, ReviewThreshold: 0.8, AutoApproveLowRisk: true},
		fakePlanner{plan: lowRiskPlan()}, impl, &scriptedReviewer{scores: []float64{0.4, 0.9}},
		nil, fakeUI{approved: true}, nil, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sc.CurrentState)
	assert.Equal(t, 1, sc.RetryCount)
	assert.Equal(t, 2, impl.attempts)
}

func TestRun_EventLogRecordsStateTransitions(t *testing.T) {
	sup := New(Config{MaxRetries: 1, ReviewThreshold: 0.5, AutoApproveLowRisk: true},
		fakePlanner{plan: lowRiskPlan()}, &fakeImplementer{}, &scriptedReviewer{scores: []float64{0.9}},
		nil, fakeUI{approved: true}, nil, nil)

	sc, err := sup.Run(t.Context(), TaskInput{Title: "x"})
	require.NoError(t, err)

	var sawPlanning, sawCompleted bool
	for _, ev := range sc.Events() {
		if ev.Type == EventStateTransition && ev.To == StatePlanning {
			sawPlanning = true
		}
		if ev.Type == EventStateTransition && ev.To == StateCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawPlanning)
	assert.True(t, sawCompleted)
}
