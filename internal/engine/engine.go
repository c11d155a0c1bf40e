// Package engine implements the Issue-to-Merge state machine: a
// linear pipeline from issue selection through plan generation, approval,
// branching, implementation, PR creation, and CI-gated merge. On error the
// engine records context, disposes transient resources, and resets to
// IDLE so the caller's next iteration can proceed.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/config"
	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// ApprovalResolver lets an external caller (CLI prompt, HTTP endpoint)
// resolve the AWAITING_APPROVAL suspension point in manual mode.
type ApprovalResolver interface {
	Await(ctx context.Context, issueNumber int, plan *model.DevelopmentPlan) (approved bool, reason string, err error)
}

// Engine drives one EngineContext at a time; callers that want to process
// multiple issues concurrently run multiple Engine instances against
// disjoint issue sets.
type Engine struct {
	cfg config.EngineConfig
	platform ports.GitPlatform
	agent ports.AgentProvider
	approval ApprovalResolver
	log *zap.Logger

	ctx model.EngineContext
}

func New(cfg config.EngineConfig, platform ports.GitPlatform, agent ports.AgentProvider, approval ApprovalResolver, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, platform: platform, agent: agent, approval: approval, log: log, ctx: model.EngineContext{CurrentState: model.StateIdle}}
}

// State returns the engine's current state for observability.
func (e *Engine) State() model.EngineState { return e.ctx.CurrentState }

func (e *Engine) transition(s model.EngineState) {
	e.log.Debug("engine state transition", zap.String("from", string(e.ctx.CurrentState)), zap.String("to", string(s)))
	e.ctx.CurrentState = s
}

// RunOnce drives one full issue through the pipeline, from selection to
// merge (or to ERROR, which resets back to IDLE). includeLabels/excludeLabels
// filter the candidate issue pool.
func (e *Engine) RunOnce(ctx context.Context, includeLabels, excludeLabels []string, botUsername string) error {
	issue, err := e.selectIssue(ctx, includeLabels, excludeLabels, botUsername)
	if err != nil {
		return e.fail(err)
	}
	if issue == nil {
		e.transition(model.StateIdle)
		return nil
	}

	contextText, err := e.analyzeIssue(ctx, issue)
	if err != nil {
		return e.fail(err)
	}

	plan, err := e.generatePlan(ctx, issue, contextText)
	if err != nil {
		return e.fail(err)
	}

	if err := e.awaitApproval(ctx, issue, plan); err != nil {
		return e.fail(err)
	}

	branch, err := e.createBranch(ctx, issue, plan)
	if err != nil {
		return e.fail(err)
	}

	result, err := e.implementCode(ctx, issue, plan, branch)
	if err != nil {
		return e.fail(err)
	}

	pr, err := e.createPR(ctx, issue, plan, branch, result)
	if err != nil {
		return e.fail(err)
	}

	if err := e.monitorAndMerge(ctx, issue, pr); err != nil {
		return e.fail(err)
	}

	e.transition(model.StateCompleted)
	e.transition(model.StateIdle)
	e.ctx = model.EngineContext{CurrentState: model.StateIdle}
	return nil
}

func (e *Engine) fail(err error) error {
	e.log.Error("engine iteration failed", zap.Error(err), zap.String("state", string(e.ctx.CurrentState)))
	e.transition(model.StateError)
	if e.agent != nil {
		_ = e.agent.Dispose(context.Background())
	}
	e.ctx = model.EngineContext{CurrentState: model.StateIdle}
	return err
}

// selectIssue lists open issues matching the label filters, picks the
// oldest by creation time, assigns the bot user if configured, and posts a
// start-of-work comment.
func (e *Engine) selectIssue(ctx context.Context, includeLabels, excludeLabels []string, botUsername string) (*model.Issue, error) {
	e.transition(model.StateSelectingIssue)

	issues, err := e.platform.ListIssues(ctx, includeLabels, excludeLabels)
	if err != nil {
		return nil, apperr.New(apperr.TransientTransport, "select_issue_list_failed", "list issues", err)
	}
	if len(issues) == 0 {
		return nil, nil
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].CreatedAt.Before(issues[j].CreatedAt) })
	picked := issues[0]
	e.ctx.CurrentIssue = &picked

	if botUsername != "" {
		if err := e.platform.AssignIssue(ctx, picked.Number, botUsername); err != nil {
			e.log.Warn("assign issue failed", zap.Int("issue", picked.Number), zap.Error(err))
		}
	}
	if err := e.platform.AddIssueComment(ctx, picked.Number, "Engine has started working on this issue."); err != nil {
		e.log.Warn("start comment failed", zap.Int("issue", picked.Number), zap.Error(err))
	}

	return &picked, nil
}

// analyzeIssue assembles a text context from the issue body, its comments,
// and any inline "#<number>" references resolved to titles.
func (e *Engine) analyzeIssue(ctx context.Context, issue *model.Issue) (string, error) {
	e.transition(model.StateAnalyzing)

	var b strings.Builder
	b.WriteString(issue.Body)
	for _, c := range issue.Comments {
		fmt.Fprintf(&b, "\n\n[comment by %s]\n%s", c.Author, c.Body)
	}

	for _, ref := range extractIssueRefs(issue.Body) {
		if ref == issue.Number {
			continue
		}
		related, err := e.platform.GetIssue(ctx, ref)
		if err != nil {
			continue // best-effort enrichment; a missing related issue is not fatal
		}
		fmt.Fprintf(&b, "\n\n[related #%d] %s", ref, related.Title)
	}

	return b.String(), nil
}

func extractIssueRefs(body string) []int {
	var refs []int
	for i := 0; i < len(body); i++ {
		if body[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j > i+1 {
			var n int
			fmt.Sscanf(body[i+1:j], "%d", &n)
			refs = append(refs, n)
			i = j
		}
	}
	return refs
}

// generatePlan asks the Agent Provider for a DevelopmentPlan using a
// planning prompt and a JSON schema.
func (e *Engine) generatePlan(ctx context.Context, issue *model.Issue, contextText string) (*model.DevelopmentPlan, error) {
	e.transition(model.StateGeneratingPlan)

	prompt := fmt.Sprintf("Produce a development plan for issue #%d: %s\n\n%s\n\nContext:\n%s",
		issue.Number, issue.Title, issue.Body, contextText)

	result, err := e.agent.ExecuteTask(ctx, ports.AgentTaskConfig{
		Prompt: prompt,
		JSONSchema: planJSONSchema,
	}, nil)
	if err != nil {
		return nil, &apperr.PlanGenerationError{Reason: err.Error()}
	}
	if !result.Success {
		return nil, &apperr.PlanGenerationError{Reason: result.Error}
	}

	plan, err := parsePlan(result.Output)
	if err != nil {
		return nil, &apperr.PlanGenerationError{Reason: "unparseable plan: " + err.Error()}
	}
	plan.IssueNumber = issue.Number
	e.ctx.CurrentPlan = plan
	return plan, nil
}

// awaitApproval is a no-op in auto mode; in manual mode it blocks on the
// configured ApprovalResolver.
func (e *Engine) awaitApproval(ctx context.Context, issue *model.Issue, plan *model.DevelopmentPlan) error {
	e.transition(model.StateAwaitingApproval)

	if e.cfg.ApprovalMode != config.ApprovalManual {
		return nil
	}
	if e.approval == nil {
		return apperr.New(apperr.Configuration, "no_approval_resolver", "manual approval mode requires an ApprovalResolver", nil)
	}

	approved, reason, err := e.approval.Await(ctx, issue.Number, plan)
	if err != nil {
		return apperr.New(apperr.TransientTransport, "approval_wait_failed", "await approval", err)
	}
	if !approved {
		return &apperr.ApprovalDeniedError{Reason: reason}
	}
	return nil
}

// createBranch slugifies "feature/<issue-number>-<slug(title)>", resolving
// name collisions by appending -1, -2,... until a free name is found.
func (e *Engine) createBranch(ctx context.Context, issue *model.Issue, plan *model.DevelopmentPlan) (string, error) {
	e.transition(model.StateCreatingBranch)

	base := fmt.Sprintf("feature/%d-%s", issue.Number, slug.Make(issue.Title))
	name := base
	for attempt := 1;; attempt++ {
		exists, err := e.platform.GetBranch(ctx, name)
		if err != nil {
			return "", apperr.New(apperr.TransientTransport, "branch_check_failed", "check branch existence", err)
		}
		if !exists {
			break
		}
		name = fmt.Sprintf("%s-%d", base, attempt)
	}

	defaultBranch := "main"
	if err := e.platform.CreateBranch(ctx, name, defaultBranch); err != nil {
		return "", apperr.New(apperr.TransientTransport, "branch_create_failed", "create branch", err)
	}
	e.ctx.CurrentBranch = name
	return name, nil
}

// implementCode invokes the Agent Provider with an implementation prompt
// built from the plan and branch, streaming progress.
func (e *Engine) implementCode(ctx context.Context, issue *model.Issue, plan *model.DevelopmentPlan, branch string) (ports.AgentResult, error) {
	e.transition(model.StateImplementing)

	prompt := buildImplementationPrompt(issue, plan, branch)
	result, err := e.agent.ExecuteTask(ctx, ports.AgentTaskConfig{
		Prompt: prompt,
		MaxBudgetUsd: 0,
		WorkingDirectory: e.cfg.WorkingDirectory,
	}, func(ports.AgentProgressEvent) {})
	if err != nil {
		return ports.AgentResult{}, &apperr.ImplementationFailedError{Reason: err.Error()}
	}
	if !result.Success {
		return ports.AgentResult{}, &apperr.ImplementationFailedError{Reason: result.Error}
	}
	e.ctx.AgentSessionID = result.SessionID
	return result, nil
}

func buildImplementationPrompt(issue *model.Issue, plan *model.DevelopmentPlan, branch string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the following plan on branch %q for issue #%d.\n\n", branch, issue.Number)
	fmt.Fprintf(&b, "Summary: %s\nApproach: %s\nTesting strategy: %s\n\nFile changes:\n", plan.Summary, plan.Approach, plan.TestingStrategy)
	for _, f := range plan.FileChanges {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Action, f.Path, f.Description)
	}
	return b.String()
}

// createPR opens a pull request titled "fix: <summary> (#<issue>)" against
// main, with a body holding "Closes #<issue>", the plan summary, and any
// risk notes. The title prefix is always "fix:", and no labels are applied
// to the pull request.
func (e *Engine) createPR(ctx context.Context, issue *model.Issue, plan *model.DevelopmentPlan, branch string, result ports.AgentResult) (*model.PullRequest, error) {
	e.transition(model.StateCreatingPR)

	title := fmt.Sprintf("fix: %s (#%d)", plan.Summary, issue.Number)
	var body strings.Builder
	fmt.Fprintf(&body, "Closes #%d\n\n%s\n\n", issue.Number, plan.Summary)
	if len(plan.Risks) > 0 {
		body.WriteString("Risk notes:\n")
		for _, r := range plan.Risks {
			fmt.Fprintf(&body, "- %s\n", r)
		}
	}

	pr, err := e.platform.CreatePR(ctx, ports.CreatePRInput{
		Title: title,
		Body: body.String(),
		Head: branch,
		Base: "main",
	})
	if err != nil {
		return nil, apperr.New(apperr.TransientTransport, "create_pr_failed", "create pull request", err)
	}
	e.ctx.CurrentPR = pr
	return pr, nil
}

// monitorAndMerge polls CI status at cfg.CIPollIntervalMs until success,
// failure, or the configured deadline elapses.
func (e *Engine) monitorAndMerge(ctx context.Context, issue *model.Issue, pr *model.PullRequest) error {
	e.transition(model.StateMonitoringPR)

	pollInterval := time.Duration(e.cfg.CIPollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	deadline := time.Duration(e.cfg.CIDeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = 30 * time.Minute
	}

	commits, err := e.platform.ListCommits(ctx, pr.Head)
	if err != nil || len(commits) == 0 {
		return apperr.New(apperr.TransientTransport, "list_commits_failed", "list PR commits", err)
	}
	sha := commits[0]

	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := e.platform.GetCIStatus(ctx, sha)
		if err != nil {
			return apperr.New(apperr.TransientTransport, "ci_status_failed", "poll CI status", err)
		}

		switch status.State {
		case model.CIStateSuccess:
			return e.merge(ctx, issue, pr)
		case model.CIStateFailure:
			return &apperr.CIFailedError{PRNumber: pr.Number, Status: apperr.CIStatusSummary{
				Success: status.Success, Pending: status.Pending, Failure: status.Failure, Error: status.Error,
			}}
		}

		if time.Since(start) > deadline {
			return &apperr.CITimeoutError{PRNumber: pr.Number, WaitedMs: time.Since(start).Milliseconds()}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) merge(ctx context.Context, issue *model.Issue, pr *model.PullRequest) error {
	method := model.MergeMethod(e.cfg.MergeMethod)
	if method == "" {
		method = model.MergeMethodSquash
	}
	if err := e.platform.MergePR(ctx, pr.Number, method); err != nil {
		return apperr.New(apperr.TransientTransport, "merge_pr_failed", "merge pull request", err)
	}
	if e.ctx.CurrentBranch != "" {
		if err := e.platform.DeleteBranch(ctx, e.ctx.CurrentBranch); err != nil {
			e.log.Warn("delete branch failed", zap.String("branch", e.ctx.CurrentBranch), zap.Error(err))
		}
	}
	closed := model.IssueStateClosed
	if err := e.platform.UpdateIssue(ctx, issue.Number, ports.IssuePatch{State: &closed}); err != nil {
		e.log.Warn("close issue failed", zap.Int("issue", issue.Number), zap.Error(err))
	}
	return e.platform.AddIssueComment(ctx, issue.Number, fmt.Sprintf("Merged in PR #%d.", pr.Number))
}
