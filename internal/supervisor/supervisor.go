// Package supervisor implements the Scrum-Master Supervisor: a
// state machine layered over the Issue-to-Merge Engine that adds risk
// assessment, a pre-task knowledge check, human approval, a bounded
// implementation/review retry loop, and post-success learning capture.
package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/knowledge"
	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// Planner produces an enriched development plan for a task, via the full
// coding agent or the cheaper LLM-only path.
type Planner interface {
	GeneratePlan(ctx context.Context, issueTitle, issueBody, contextText string) (*model.DevelopmentPlan, error)
}

// Implementer drives one implementation attempt and reports the outcome.
// reviewFeedback is empty on the first attempt and carries prior review
// notes on a retry.
type Implementer interface {
	Implement(ctx context.Context, plan *model.DevelopmentPlan, reviewFeedback string) (ports.AgentResult, error)
}

// ReviewResult is QualityReviewer's scored verdict.
type ReviewResult struct {
	Score float64 // 0..1; below Config.ReviewThreshold re-enters IMPLEMENTING
	Feedback string
}

// QualityReviewer inspects an implementation result against the plan and
// produces a score plus feedback text to feed a retry prompt.
type QualityReviewer interface {
	Review(ctx context.Context, plan *model.DevelopmentPlan, result ports.AgentResult) (ReviewResult, error)
}

// LearningCapture persists a success/failure learning once a task reaches
// a terminal state.
type LearningCapture interface {
	Capture(ctx context.Context, entry ports.KnowledgeEntry) error
}

// Config bounds the Supervisor's retry loop and approval gate.
type Config struct {
	MaxRetries int
	ReviewThreshold float64
	AutoApproveLowRisk bool
}

// Supervisor is the Scrum-Master state machine.
type Supervisor struct {
	cfg Config
	planner Planner
	impl Implementer
	reviewer QualityReviewer
	checker *knowledge.Checker
	ui ports.UserInterface
	learning LearningCapture
	log *zap.Logger
	listeners []Listener
}

func New(cfg Config, planner Planner, impl Implementer, reviewer QualityReviewer, checker *knowledge.Checker, ui ports.UserInterface, learning LearningCapture, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{cfg: cfg, planner: planner, impl: impl, reviewer: reviewer, checker: checker, ui: ui, learning: learning, log: log}
}

// OnEvent registers a listener invoked for every event any ScrumContext
// driven by this Supervisor publishes.
func (s *Supervisor) OnEvent(l Listener) { s.listeners = append(s.listeners, l) }

func (s *Supervisor) publish(sc *ScrumContext, evType EventType, from, to State, detail string) {
	sc.record(evType, from, to, detail)
	ev := Event{Type: evType, From: from, To: to, Detail: detail}
	for _, l := range s.listeners {
		l(ev)
	}
}

func (s *Supervisor) transition(sc *ScrumContext, to State, detail string) {
	from := sc.CurrentState
	sc.CurrentState = to
	s.publish(sc, EventStateTransition, from, to, detail)
}

// TaskInput carries the information the PLANNING stage needs, distinct
// from model.Issue so the Supervisor has no direct platform dependency.
type TaskInput struct {
	IssueNumber int
	Title string
	Body string
	ContextText string
	ProjectID string
	AgentType string
}

// Run drives one task through PLANNING -> ... -> COMPLETED/FAILED.
func (s *Supervisor) Run(ctx context.Context, task TaskInput) (*ScrumContext, error) {
	sc := newScrumContext(task.Title, nil)
	s.publish(sc, EventTaskReceived, StateIdle, StateIdle, task.Title)

	if err := s.plan(ctx, sc, task); err != nil {
		return s.terminalFail(sc, err), err
	}

	if err := s.checkKnowledge(ctx, sc, task); err != nil {
		return s.terminalFail(sc, err), err
	}

	if err := s.approve(ctx, sc); err != nil {
		return s.terminalFail(sc, err), err
	}

	result, err := s.implementWithRetries(ctx, sc)
	if err != nil {
		return s.terminalFail(sc, err), err
	}

	if err := s.captureSuccess(ctx, sc, task); err != nil {
		s.log.Warn("learning capture failed", zap.Error(err))
	}

	s.transition(sc, StateCompleted, "")
	_ = result
	return sc, nil
}

func (s *Supervisor) plan(ctx context.Context, sc *ScrumContext, task TaskInput) error {
	s.transition(sc, StatePlanning, "")
	plan, err := s.planner.GeneratePlan(ctx, task.Title, task.Body, task.ContextText)
	if err != nil {
		return err
	}
	plan.IssueNumber = task.IssueNumber
	sc.Plan = plan
	sc.Risk = AssessRisk(plan)
	return nil
}

func (s *Supervisor) checkKnowledge(ctx context.Context, sc *ScrumContext, task TaskInput) error {
	if s.checker == nil {
		return nil
	}
	paths := make([]string, 0, len(sc.Plan.FileChanges))
	for _, fc := range sc.Plan.FileChanges {
		paths = append(paths, fc.Path)
	}
	result, err := s.checker.Check(ctx, ports.KnowledgeQuery{
		TaskType: "implementation",
		Description: sc.Plan.Summary + " " + sc.Plan.Approach,
		ProjectID: task.ProjectID,
		AgentType: task.AgentType,
		FilePaths: paths,
	})
	if err != nil {
		return err
	}
	sc.Knowledge = result
	if !result.CanProceed {
		return &apperr.ApprovalDeniedError{Reason: "blocked by critical-priority knowledge prohibition"}
	}
	return nil
}

func (s *Supervisor) approve(ctx context.Context, sc *ScrumContext) error {
	s.transition(sc, StateAwaitingApproval, "")

	if sc.Risk == ports.RiskLow && s.cfg.AutoApproveLowRisk {
		return nil
	}
	if s.ui == nil {
		return apperr.New(apperr.Configuration, "no_user_interface", "approval required but no UserInterface configured", nil)
	}

	s.publish(sc, EventApprovalRequested, sc.CurrentState, sc.CurrentState, string(sc.Risk))
	approved, reason, err := s.ui.RequestApproval(ctx, sc.Plan, sc.Risk, sc.Knowledge)
	if err != nil {
		return apperr.New(apperr.TransientTransport, "approval_request_failed", "request approval", err)
	}
	if !approved {
		return &apperr.ApprovalDeniedError{Reason: reason}
	}
	return nil
}

// implementWithRetries drives IMPLEMENTING → REVIEWING, looping back to
// IMPLEMENTING with review feedback appended until the review score
// clears cfg.ReviewThreshold or the retry budget is exhausted.
func (s *Supervisor) implementWithRetries(ctx context.Context, sc *ScrumContext) (ports.AgentResult, error) {
	var feedback string
	for {
		s.transition(sc, StateImplementing, fmt.Sprintf("attempt %d", sc.RetryCount+1))
		s.publish(sc, EventImplementationStart, sc.CurrentState, sc.CurrentState, "")

		result, err := s.impl.Implement(ctx, sc.Plan, feedback)
		if err != nil {
			if sc.RetryCount >= s.cfg.MaxRetries {
				return ports.AgentResult{}, &apperr.ImplementationFailedError{Reason: err.Error()}
			}
			sc.RetryCount++
			feedback = err.Error()
			continue
		}

		if s.reviewer == nil {
			return result, nil
		}

		s.transition(sc, StateReviewing, "")
		review, err := s.reviewer.Review(ctx, sc.Plan, result)
		if err != nil {
			return ports.AgentResult{}, err
		}
		sc.ReviewScore = review.Score
		s.publish(sc, EventReviewCompleted, sc.CurrentState, sc.CurrentState, fmt.Sprintf("score=%.2f", review.Score))

		if review.Score >= s.cfg.ReviewThreshold {
			return result, nil
		}
		if sc.RetryCount >= s.cfg.MaxRetries {
			return ports.AgentResult{}, &apperr.ImplementationFailedError{Reason: "review score below threshold after retry budget exhausted"}
		}
		sc.RetryCount++
		feedback = review.Feedback
	}
}

func (s *Supervisor) captureSuccess(ctx context.Context, sc *ScrumContext, task TaskInput) error {
	if s.learning == nil {
		return nil
	}
	entry := ports.KnowledgeEntry{
		Kind: ports.KindLearning,
		Priority: ports.PriorityLow,
		Title: fmt.Sprintf("Completed: %s", sc.Plan.Summary),
		Description: sc.Plan.Approach,
		ProjectID: task.ProjectID,
	}
	if err := s.learning.Capture(ctx, entry); err != nil {
		return err
	}
	s.publish(sc, EventLearningCaptured, sc.CurrentState, sc.CurrentState, entry.Title)
	return nil
}

func (s *Supervisor) terminalFail(sc *ScrumContext, err error) *ScrumContext {
	s.publish(sc, EventError, sc.CurrentState, StateFailed, err.Error())
	sc.CurrentState = StateFailed
	return sc
}

// Cancel transitions a running task to CANCELLED; it is a terminal,
// externally-triggered input.
func (s *Supervisor) Cancel(sc *ScrumContext, reason string) {
	s.transition(sc, StateCancelled, reason)
}

// Pause preserves context for a later Resume; PAUSED is an externally
// triggered input distinct from any retry/failure path.
func (s *Supervisor) Pause(sc *ScrumContext, reason string) {
	s.transition(sc, StatePaused, reason)
}

// Resume returns a paused task to its prior working state so Run's retry
// loop can continue.
func (s *Supervisor) Resume(sc *ScrumContext, to State) {
	s.transition(sc, to, "resumed")
}
