// Package ports declares the external collaborator contracts: interfaces
// the core consumes but never owns the implementation of (vector store,
// embeddings, knowledge persistence, git platform, agent subprocess, user
// approval surface). Concrete adapters live in the packages that need
// them; this package only hosts the seams.
package ports

import (
	"context"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// VectorMatch is one hit returned by a vector-store similarity search.
type VectorMatch struct {
	ID string
	Score float64
	Content string
	Metadata map[string]any
}

// VectorSearchParams mirrors IVectorStore.search's {embedding, topK,
// scoreThreshold, filter} parameter object.
type VectorSearchParams struct {
	Embedding []float32
	TopK int
	ScoreThreshold float64
	Filter map[string]any
}

// VectorStore is the external vector-database port. Its implementation
// (driver, wire protocol) is explicitly out of scope; the core only
// calls Search.
type VectorStore interface {
	Search(ctx context.Context, collection string, params VectorSearchParams) ([]VectorMatch, error)
}

// EmbeddingService is the external embedding-model port.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeEntryKind enumerates a KnowledgeEntry's kind.
type KnowledgeEntryKind string

const (
	KindProhibition KnowledgeEntryKind = "prohibition"
	KindRecommendation KnowledgeEntryKind = "recommendation"
	KindLearning KnowledgeEntryKind = "learning"
)

// KnowledgePriority enumerates a KnowledgeEntry's priority.
type KnowledgePriority string

const (
	PriorityLow KnowledgePriority = "low"
	PriorityMedium KnowledgePriority = "medium"
	PriorityHigh KnowledgePriority = "high"
	PriorityCritical KnowledgePriority = "critical"
)

// KnowledgeEntry is persisted externally; the core only consumes it.
type KnowledgeEntry struct {
	ID string
	Kind KnowledgeEntryKind
	Priority KnowledgePriority
	Title string
	Description string
	Keywords []string
	Patterns []string
	ProjectID string
}

// KnowledgeQuery carries the pre-task checker's search criteria.
type KnowledgeQuery struct {
	TaskType string
	Description string
	ProjectID string
	AgentType string
	FilePaths []string
	Technologies []string
	Keywords []string
}

// KnowledgeStore is the external knowledge persistence port.
type KnowledgeStore interface {
	FetchProhibitions(ctx context.Context, q KnowledgeQuery) ([]KnowledgeEntry, error)
	FetchRecommendations(ctx context.Context, q KnowledgeQuery) ([]KnowledgeEntry, error)
	FetchLearnings(ctx context.Context, q KnowledgeQuery) ([]KnowledgeEntry, error)
	SaveLearning(ctx context.Context, entry KnowledgeEntry) error
}

// CIStatusResult mirrors model.CIStatus but lives in ports so platform
// adapters can return it without importing the engine.
type CIStatusResult = model.CIStatus

// GitPlatform is IGitPlatform: every call routes through the
// adapter's own withRateLimit wrapper.
type GitPlatform interface {
	GetRepository(ctx context.Context) (owner, repo string, err error)
	GetBranch(ctx context.Context, name string) (exists bool, err error)
	CreateBranch(ctx context.Context, name, from string) error
	DeleteBranch(ctx context.Context, name string) error
	GetIssue(ctx context.Context, number int) (*model.Issue, error)
	ListIssues(ctx context.Context, includeLabels, excludeLabels []string) ([]model.Issue, error)
	UpdateIssue(ctx context.Context, number int, patch IssuePatch) error
	AddIssueComment(ctx context.Context, number int, body string) error
	AssignIssue(ctx context.Context, number int, assignee string) error
	CreatePR(ctx context.Context, in CreatePRInput) (*model.PullRequest, error)
	GetPR(ctx context.Context, number int) (*model.PullRequest, error)
	UpdatePR(ctx context.Context, number int, patch PRPatch) error
	MergePR(ctx context.Context, number int, method model.MergeMethod) error
	AddPRComment(ctx context.Context, number int, body string) error
	GetCIStatus(ctx context.Context, sha string) (model.CIStatus, error)
	ListCommits(ctx context.Context, branch string) ([]string, error)
}

// IssuePatch is a sparse update to an issue; nil fields are left untouched.
type IssuePatch struct {
	State *model.IssueState
	Labels []string
}

// PRPatch is a sparse update to a pull request.
type PRPatch struct {
	Labels *[]string
	State *model.PRState
}

// CreatePRInput carries everything needed to open a pull request.
type CreatePRInput struct {
	Title string
	Body string
	Head string
	Base string
	Labels []string
}

// AgentProgressEvent is streamed by an agent provider while it runs.
type AgentProgressEvent struct {
	Type string // "text" | "tool_use"
	Text string
	ToolName string
}

// AgentTaskConfig configures one executeTask call.
type AgentTaskConfig struct {
	Prompt string
	Model string
	MaxBudgetUsd float64
	AllowedTools []string
	BypassPermissions bool
	JSONSchema []byte
	ResumeSessionID string
	WorkingDirectory string
}

// AgentResult is the terminal outcome of executeTask.
type AgentResult struct {
	Success bool
	Output string
	CostUsd float64
	DurationMs int64
	Error string
	SessionID string
}

// AgentProvider is IAgentProvider.
type AgentProvider interface {
	ExecuteTask(ctx context.Context, cfg AgentTaskConfig, progress func(AgentProgressEvent)) (AgentResult, error)
	IsAvailable(ctx context.Context) bool
	Dispose(ctx context.Context) error
}

// RiskLevel is the Scrum-Master's three-valued blast-radius classification.
type RiskLevel string

const (
	RiskLow RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh RiskLevel = "high"
)

// KnowledgeCheckResult is the pre-task checker's output.
type KnowledgeCheckResult struct {
	CanProceed bool
	Recommendations []KnowledgeEntry
	Warnings []KnowledgeEntry
	Blockers []KnowledgeEntry
	Learnings []KnowledgeEntry
}

// UserInterface is IUserInterface: the Scrum-Master's approval seam.
type UserInterface interface {
	RequestApproval(ctx context.Context, plan *model.DevelopmentPlan, risk RiskLevel, knowledge KnowledgeCheckResult) (approved bool, reason string, err error)
}
