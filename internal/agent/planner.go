package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/model"
)

// PlannerConfig selects and configures the backing LLM for LLMPlanner.
type PlannerConfig struct {
	Provider string // "anthropic" | "openai"
	Model string
	APIKey string
	Temperature float64
}

// LLMPlanner generates a DevelopmentPlan directly from an LLM call
// instead of spawning the full coding subprocess — used when the
// Scrum-Master only needs a plan to show for approval, not an
// implementation.
type LLMPlanner struct {
	llm llms.Model
	cfg PlannerConfig
}

func NewLLMPlanner(cfg PlannerConfig) (*LLMPlanner, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "openai":
		llm, err = openai.New(openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey))
	case "anthropic":
		llm, err = anthropic.New(anthropic.WithModel(cfg.Model), anthropic.WithToken(cfg.APIKey))
	default:
		return nil, apperr.New(apperr.Configuration, "planner_unknown_provider", "unknown planner provider: "+cfg.Provider, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.Configuration, "planner_client_init_failed", "construct planner LLM client", err)
	}
	return &LLMPlanner{llm: llm, cfg: cfg}, nil
}

const planSystemPrompt = `You plan software changes. Given an issue description and surrounding
context, respond with ONLY a JSON object matching this shape, no prose:
{"summary": "...", "approach": "...", "testingStrategy": "...",
 "files": [{"path":"...", "action":"create|modify|delete", "description":"..."}],
 "estimatedComplexity": "low|medium|high", "risks": ["..."]}`

// GeneratePlan asks the LLM for a structured plan and decodes its JSON
// response into a model.DevelopmentPlan.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, issueTitle, issueBody, contextText string) (*model.DevelopmentPlan, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, planSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Issue: %s\n\n%s\n\nContext:\n%s", issueTitle, issueBody, contextText)),
	}

	opts := []llms.CallOption{llms.WithTemperature(p.cfg.Temperature)}
	resp, err := p.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, apperr.New(apperr.TransientTransport, "planner_generate_failed", "generate plan", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &apperr.PlanGenerationError{Reason: "empty response from planner"}
	}

	var decoded struct {
		Summary string `json:"summary"`
		Approach string `json:"approach"`
		TestingStrategy string `json:"testingStrategy"`
		Files []struct {
			Path string `json:"path"`
			Action string `json:"action"`
			Description string `json:"description"`
		} `json:"files"`
		EstimatedComplexity string `json:"estimatedComplexity"`
		Risks []string `json:"risks"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Content), &decoded); err != nil {
		return nil, &apperr.PlanGenerationError{Reason: "unparseable planner output: " + err.Error()}
	}

	files := make([]model.FileChange, 0, len(decoded.Files))
	for _, f := range decoded.Files {
		files = append(files, model.FileChange{
			Path: f.Path,
			Action: model.FileAction(f.Action),
			Description: f.Description,
		})
	}

	return &model.DevelopmentPlan{
		Summary: decoded.Summary,
		Approach: decoded.Approach,
		TestingStrategy: decoded.TestingStrategy,
		FileChanges: files,
		EstimatedComplexity: model.Complexity(decoded.EstimatedComplexity),
		Risks: decoded.Risks,
	}, nil
}
