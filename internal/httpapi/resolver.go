package httpapi

import (
	"context"
	"strconv"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// EngineResolver adapts ApprovalRegistry to engine.ApprovalResolver,
// keying sessions by issue number so the HTTP surface's sessionId path
// parameter is just the issue number as a string.
type EngineResolver struct {
	registry *ApprovalRegistry
}

func NewEngineResolver(registry *ApprovalRegistry) *EngineResolver {
	return &EngineResolver{registry: registry}
}

func (r *EngineResolver) Await(ctx context.Context, issueNumber int, plan *model.DevelopmentPlan) (bool, string, error) {
	decision, err := r.registry.Await(ctx, strconv.Itoa(issueNumber))
	if err != nil {
		return false, "", err
	}
	return decision.Approved, decision.Reason, nil
}
