package supervisor

import (
	"strings"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// sensitiveSubstrings names path fragments whose modification is never
// "low" risk regardless of file count — schema migrations, CI pipelines,
// and auth/secrets code have a blast radius the file-count heuristic
// alone would underestimate.
var sensitiveSubstrings = []string{
	"/migrations/",
	".github/workflows/",
	"/auth/",
	"secret",
	"credential",
}

// riskLowFileThreshold and riskMediumFileThreshold bound the file-count
// component of AssessRisk's classifier: at most 2 changed files with
// nothing else elevating risk stays low; 3-7 is medium; 8+ is high
// regardless of anything else.
const (
	riskLowFileThreshold    = 2
	riskMediumFileThreshold = 7
)

// AssessRisk derives a RiskLevel from the plan's touched files, their
// count, and any explicit risk markers the plan author recorded. The
// autoApproveLowRisk gate needs a concrete definition of "low"; this
// classifier is that definition.
//
// Rules, in order:
// 1. Any touched file matching a sensitiveSubstrings fragment forces "high".
// 2. 2+ explicit risk markers (plan.Risks) forces "high".
// 3. File count > riskMediumFileThreshold forces "high".
// 4. File count > riskLowFileThreshold, or exactly one risk marker,
// yields "medium".
// 5. Otherwise "low".
func AssessRisk(plan *model.DevelopmentPlan) ports.RiskLevel {
	if plan == nil {
		return ports.RiskHigh
	}

	for _, fc := range plan.FileChanges {
		if matchesSensitive(fc.Path) {
			return ports.RiskHigh
		}
	}

	if len(plan.Risks) >= 2 {
		return ports.RiskHigh
	}
	if len(plan.FileChanges) > riskMediumFileThreshold {
		return ports.RiskHigh
	}
	if len(plan.FileChanges) > riskLowFileThreshold || len(plan.Risks) == 1 {
		return ports.RiskMedium
	}
	return ports.RiskLow
}

func matchesSensitive(path string) bool {
	lower := strings.ToLower(path)
	for _, frag := range sensitiveSubstrings {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
