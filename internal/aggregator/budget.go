package aggregator

import "github.com/hyperionlabs/mergebot/internal/model"

// defaultSourceWeights gives each task type a baseline budget split
// across the sources it typically favours; unspecified sources in a
// weight table get none of the budget unless the caller's
// SourcePriorities overrides it.
var defaultSourceWeights = map[model.TaskType]map[model.ContextSourceKind]float64{
	model.TaskCodeSearch: {
		model.SourceVector: 0.45,
		model.SourceKeyword: 0.35,
		model.SourceMCP: 0.20,
	},
	model.TaskDebugging: {
		model.SourceVector: 0.3,
		model.SourceKeyword: 0.3,
		model.SourceRAG: 0.2,
		model.SourceMCP: 0.2,
	},
	model.TaskImplementation: {
		model.SourceVector: 0.3,
		model.SourceRAG: 0.3,
		model.SourceKeyword: 0.2,
		model.SourceMCP: 0.2,
	},
	model.TaskExplanation: {
		model.SourceRAG: 0.5,
		model.SourceVector: 0.3,
		model.SourceKeyword: 0.2,
	},
	model.TaskDocumentation: {
		model.SourceRAG: 0.5,
		model.SourceMCP: 0.3,
		model.SourceKeyword: 0.2,
	},
	model.TaskRefactoring: {
		model.SourceVector: 0.4,
		model.SourceKeyword: 0.4,
		model.SourceMCP: 0.2,
	},
	model.TaskGeneral: {
		model.SourceVector: 0.25,
		model.SourceKeyword: 0.25,
		model.SourceRAG: 0.25,
		model.SourceMCP: 0.25,
	},
}

// allocateBudget splits the effective token budget across sources: the
// task-type default weight table is the base, and any weight present in
// req.SourcePriorities overrides the corresponding source's entry before
// normalising back to 1.0.
func allocateBudget(req model.ContextRequest, sourceList []model.ContextSourceKind) map[model.ContextSourceKind]int {
	base := defaultSourceWeights[req.TaskType]
	if base == nil {
		base = defaultSourceWeights[model.TaskGeneral]
	}

	weights := make(map[model.ContextSourceKind]float64, len(sourceList))
	for _, s := range sourceList {
		if w, ok := req.SourcePriorities[s]; ok {
			weights[s] = w
			continue
		}
		weights[s] = base[s]
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		// nothing in the weight tables matched any requested source;
		// split evenly rather than handing every source a zero budget.
		equal := 1.0 / float64(len(sourceList))
		for _, s := range sourceList {
			weights[s] = equal
		}
		total = 1.0
	}

	budget := req.EffectiveBudget()
	out := make(map[model.ContextSourceKind]int, len(sourceList))
	for _, s := range sourceList {
		out[s] = int(float64(budget) * (weights[s] / total))
	}
	return out
}
