package engine

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// planSchema describes the DevelopmentPlan shape the agent provider's
// --json-schema flag should enforce on its result.
var planSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"summary": {Type: "string"},
		"approach": {Type: "string"},
		"testingStrategy": {Type: "string"},
		"files": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"path": {Type: "string"},
					"action": {Type: "string", Enum: []any{"create", "modify", "delete"}},
					"description": {Type: "string"},
				},
				Required: []string{"path", "action"},
			},
		},
		"estimatedComplexity": {Type: "string", Enum: []any{"low", "medium", "high"}},
		"risks": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
	},
	Required: []string{"summary", "approach", "files", "estimatedComplexity"},
}

var planJSONSchema []byte

func init() {
	planJSONSchema, _ = json.Marshal(planSchema)
}

type planDoc struct {
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

// parsePlan decodes the agent provider's JSON output into a
// model.DevelopmentPlan.
func parsePlan(raw string) (*model.DevelopmentPlan, error) {
	var doc planDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}

	files := make([]model.FileChange, 0, len(doc.Files))
	for _, f := range doc.Files {
		files = append(files, model.FileChange{
			Path: f.Path,
			Action: model.FileAction(f.Action),
			Description: f.Description,
		})
	}

	return &model.DevelopmentPlan{
		Summary: doc.Summary,
		Approach: doc.Approach,
		TestingStrategy: doc.TestingStrategy,
		FileChanges: files,
		EstimatedComplexity: model.Complexity(doc.EstimatedComplexity),
		Risks: doc.Risks,
	}, nil
}
