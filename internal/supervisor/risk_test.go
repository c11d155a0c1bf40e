package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

func TestAssessRisk_FewFilesNoMarkersIsLow(t *testing.T) {
	plan := &model.DevelopmentPlan{
		FileChanges: []model.FileChange{{Path: "internal/foo.go", Action: model.FileActionModify}},
	}
	assert.Equal(t, ports.RiskLow, AssessRisk(plan))
}

func TestAssessRisk_ManyFilesIsHigh(t *testing.T) {
	var files []model.FileChange
	for i := 0; i < 9; i++ {
		files = append(files, model.FileChange{Path: "internal/file.go", Action: model.FileActionModify})
	}
	plan := &model.DevelopmentPlan{FileChanges: files}
	assert.Equal(t, ports.RiskHigh, AssessRisk(plan))
}

func TestAssessRisk_MidRangeFileCountIsMedium(t *testing.T) {
	plan := &model.DevelopmentPlan{
		FileChanges: []model.FileChange{
			{Path: "a.go"}, {Path: "b.go"}, {Path: "c.go"}, {Path: "d.go"},
		},
	}
	assert.Equal(t, ports.RiskMedium, AssessRisk(plan))
}

func TestAssessRisk_SensitivePathForcesHigh(t *testing.T) {
	plan := &model.DevelopmentPlan{
		FileChanges: []model.FileChange{{Path: "db/migrations/0001_init.sql"}},
	}
	assert.Equal(t, ports.RiskHigh, AssessRisk(plan))
}

func TestAssessRisk_TwoRiskMarkersForcesHigh(t *testing.T) {
	plan := &model.DevelopmentPlan{
		FileChanges: []model.FileChange{{Path: "a.go"}},
		Risks: []string{"breaking API change", "touches billing"},
	}
	assert.Equal(t, ports.RiskHigh, AssessRisk(plan))
}

func TestAssessRisk_OneRiskMarkerIsMedium(t *testing.T) {
	plan := &model.DevelopmentPlan{
		FileChanges: []model.FileChange{{Path: "a.go"}},
		Risks: []string{"touches shared config"},
	}
	assert.Equal(t, ports.RiskMedium, AssessRisk(plan))
}

func TestAssessRisk_NilPlanIsHigh(t *testing.T) {
	assert.Equal(t, ports.RiskHigh, AssessRisk(nil))
}
