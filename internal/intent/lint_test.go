package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apply-task/taskengine/internal/model"
)

func codes(issues []LintIssue) []string {
	out := make([]string, len(issues))
	for i, iss := range issues {
		out[i] = iss.Code
	}
	return out
}

func TestLint_MissingSuccessCriteria(t *testing.T) {
	t.Parallel()

	item := &model.Item{Kind: model.KindTask, ID: "TASK-001"}
	issues := Lint(item)
	assert.Contains(t, codes(issues), "MISSING_SUCCESS_CRITERIA")
}

func TestLint_StepIssues(t *testing.T) {
	t.Parallel()

	item := &model.Item{
		Kind:            model.KindTask,
		ID:              "TASK-001",
		SuccessCriteria: []string{"done"},
		Steps: []model.Step{
			{ID: "s0", Title: "short"},
		},
	}
	issues := Lint(item)
	got := codes(issues)
	assert.Contains(t, got, "STEP_MISSING_CRITERIA")
	assert.Contains(t, got, "STEP_TITLE_TOO_SHORT")
	assert.NotContains(t, got, "MISSING_SUCCESS_CRITERIA")
}

func TestLint_ConfirmedCheckpointWithoutEvidence(t *testing.T) {
	t.Parallel()

	step := model.Step{
		ID:              "s0",
		Title:           "a sufficiently long title",
		SuccessCriteria: []string{"criteria"},
		Checkpoints:     model.NewCheckpoints(),
	}
	step.Checkpoints[model.CheckpointTests].Confirmed = true

	item := &model.Item{
		Kind:            model.KindTask,
		SuccessCriteria: []string{"done"},
		Steps:           []model.Step{step},
	}
	issues := Lint(item)
	assert.Contains(t, codes(issues), "CHECKPOINT_CONFIRMED_WITHOUT_EVIDENCE")
}

func TestLint_DuplicateDependsOn(t *testing.T) {
	t.Parallel()

	item := &model.Item{
		Kind:            model.KindTask,
		SuccessCriteria: []string{"done"},
		DependsOn:       []string{"TASK-002", "TASK-002"},
	}
	issues := Lint(item)
	assert.Contains(t, codes(issues), "DUPLICATE_DEPENDS_ON")
}

func TestLint_PlanCurrentOutOfRange(t *testing.T) {
	t.Parallel()

	item := &model.Item{
		Kind:        model.KindPlan,
		PlanSteps:   []string{"TASK-001"},
		PlanCurrent: 5,
	}
	issues := Lint(item)
	assert.Contains(t, codes(issues), "PLAN_CURRENT_OUT_OF_RANGE")
}

func TestErrorIssues_FiltersBySeverity(t *testing.T) {
	t.Parallel()

	issues := []LintIssue{
		{Code: "A", Severity: "error"},
		{Code: "B", Severity: "warning"},
		{Code: "C", Severity: "error"},
	}
	errOnly := ErrorIssues(issues)
	assert.Len(t, errOnly, 2)
	assert.Equal(t, []string{"A", "C"}, codes(errOnly))
}

func TestHandleLint_ReportsIssuesAndErrorCount(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "lint", "task": taskID})
	require.True(t, resp.Success, "%+v", resp.Error)
	issues, ok := resp.Result["issues"].([]LintIssue)
	require.True(t, ok)
	assert.NotEmpty(t, issues)
	assert.Equal(t, len(ErrorIssues(issues)), resp.Result["error_count"])
}
