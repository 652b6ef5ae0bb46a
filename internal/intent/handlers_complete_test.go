package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDone_GatedByMissingCheckpoints(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "a step", "success_criteria": []any{"x"}}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "done", "task": taskID, "path": "s:0"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "GATING_FAILED", resp.Error.Code)
	assert.NotEmpty(t, resp.Result["missing_checkpoints"])
}

func TestCloseStep_AutoVerifiesThenCompletesAtomically(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "a step", "success_criteria": []any{"x"}, "tests": []any{"y"}}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{
		"intent": "close_step", "task": taskID, "path": "s:0",
		"checkpoints": map[string]any{
			"criteria": map[string]any{"confirmed": true},
			"tests":    map[string]any{"confirmed": true},
		},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	step := resultMap(t, resp, "step")
	assert.Equal(t, true, step["completed"])
}

func TestContract_RecordsVersionOnlyWhenChanged(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "plan", "title": "plan with contract"})
	require.True(t, created.Success, "%+v", created.Error)
	planID := resultMap(t, created, "plan")["id"].(string)

	first := d.Process(map[string]any{"intent": "contract", "plan": planID, "contract": "ship v1", "success_criteria": []any{"shipped"}})
	require.True(t, first.Success, "%+v", first.Error)
	assert.Equal(t, true, first.Result["contract_changed"])

	second := d.Process(map[string]any{"intent": "contract", "plan": planID, "contract": "ship v1", "success_criteria": []any{"shipped"}})
	require.True(t, second.Success, "%+v", second.Error)
	assert.Equal(t, false, second.Result["contract_changed"])
}

func TestPlanAdvance_ClampsToStepCount(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	scaffolded := d.Process(map[string]any{"intent": "scaffold", "title": "plan", "tasks": []any{"one"}})
	require.True(t, scaffolded.Success, "%+v", scaffolded.Error)
	planID := resultMap(t, scaffolded, "plan")["id"].(string)

	resp := d.Process(map[string]any{"intent": "plan", "plan": planID, "plan_current": float64(99)})
	require.True(t, resp.Success, "%+v", resp.Error)
	plan := resultMap(t, resp, "plan")
	assert.Equal(t, uint(1), plan["plan_current"], "plan_current clamps to len(plan_steps)")
}

func TestComplete_BlockedByLintErrorsUnlessForcedWithReason(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	blocked := d.Process(map[string]any{"intent": "complete", "task": taskID})
	assert.False(t, blocked.Success)
	require.NotNil(t, blocked.Error)
	assert.Equal(t, "LINT_ERRORS_BLOCKING", blocked.Error.Code)

	forcedNoReason := d.Process(map[string]any{"intent": "complete", "task": taskID, "force": true})
	assert.False(t, forcedNoReason.Success)
	require.NotNil(t, forcedNoReason.Error)
	assert.Equal(t, "MISSING_OVERRIDE_REASON", forcedNoReason.Error.Code)

	forced := d.Process(map[string]any{"intent": "complete", "task": taskID, "force": true, "override_reason": "acceptable risk"})
	require.True(t, forced.Success, "%+v", forced.Error)
	task := resultMap(t, forced, "task")
	assert.Equal(t, "DONE", task["status"])
}

func TestDelete_ClearsFocusWhenDeletingFocusedItem(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "delete", "task": taskID})
	require.True(t, resp.Success, "%+v", resp.Error)

	_, err := d.Repo.Load(taskID, "")
	assert.Error(t, err)

	focus, err := d.Focus.Get()
	require.NoError(t, err)
	assert.Empty(t, focus.Task)
}

func TestDelete_MissingItemReturnsNotFound(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "delete", "task": "TASK-999"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestTaskDelete_RemovesStepAtPath(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "step one"}, map[string]any{"title": "step two"}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "task_delete", "task": taskID, "path": "s:0"})
	require.True(t, resp.Success, "%+v", resp.Error)

	loaded, err := d.Repo.Load(taskID, "")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "step two", loaded.Steps[0].Title)
}
