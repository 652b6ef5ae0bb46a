package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseTask_PreviewIsTheDefaultAndNeverApplies(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "needs runway",
		"success_criteria": []any{"done"}})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "write the code", "success_criteria": []any{"compiles"}}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "close_task", "task": taskID})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, true, resp.Result["dry_run"])
	runway, ok := resp.Result["runway"].(runwayComposite)
	require.True(t, ok)
	assert.True(t, runway.Open)
	assert.NotEmpty(t, runway.Steps)
	assert.NotNil(t, resp.Result["diff"])
	assert.NotNil(t, resp.Result["current"])
	assert.NotNil(t, resp.Result["computed"])

	loaded, err := d.Repo.Load(taskID, "")
	require.NoError(t, err)
	assert.NotEqual(t, "DONE", string(loaded.Status))
}

func TestCloseTask_DryRunOverridesApply(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "needs runway",
		"success_criteria": []any{"done"}})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	resp := d.Process(map[string]any{"intent": "close_task", "task": taskID, "apply": true, "dry_run": true})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, true, resp.Result["dry_run"])

	loaded, err := d.Repo.Load(taskID, "")
	require.NoError(t, err)
	assert.NotEqual(t, "DONE", string(loaded.Status))
}

func TestCloseTask_ApplyTrueAppliesRunwayAndClosesTask(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "auto close",
		"success_criteria": []any{"done"}})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "write the code", "success_criteria": []any{"compiles"}}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "close_task", "task": taskID, "apply": true})
	require.True(t, resp.Success, "%+v", resp.Error)
	task := resultMap(t, resp, "task")
	assert.Equal(t, "DONE", task["status"])
	assert.Equal(t, true, resp.Result["applied"])
}

func TestCloseTask_MissingSuccessCriteriaYieldsPatchRecipeInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "missing criteria",
		"success_criteria": []any{"placeholder"}})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	cleared := d.Process(map[string]any{
		"intent": "patch", "task": taskID,
		"ops": []any{map[string]any{"op": "set", "field": "success_criteria", "value": []any{}}},
	})
	require.True(t, cleared.Success, "%+v", cleared.Error)

	preview := d.Process(map[string]any{"intent": "close_task", "task": taskID})
	require.True(t, preview.Success, "%+v", preview.Error)
	diff, ok := preview.Result["diff"].(closeTaskDiff)
	require.True(t, ok)
	require.Len(t, diff.Patches, 1)
	assert.Equal(t, "task_detail", diff.Patches[0].Kind)
	assert.Equal(t, "success_criteria", diff.Patches[0].Ops[0].Field)

	applied := d.Process(map[string]any{"intent": "close_task", "task": taskID, "apply": true})
	require.True(t, applied.Success, "%+v", applied.Error)
	task := resultMap(t, applied, "task")
	assert.Equal(t, "DONE", task["status"])
	assert.NotEmpty(t, task["success_criteria"])
}

func TestCloseTask_AlreadyDoneTaskClosesWithEmptyRunwayOnApply(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "no steps at all",
		"success_criteria": []any{"done"}})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	resp := d.Process(map[string]any{"intent": "close_task", "task": taskID, "apply": true})
	require.True(t, resp.Success, "%+v", resp.Error)
	task := resultMap(t, resp, "task")
	assert.Equal(t, "DONE", task["status"])
}

func TestUndoRedo_RoundTripsEditThroughDispatcher(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "original title"})
	require.True(t, created.Success, "%+v", created.Error)
	taskID := resultMap(t, created, "task")["id"].(string)

	edited := d.Process(map[string]any{"intent": "edit", "task": taskID, "title": "edited title"})
	require.True(t, edited.Success, "%+v", edited.Error)

	undone := d.Process(map[string]any{"intent": "undo"})
	require.True(t, undone.Success, "%+v", undone.Error)
	loaded, err := d.Repo.Load(taskID, "")
	require.NoError(t, err)
	assert.Equal(t, "original title", loaded.Title)

	redone := d.Process(map[string]any{"intent": "redo"})
	require.True(t, redone.Success, "%+v", redone.Error)
	loaded, err = d.Repo.Load(taskID, "")
	require.NoError(t, err)
	assert.Equal(t, "edited title", loaded.Title)
}

func TestUndo_NothingToUndoReturnsError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "undo"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOTHING_TO_UNDO", resp.Error.Code)
}

func TestRedo_NothingToRedoReturnsError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "redo"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOTHING_TO_REDO", resp.Error.Code)
}
