package intent

import (
	"testing"

	"github.com/apply-task/taskengine/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_ReportsCountsAndOptionalFullDetail(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "context"})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, 0, resp.Result["plans_count"])
	assert.Equal(t, 1, resp.Result["tasks_count"])
	assert.Nil(t, resp.Result["tasks"])

	full := d.Process(map[string]any{"intent": "context", "full": true})
	require.True(t, full.Success, "%+v", full.Error)
	assert.NotEmpty(t, full.Result["tasks"])
}

func TestContext_TasksStatusFilterExcludesNonMatching(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "context", "full": true, "tasks_status": "DONE"})
	require.True(t, resp.Success, "%+v", resp.Error)
	tasks, _ := resp.Result["tasks"].([]map[string]any)
	assert.Empty(t, tasks)
}

func TestContext_SubtreeResolvesStepByPath(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "only step"}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{
		"intent":  "context",
		"subtree": map[string]any{"task": taskID, "kind": "step", "path": "s:0"},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	subtree, ok := resp.Result["subtree"].(map[string]any)
	require.True(t, ok)
	step, ok := subtree["step"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "only step", step["title"])
}

func TestContext_SubtreeMissingTaskIsError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "context", "subtree": map[string]any{}})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_TASK", resp.Error.Code)
}

func TestContext_SubtreeUnknownKindIsError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	resp := d.Process(map[string]any{
		"intent": "context", "subtree": map[string]any{"task": taskID, "kind": "bogus"},
	})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_KIND", resp.Error.Code)
}

func TestFocus_SetGetClearRoundTrip(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	set := d.Process(map[string]any{"intent": "focus_set", "task": taskID})
	require.True(t, set.Success, "%+v", set.Error)
	assert.Equal(t, taskID, set.Result["task"])

	get := d.Process(map[string]any{"intent": "focus_get"})
	require.True(t, get.Success, "%+v", get.Error)
	assert.Equal(t, taskID, get.Result["task"])

	cleared := d.Process(map[string]any{"intent": "focus_clear"})
	require.True(t, cleared.Success, "%+v", cleared.Error)
	assert.Equal(t, true, cleared.Result["cleared"])

	afterClear := d.Process(map[string]any{"intent": "focus_get"})
	require.True(t, afterClear.Success, "%+v", afterClear.Error)
	assert.Empty(t, afterClear.Result["task"])
}

func TestFocus_SetRejectsUnknownTarget(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "focus_set", "task": "TASK-missing"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestFocus_SetRequiresTaskOrPlan(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "focus_set"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_TARGET", resp.Error.Code)
}

func TestTemplatesList_ReturnsCatalog(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "templates_list"})
	require.True(t, resp.Success, "%+v", resp.Error)
	templates, ok := resp.Result["templates"].([]map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, templates)
}

func TestStorage_ReportsRootAndSignature(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "storage"})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, d.Repo.Root, resp.Result["root"])
	assert.NotEmpty(t, resp.Result["signature"])
}

func TestHistory_ListsRecentOpsOnMutatingActions(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "history"})
	require.True(t, resp.Success, "%+v", resp.Error)
	ops, ok := resp.Result["operations"].([]history.Operation)
	require.True(t, ok)
	assert.NotEmpty(t, ops)
}

func TestDelta_DefaultSummaryOmitsDetails(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "delta"})
	require.True(t, resp.Success, "%+v", resp.Error)
	ops, ok := resp.Result["operations"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, ops)
	assert.Contains(t, ops[0], "intent")
	assert.Contains(t, ops[0], "undone")
}

func TestDelta_UnknownSinceReturnsError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "delta", "since": "op-does-not-exist"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SINCE_NOT_FOUND", resp.Error.Code)
}

func TestResume_DefaultsToCompactFalseAndIncludesTimeline(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "resume", "task": taskID})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, taskID, resp.Result["id"])
	assert.NotContains(t, resp.Result, "steps")
	assert.NotNil(t, resp.Result["timeline"])
}

func TestResume_CompactTrueOmitsFullFieldsButKeepsIdentity(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)

	resp := d.Process(map[string]any{"intent": "resume", "task": taskID, "compact": true})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, taskID, resp.Result["id"])
	assert.NotContains(t, resp.Result, "description")
}

func TestResume_IncludeStepsAddsStepSummaries(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "only step"}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "resume", "task": taskID, "include_steps": true})
	require.True(t, resp.Success, "%+v", resp.Error)
	steps, ok := resp.Result["steps"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, steps, 1)
	assert.Equal(t, "only step", steps[0]["title"])
}
