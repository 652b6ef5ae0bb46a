package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirror_PlanScopeListsChildTasks(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	scaffolded := d.Process(map[string]any{"intent": "scaffold", "title": "parent plan", "tasks": []any{"a", "b"}})
	require.True(t, scaffolded.Success, "%+v", scaffolded.Error)
	planID := resultMap(t, scaffolded, "plan")["id"].(string)

	resp := d.Process(map[string]any{"intent": "mirror", "plan": planID})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "plan", resp.Result["scope"])
	tasks, _ := resp.Result["tasks"].([]map[string]any)
	assert.Len(t, tasks, 2)
}

func TestMirror_TaskScopeMarksFirstPendingStepInProgress(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	taskID := createTaskForPatch(t, d)
	decomposed := d.Process(map[string]any{
		"intent": "decompose", "task": taskID,
		"steps": []any{map[string]any{"title": "one"}, map[string]any{"title": "two"}},
	})
	require.True(t, decomposed.Success, "%+v", decomposed.Error)

	resp := d.Process(map[string]any{"intent": "mirror", "task": taskID})
	require.True(t, resp.Success, "%+v", resp.Error)
	steps, _ := resp.Result["steps"].([]map[string]any)
	require.Len(t, steps, 2)
	assert.Equal(t, "in_progress", steps[0]["state"])
	assert.Equal(t, "pending", steps[1]["state"])
}
