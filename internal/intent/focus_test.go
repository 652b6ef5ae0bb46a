package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFocus_ExplicitTaskWinsOverPersistedFocus(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	first := createTaskForPatch(t, d)
	createdSecond := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "second"})
	require.True(t, createdSecond.Success, "%+v", createdSecond.Error)
	second := resultMap(t, createdSecond, "task")["id"].(string)

	focus, err := d.Focus.Get()
	require.NoError(t, err)
	assert.Equal(t, second, focus.Task, "create sets focus to the most recently created item")

	resp := d.Process(map[string]any{"intent": "edit", "task": first, "title": "edited via explicit id"})
	require.True(t, resp.Success, "%+v", resp.Error)

	loaded, err := d.Repo.Load(first, "")
	require.NoError(t, err)
	assert.Equal(t, "edited via explicit id", loaded.Title)
}

func TestResolveFocus_MissingTargetSuggestsRecentItems(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	createTaskForPatch(t, d)
	require.NoError(t, d.Focus.Clear())

	resp := d.Process(map[string]any{"intent": "edit", "title": "no target given"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_TARGET", resp.Error.Code)
	assert.NotEmpty(t, resp.Result["suggestions"])
}

func TestResolveFocus_TaskKindRejectsPlanFocus(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	created := d.Process(map[string]any{"intent": "create", "kind": "plan", "title": "a plan"})
	require.True(t, created.Success, "%+v", created.Error)

	resp := d.Process(map[string]any{"intent": "progress", "note": "x"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FOCUS_INCOMPATIBLE", resp.Error.Code)
}

func TestSafeWritesGuard_AutoEnablesStrictTargetingWithMultipleActiveItems(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	a := createTaskForPatch(t, d)
	createdB := d.Process(map[string]any{"intent": "create", "kind": "task", "title": "second active task"})
	require.True(t, createdB.Success, "%+v", createdB.Error)
	b := resultMap(t, createdB, "task")["id"].(string)

	itemA, err := d.Repo.Load(a, "")
	require.NoError(t, err)
	itemA.Status = "ACTIVE"
	require.NoError(t, d.Repo.Save(itemA))
	itemB, err := d.Repo.Load(b, "")
	require.NoError(t, err)
	itemB.Status = "ACTIVE"
	require.NoError(t, d.Repo.Save(itemB))

	resp := d.Process(map[string]any{"intent": "progress", "note": "ambiguous without explicit target"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STRICT_TARGETING_REQUIRES_EXPECTED_TARGET_ID", resp.Error.Code)
}

func TestSafeWritesGuard_ExpectedTargetMismatchIsRejected(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	a := createTaskForPatch(t, d)

	resp := d.Process(map[string]any{
		"intent": "edit", "task": a, "title": "renamed",
		"expected_target_id": "TASK-does-not-exist",
	})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "EXPECTED_TARGET_MISMATCH", resp.Error.Code)
}
